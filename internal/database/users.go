package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ecorpus-go/internal/access"
	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/model"
)

var usernamePattern = regexp.MustCompile(`^\w{3,40}$`)

func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return errs.BadRequest("invalid username %q: expected 3 to 40 word characters", username)
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\n") {
		return errs.BadRequest("invalid email %q", email)
	}
	return nil
}

func isReservedUser(uid int64) bool {
	return uid == access.DefaultUserID || uid == access.AnyUserID
}

const userSelect = `SELECT user_id, username, COALESCE(email, ''), is_administrator FROM users`

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.UID, &u.Username, &u.Email, &u.IsAdministrator); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteDatabase) AddUser(ctx context.Context, username, email string, isAdministrator bool) (*model.User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < idAttempts; attempt++ {
		uid := s.idgen.New()
		_, err := s.q.ExecContext(ctx,
			`INSERT INTO users (user_id, username, email, is_administrator) VALUES (?, ?, ?, ?)`,
			uid, username, sql.NullString{String: email, Valid: email != ""}, isAdministrator)
		switch {
		case err == nil:
			return &model.User{UID: uid, Username: username, Email: email, IsAdministrator: isAdministrator}, nil
		case isUniqueViolation(err, "users.user_id"):
			continue
		case isUniqueViolation(err, "users.username"):
			return nil, errs.Conflict("username %q is already taken", username)
		case isUniqueViolation(err, "users.email"):
			return nil, errs.Conflict("email %q is already registered", email)
		default:
			return nil, fmt.Errorf("adding user: %w", translateError(err))
		}
	}
	return nil, errs.Conflict("unable to find a free id")
}

func (s *SQLiteDatabase) GetUserByName(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, userSelect+` WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("no user named %q", username)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

func (s *SQLiteDatabase) getUserByID(ctx context.Context, uid int64) (*model.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, userSelect+` WHERE user_id = ?`, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("no user with id %d", uid)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUsers lists registered users, reserved identities excluded.
func (s *SQLiteDatabase) GetUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.q.QueryContext(ctx, userSelect+` WHERE user_id > 1 ORDER BY username ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// PatchUser updates the fields set in patch. Column names come from a fixed
// list; only values are bound.
func (s *SQLiteDatabase) PatchUser(ctx context.Context, uid int64, patch model.UserPatch) (*model.User, error) {
	if isReservedUser(uid) {
		return nil, errs.BadRequest("user %d is reserved", uid)
	}

	var (
		sets []string
		args []any
	)
	if patch.Username != nil {
		if err := validateUsername(*patch.Username); err != nil {
			return nil, err
		}
		sets = append(sets, "username = ?")
		args = append(args, *patch.Username)
	}
	if patch.Email != nil {
		if err := validateEmail(*patch.Email); err != nil {
			return nil, err
		}
		sets = append(sets, "email = ?")
		args = append(args, sql.NullString{String: *patch.Email, Valid: *patch.Email != ""})
	}
	if patch.IsAdministrator != nil {
		sets = append(sets, "is_administrator = ?")
		args = append(args, *patch.IsAdministrator)
	}
	if len(sets) == 0 {
		return nil, errs.BadRequest("nothing to update")
	}

	args = append(args, uid)
	res, err := s.q.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE user_id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err, "users.username") {
			return nil, errs.Conflict("username %q is already taken", *patch.Username)
		}
		return nil, fmt.Errorf("updating user: %w", translateError(err))
	}
	if err := expectOneRow(res, "no user with id %d", uid); err != nil {
		return nil, err
	}
	return s.getUserByID(ctx, uid)
}

// RemoveUser deletes a user. Authored generations fall back to the default
// user and the user's permission entries are dropped.
func (s *SQLiteDatabase) RemoveUser(ctx context.Context, uid int64) error {
	if isReservedUser(uid) {
		return errs.BadRequest("user %d is reserved", uid)
	}
	return s.transaction(ctx, func(tx *SQLiteDatabase) error {
		res, err := tx.q.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, uid)
		if err != nil {
			return fmt.Errorf("removing user: %w", translateError(err))
		}
		if err := expectOneRow(res, "no user with id %d", uid); err != nil {
			return err
		}
		_, err = tx.q.ExecContext(ctx,
			`UPDATE scenes SET access = json_remove(access, '$."' || @uid || '"')
			WHERE json_extract(access, '$."' || @uid || '"') IS NOT NULL`,
			sql.Named("uid", uid))
		if err != nil {
			return fmt.Errorf("removing permissions of user %d: %w", uid, translateError(err))
		}
		return nil
	})
}

func (s *SQLiteDatabase) Grant(ctx context.Context, scene model.SceneRef, username string, level access.Level) error {
	if !level.Valid() {
		return errs.BadRequest("invalid access level %d", int(level))
	}
	var value sql.NullString
	if level != access.Null {
		value = sql.NullString{String: level.String(), Valid: true}
	}

	filter, arg := sceneFilter("", scene)
	res, err := s.q.ExecContext(ctx, `
		UPDATE scenes
		SET access = json_patch(access, json_object(
			(SELECT CAST(user_id AS TEXT) FROM users WHERE username = @username), @level))
		WHERE `+filter+`
			AND EXISTS (SELECT 1 FROM users WHERE username = @username)`,
		arg, sql.Named("username", username), sql.Named("level", value))
	if err != nil {
		err = translateError(err)
		if errors.Is(err, errs.ErrBadRequest) {
			return errs.BadRequest("the default permission of a scene cannot be removed")
		}
		return fmt.Errorf("granting permissions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	switch {
	case n == 0:
		if _, err := s.sceneID(ctx, scene); err != nil {
			return err
		}
		return errs.NotFound("no user named %q", username)
	case n > 1:
		return errs.Internal("grant modified %d scenes", n)
	}
	return nil
}

func (s *SQLiteDatabase) sceneAccess(ctx context.Context, scene model.SceneRef) (access.Map, error) {
	filter, arg := sceneFilter("", scene)
	var raw string
	err := s.q.QueryRowContext(ctx, `SELECT access FROM scenes WHERE `+filter, arg).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("no scene found matching %s", scene)
	}
	if err != nil {
		return nil, fmt.Errorf("getting permissions: %w", err)
	}
	var m access.Map
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decoding permissions: %w", err)
	}
	return m, nil
}

func (s *SQLiteDatabase) GetAccessRights(ctx context.Context, scene model.SceneRef, uid int64) (access.Level, error) {
	m, err := s.sceneAccess(ctx, scene)
	if err != nil {
		return access.Null, err
	}
	return access.Resolve(m, uid), nil
}

func (s *SQLiteDatabase) GetPermissions(ctx context.Context, scene model.SceneRef) ([]*model.Permission, error) {
	filter, arg := sceneFilter("s", scene)
	rows, err := s.q.QueryContext(ctx, `
		SELECT CAST(j.key AS INTEGER) AS uid, COALESCE(u.username, ''), j.value
		FROM scenes AS s, json_each(s.access) AS j
		LEFT JOIN users AS u ON u.user_id = CAST(j.key AS INTEGER)
		WHERE `+filter+`
		ORDER BY uid ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("getting permissions: %w", err)
	}
	defer rows.Close()

	var perms []*model.Permission
	for rows.Next() {
		var (
			p     model.Permission
			level string
		)
		if err := rows.Scan(&p.UID, &p.Username, &level); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		if p.Access, err = access.Parse(level); err != nil {
			return nil, fmt.Errorf("scene permission of user %d: %w", p.UID, err)
		}
		perms = append(perms, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting permissions: %w", err)
	}
	if len(perms) == 0 {
		return nil, errs.NotFound("no scene found matching %s", scene)
	}
	return perms, nil
}
