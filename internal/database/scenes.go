package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"ecorpus-go/internal/access"
	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/model"
)

// Folders every new scene starts with.
var defaultFolders = []string{"articles", "models"}

// Random ids are drawn this many times before giving up.
const idAttempts = 3

// Listing bounds.
const (
	DefaultSceneLimit = 10
	MaxSceneLimit     = 100
)

func validateSceneName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errs.BadRequest("scene name must not be empty")
	}
	if len(name) > 255 {
		return errs.BadRequest("scene name is too long")
	}
	for _, r := range name {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return errs.BadRequest("invalid character %q in scene name %q", r, name)
		}
	}
	return nil
}

// defaultPermissions returns the permission map of a new scene.
func (s *SQLiteDatabase) defaultPermissions(authorID int64) access.Map {
	perms := access.Map{
		access.Key(access.DefaultUserID): access.None,
		access.Key(access.AnyUserID):     access.Read,
	}
	if s.public {
		perms[access.Key(access.DefaultUserID)] = access.Read
	}
	if authorID > access.AnyUserID {
		perms[access.Key(authorID)] = access.Admin
	}
	return perms
}

func (s *SQLiteDatabase) CreateScene(ctx context.Context, name string, authorID int64) (int64, error) {
	return s.createScene(ctx, name, s.defaultPermissions(authorID), authorID)
}

func (s *SQLiteDatabase) CreateSceneWithPermissions(ctx context.Context, name string, perms access.Map) (int64, error) {
	if perms.Get(access.DefaultUserID) == access.Null {
		return 0, errs.BadRequest("permissions must have a default entry")
	}
	return s.createScene(ctx, name, perms, access.DefaultUserID)
}

// createScene inserts the scene row and its default folders in one transaction.
// A random id is drawn for each attempt; only id collisions are retried.
func (s *SQLiteDatabase) createScene(ctx context.Context, name string, perms access.Map, authorID int64) (int64, error) {
	if err := validateSceneName(name); err != nil {
		return 0, err
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return 0, fmt.Errorf("encoding permissions: %w", err)
	}

	var id int64
	err = s.transaction(ctx, func(tx *SQLiteDatabase) error {
		ctime := tx.now()
		for attempt := 0; attempt < idAttempts; attempt++ {
			candidate := tx.idgen.New()
			_, err := tx.q.ExecContext(ctx,
				`INSERT INTO scenes (scene_id, scene_name, ctime, access) VALUES (?, ?, ?, ?)`,
				candidate, name, ctime, string(data))
			if err == nil {
				id = candidate
				break
			}
			if isUniqueViolation(err, "scenes.scene_id") {
				continue
			}
			if isUniqueViolation(err, "scenes.scene_name") {
				return errs.Conflict("a scene named %q already exists", name)
			}
			return fmt.Errorf("inserting scene: %w", translateError(err))
		}
		if id == 0 {
			return errs.Conflict("unable to find a free id")
		}

		for _, folder := range defaultFolders {
			_, err := tx.q.ExecContext(ctx, `
				INSERT INTO files (fk_scene_id, name, generation, hash, size, mime, fk_author_id, ctime)
				VALUES (?, ?, 1, ?, 0, ?, ?, ?)`,
				id, folder, model.FolderHash, model.FolderMime, authorID, ctime)
			if err != nil {
				return fmt.Errorf("creating folder %s: %w", folder, translateError(err))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLiteDatabase) RemoveScene(ctx context.Context, scene model.SceneRef) error {
	filter, arg := sceneFilter("", scene)
	res, err := s.q.ExecContext(ctx, `DELETE FROM scenes WHERE `+filter, arg)
	if err != nil {
		return fmt.Errorf("removing scene: %w", translateError(err))
	}
	return expectOneRow(res, "no scene found matching %s", scene)
}

func (s *SQLiteDatabase) ArchiveScene(ctx context.Context, scene model.SceneRef) error {
	filter, arg := sceneFilter("", scene)
	res, err := s.q.ExecContext(ctx, `UPDATE scenes SET access = json_object('0', 'none') WHERE `+filter, arg)
	if err != nil {
		return fmt.Errorf("archiving scene: %w", translateError(err))
	}
	return expectOneRow(res, "no scene found matching %s", scene)
}

func (s *SQLiteDatabase) RenameScene(ctx context.Context, id int64, next string) error {
	if err := validateSceneName(next); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `UPDATE scenes SET scene_name = ? WHERE scene_id = ?`, next, id)
	if err != nil {
		if isUniqueViolation(err, "scenes.scene_name") {
			return errs.Conflict("a scene named %q already exists", next)
		}
		return fmt.Errorf("renaming scene: %w", translateError(err))
	}
	return expectOneRow(res, "no scene found with id %d", id)
}

// expectOneRow maps an update that matched nothing to a not-found error.
func expectOneRow(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return errs.NotFound(format, args...)
	}
	return nil
}

// sceneSelect projects one scene row with its head document, for scanScene.
// The requester is bound as @uid.
const sceneSelect = `
SELECT
	s.scene_id,
	s.scene_name,
	s.ctime,
	COALESCE(d.ctime, s.ctime) AS mtime,
	COALESCE(d.fk_author_id, 0) AS author_id,
	COALESCE(u.username, 'default') AS author,
	(SELECT json_extract(t.value, '$.uri') FROM json_tree(d.data, '$.metas') AS t
		WHERE t.type = 'object'
		AND t.fullkey LIKE '$.metas[%].images[%]'
		AND json_extract(t.value, '$.quality') = 'Thumb'
		LIMIT 1) AS thumb,
	s.access
FROM scenes AS s
LEFT JOIN documents AS d ON d.fk_scene_id = s.scene_id
	AND d.generation = (SELECT MAX(generation) FROM documents WHERE fk_scene_id = s.scene_id)
LEFT JOIN users AS u ON u.user_id = d.fk_author_id`

// resolvedAccess mirrors access.Resolve for the requester bound as @uid.
const resolvedAccess = `COALESCE(
	json_extract(s.access, '$."' || @uid || '"'),
	CASE WHEN @uid > 0 THEN json_extract(s.access, '$."1"') END,
	json_extract(s.access, '$."0"'))`

func scanScene(row rowScanner, uid int64) (*model.Scene, error) {
	var (
		sc    model.Scene
		thumb sql.NullString
		perms string
	)
	err := row.Scan(&sc.ID, &sc.Name, dbTime{&sc.Ctime}, dbTime{&sc.Mtime},
		&sc.AuthorID, &sc.Author, &thumb, &perms)
	if err != nil {
		return nil, err
	}
	sc.Thumb = thumb.String

	var m access.Map
	if err := json.Unmarshal([]byte(perms), &m); err != nil {
		return nil, fmt.Errorf("decoding permissions of scene %d: %w", sc.ID, err)
	}
	sc.Access = access.Summarize(m, uid)
	return &sc, nil
}

func (s *SQLiteDatabase) GetScene(ctx context.Context, scene model.SceneRef, uid int64) (*model.Scene, error) {
	filter, arg := sceneFilter("s", scene)
	row := s.q.QueryRowContext(ctx, sceneSelect+` WHERE `+filter, arg, sql.Named("uid", uid))
	sc, err := scanScene(row, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("no scene found matching %s", scene)
	}
	if err != nil {
		return nil, fmt.Errorf("getting scene: %w", err)
	}
	return sc, nil
}

func (s *SQLiteDatabase) GetScenes(ctx context.Context, uid int64, q model.SceneQuery) ([]*model.Scene, error) {
	return s.listScenes(ctx, &uid, q)
}

func (s *SQLiteDatabase) GetAllScenes(ctx context.Context, q model.SceneQuery) ([]*model.Scene, error) {
	return s.listScenes(ctx, nil, q)
}

var sceneOrderColumns = map[string]string{
	"":      "LOWER(s.scene_name)",
	"name":  "LOWER(s.scene_name)",
	"ctime": "s.ctime",
	"mtime": "mtime",
}

// listScenes lists scenes. A nil uid disables permission filtering.
func (s *SQLiteDatabase) listScenes(ctx context.Context, uid *int64, q model.SceneQuery) ([]*model.Scene, error) {
	limit, offset := q.Limit, q.Offset
	if limit < 0 || offset < 0 {
		return nil, errs.BadRequest("limit and offset must be positive, got %d and %d", limit, offset)
	}
	if limit == 0 {
		limit = DefaultSceneLimit
	}
	limit = min(limit, MaxSceneLimit)

	order, ok := sceneOrderColumns[q.OrderBy]
	if !ok {
		return nil, errs.BadRequest("invalid order field %q", q.OrderBy)
	}
	direction := strings.ToUpper(q.OrderDirection)
	switch direction {
	case "":
		direction = "ASC"
	case "ASC", "DESC":
	default:
		return nil, errs.BadRequest("invalid order direction %q", q.OrderDirection)
	}

	requester := access.DefaultUserID
	if uid != nil {
		requester = *uid
	}
	args := []any{sql.Named("uid", requester)}
	var where []string

	if uid != nil {
		where = append(where, resolvedAccess+` IN ('read', 'write', 'admin')`)

		if len(q.Access) > 0 {
			placeholders := make([]string, len(q.Access))
			for i, level := range q.Access {
				if level == access.Null || !level.Valid() {
					return nil, errs.BadRequest("invalid access filter %v", level)
				}
				name := fmt.Sprintf("a%d", i)
				placeholders[i] = "@" + name
				args = append(args, sql.Named(name, level.String()))
			}
			where = append(where, `json_extract(s.access, '$."' || @uid || '"') IN (`+strings.Join(placeholders, ", ")+`)`)
		}
	}

	for i, term := range strings.Fields(q.Match) {
		name := fmt.Sprintf("m%d", i)
		args = append(args, sql.Named(name, likePattern(term)))
		where = append(where, matchClause("@"+name))
	}

	query := sceneSelect
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, "\n\tAND ")
	}
	query += fmt.Sprintf("\nORDER BY %s %s, s.scene_name ASC\nLIMIT %d OFFSET %d", order, direction, limit, offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing scenes: %w", err)
	}
	defer rows.Close()

	scenes := []*model.Scene{}
	for rows.Next() {
		sc, err := scanScene(rows, requester)
		if err != nil {
			return nil, fmt.Errorf("scanning scene: %w", err)
		}
		scenes = append(scenes, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing scenes: %w", err)
	}
	return scenes, nil
}

// likePattern turns a search term into a LIKE pattern. A leading ^ anchors
// the start and a trailing $ the end; otherwise the term may match anywhere.
// % and _ pass through and * is an alias for %.
func likePattern(term string) string {
	p := strings.ReplaceAll(term, "*", "%")
	if rest, ok := strings.CutPrefix(p, "^"); ok {
		p = rest
	} else {
		p = "%" + p
	}
	if rest, ok := strings.CutSuffix(p, "$"); ok {
		p = rest
	} else {
		p += "%"
	}
	return p
}

// matchClause matches a scene's name, its head document's author, any
// document author, or the titles and leads of the head document's metas.
func matchClause(param string) string {
	return `(s.scene_name LIKE ` + param + `
		OR u.username LIKE ` + param + `
		OR EXISTS (SELECT 1 FROM documents AS e JOIN users AS eu ON eu.user_id = e.fk_author_id
			WHERE e.fk_scene_id = s.scene_id AND eu.username LIKE ` + param + `)
		OR EXISTS (SELECT 1 FROM json_tree(d.data, '$.metas') AS m
			WHERE m.type = 'text'
			AND (m.path LIKE '%.titles' OR m.path LIKE '%.leads')
			AND m.atom LIKE ` + param + `))`
}

func (s *SQLiteDatabase) GetSceneHistory(ctx context.Context, id int64) ([]*model.HistoryEntry, error) {
	if _, err := s.sceneID(ctx, model.ByID(id)); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT d.doc_id AS id, @docname AS name, @docmime AS mime, d.generation AS generation,
			LENGTH(CAST(d.data AS BLOB)) AS size, d.fk_author_id AS author_id, u.username AS author, d.ctime AS ctime
		FROM documents AS d JOIN users AS u ON u.user_id = d.fk_author_id
		WHERE d.fk_scene_id = @id
		UNION ALL
		SELECT f.file_id, f.name, f.mime, f.generation, f.size, f.fk_author_id, u.username, f.ctime
		FROM files AS f JOIN users AS u ON u.user_id = f.fk_author_id
		WHERE f.fk_scene_id = @id
		ORDER BY ctime DESC, name DESC, generation DESC`,
		sql.Named("id", id),
		sql.Named("docname", model.DocumentName),
		sql.Named("docmime", model.DocumentMime),
	)
	if err != nil {
		return nil, fmt.Errorf("getting scene history: %w", err)
	}
	defer rows.Close()

	var entries []*model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Mime, &e.Generation, &e.Size, &e.AuthorID, &e.Author, dbTime{&e.Ctime}); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting scene history: %w", err)
	}
	return entries, nil
}

// sceneID resolves a scene reference to an existing scene id.
func (s *SQLiteDatabase) sceneID(ctx context.Context, scene model.SceneRef) (int64, error) {
	filter, arg := sceneFilter("", scene)
	var id int64
	err := s.q.QueryRowContext(ctx, `SELECT scene_id FROM scenes WHERE `+filter, arg).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errs.NotFound("no scene found matching %s", scene)
	}
	if err != nil {
		return 0, fmt.Errorf("resolving scene: %w", err)
	}
	return id, nil
}
