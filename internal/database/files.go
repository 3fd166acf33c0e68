package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/model"
)

const defaultMime = "application/octet-stream"

// isHead restricts the files row aliased as f to its name's latest generation.
const isHead = `f.generation = (SELECT MAX(generation) FROM files WHERE fk_scene_id = f.fk_scene_id AND name = f.name)`

// validateFileName rejects names that are not clean relative paths.
func validateFileName(name string) error {
	if name == "" {
		return errs.BadRequest("file name must not be empty")
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return errs.BadRequest("invalid file name %q: leading or trailing slash", name)
	}
	if strings.ContainsAny(name, "\\\x00") {
		return errs.BadRequest("invalid file name %q", name)
	}
	for _, segment := range strings.Split(name, "/") {
		switch segment {
		case "", ".", "..":
			return errs.BadRequest("invalid file name %q", name)
		}
	}
	return nil
}

// guessMime derives a content type from the file extension.
func guessMime(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".glb":
		return "model/gltf-binary"
	case ".gltf":
		return "model/gltf+json"
	}
	return defaultMime
}

func nullableHash(hash string) sql.NullString {
	return sql.NullString{String: hash, Valid: hash != ""}
}

func (s *SQLiteDatabase) CreateFile(ctx context.Context, p model.FileParams, hash string, size int64) (*model.FileProps, error) {
	if err := validateFileName(p.Name); err != nil {
		return nil, err
	}

	// Generation and mime inheritance are computed by the insert itself so
	// that concurrent writers to one name get distinct generations.
	filter, arg := sceneFilter("s", p.Scene)
	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO files (fk_scene_id, name, generation, hash, size, mime, fk_author_id, ctime)
		SELECT s.scene_id, @name,
			COALESCE((SELECT MAX(generation) FROM files WHERE fk_scene_id = s.scene_id AND name = @name), 0) + 1,
			@hash, @size,
			COALESCE(NULLIF(@mime, ''),
				(SELECT mime FROM files WHERE fk_scene_id = s.scene_id AND name = @name ORDER BY generation DESC LIMIT 1),
				@guess),
			@author, @ctime
		FROM scenes AS s
		WHERE `+filter+`
		RETURNING file_id`,
		arg,
		sql.Named("name", p.Name),
		sql.Named("hash", nullableHash(hash)),
		sql.Named("size", size),
		sql.Named("mime", p.Mime),
		sql.Named("guess", guessMime(p.Name)),
		sql.Named("author", p.UserID),
		sql.Named("ctime", s.now()),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("no scene found matching %s", p.Scene)
	}
	if err != nil {
		return nil, fmt.Errorf("creating file %s: %w", p.Name, translateError(err))
	}
	return s.getFileByID(ctx, id)
}

func (s *SQLiteDatabase) RemoveFile(ctx context.Context, p model.FileParams) (*model.FileProps, error) {
	if err := validateFileName(p.Name); err != nil {
		return nil, err
	}
	sceneID, err := s.sceneID(ctx, p.Scene)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO files (fk_scene_id, name, generation, hash, size, mime, fk_author_id, ctime)
		SELECT f.fk_scene_id, f.name, f.generation + 1, NULL, 0, f.mime, @author, @ctime
		FROM files AS f
		WHERE f.fk_scene_id = @scene AND f.name = @name
			AND f.hash IS NOT NULL AND f.mime != @folder AND `+isHead+`
		RETURNING file_id`,
		sql.Named("scene", sceneID),
		sql.Named("name", p.Name),
		sql.Named("folder", model.FolderMime),
		sql.Named("author", p.UserID),
		sql.Named("ctime", s.now()),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		if err := s.explainMissingFile(ctx, sceneID, p.Name, true); err != nil {
			return nil, err
		}
		return nil, errs.Conflict("file %q changed concurrently", p.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("removing file %s: %w", p.Name, translateError(err))
	}
	return s.getFileByID(ctx, id)
}

func (s *SQLiteDatabase) RenameFile(ctx context.Context, p model.FileParams, next string) (*model.FileProps, error) {
	if err := validateFileName(p.Name); err != nil {
		return nil, err
	}
	if err := validateFileName(next); err != nil {
		return nil, err
	}
	if p.Name == next {
		return nil, errs.BadRequest("cannot rename %q to itself", next)
	}
	sceneID, err := s.sceneID(ctx, p.Scene)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.transaction(ctx, func(tx *SQLiteDatabase) error {
		ctime := tx.now()
		args := []any{
			sql.Named("scene", sceneID),
			sql.Named("name", p.Name),
			sql.Named("next", next),
			sql.Named("folder", model.FolderMime),
			sql.Named("author", p.UserID),
			sql.Named("ctime", ctime),
		}

		err := tx.q.QueryRowContext(ctx, `
			INSERT INTO files (fk_scene_id, name, generation, hash, size, mime, fk_author_id, ctime)
			SELECT f.fk_scene_id, @next,
				COALESCE((SELECT MAX(generation) FROM files WHERE fk_scene_id = f.fk_scene_id AND name = @next), 0) + 1,
				f.hash, f.size, f.mime, @author, @ctime
			FROM files AS f
			WHERE f.fk_scene_id = @scene AND f.name = @name
				AND f.hash IS NOT NULL AND f.mime != @folder AND `+isHead+`
				AND NOT EXISTS (
					SELECT 1 FROM files AS t
					WHERE t.fk_scene_id = f.fk_scene_id AND t.name = @next AND t.hash IS NOT NULL
						AND t.generation = (SELECT MAX(generation) FROM files WHERE fk_scene_id = t.fk_scene_id AND name = t.name))
			RETURNING file_id`, args...).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			if err := tx.explainMissingFile(ctx, sceneID, p.Name, false); err != nil {
				return err
			}
			return errs.Conflict("a file named %q already exists", next)
		}
		if err != nil {
			return fmt.Errorf("renaming %s to %s: %w", p.Name, next, translateError(err))
		}

		_, err = tx.q.ExecContext(ctx, `
			INSERT INTO files (fk_scene_id, name, generation, hash, size, mime, fk_author_id, ctime)
			SELECT f.fk_scene_id, f.name, f.generation + 1, NULL, 0, f.mime, @author, @ctime
			FROM files AS f
			WHERE f.fk_scene_id = @scene AND f.name = @name AND `+isHead, args...)
		if err != nil {
			return fmt.Errorf("removing %s: %w", p.Name, translateError(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.getFileByID(ctx, id)
}

// explainMissingFile returns the error for a file whose head could not be
// used: never written or deleted (not found, or conflict when removing),
// or a folder. It returns nil when the head is a live file.
func (s *SQLiteDatabase) explainMissingFile(ctx context.Context, sceneID int64, name string, removing bool) error {
	head, err := s.fileHead(ctx, sceneID, name)
	if err != nil {
		return err
	}
	switch {
	case head.Deleted() && removing:
		return errs.Conflict("file %q is already deleted", name)
	case head.Deleted():
		return errs.NotFound("file %q was deleted", name)
	case head.IsFolder():
		return errs.BadRequest("%q is a folder", name)
	}
	return nil
}

// fileHead returns the latest generation of a name, delete markers included.
func (s *SQLiteDatabase) fileHead(ctx context.Context, sceneID int64, name string) (*model.FileProps, error) {
	row := s.q.QueryRowContext(ctx, fileSelect+`
		WHERE f.fk_scene_id = @scene AND f.name = @name
		ORDER BY f.generation DESC
		LIMIT 1`,
		sql.Named("scene", sceneID), sql.Named("name", name))
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("file %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting file %s: %w", name, err)
	}
	return f, nil
}

func (s *SQLiteDatabase) getFileByID(ctx context.Context, id int64) (*model.FileProps, error) {
	f, err := scanFile(s.q.QueryRowContext(ctx, fileSelect+` WHERE f.file_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("no file with id %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting file %d: %w", id, err)
	}
	return f, nil
}

func (s *SQLiteDatabase) GetFileProps(ctx context.Context, p model.FileParams) (*model.FileProps, error) {
	if err := validateFileName(p.Name); err != nil {
		return nil, err
	}
	sceneID, err := s.sceneID(ctx, p.Scene)
	if err != nil {
		return nil, err
	}
	head, err := s.fileHead(ctx, sceneID, p.Name)
	if err != nil {
		return nil, err
	}
	if head.Deleted() && !p.Archive {
		return nil, errs.NotFound("file %q was deleted", p.Name)
	}
	return head, nil
}

func (s *SQLiteDatabase) GetFileHistory(ctx context.Context, p model.FileParams) ([]*model.FileProps, error) {
	if err := validateFileName(p.Name); err != nil {
		return nil, err
	}
	sceneID, err := s.sceneID(ctx, p.Scene)
	if err != nil {
		return nil, err
	}

	files, err := s.queryFiles(ctx, fileSelect+`
		WHERE f.fk_scene_id = @scene AND f.name = @name
		ORDER BY f.generation DESC`,
		sql.Named("scene", sceneID), sql.Named("name", p.Name))
	if err != nil {
		return nil, fmt.Errorf("getting history of %s: %w", p.Name, err)
	}
	if len(files) == 0 {
		return nil, errs.NotFound("file %q not found", p.Name)
	}
	if files[0].Deleted() && !p.Archive {
		return nil, errs.NotFound("file %q was deleted", p.Name)
	}
	return files, nil
}

func (s *SQLiteDatabase) ListFiles(ctx context.Context, scene model.SceneRef, withArchived bool) ([]*model.FileProps, error) {
	sceneID, err := s.sceneID(ctx, scene)
	if err != nil {
		return nil, err
	}

	query := fileSelect + `
		WHERE f.fk_scene_id = @scene AND f.mime != @folder AND ` + isHead
	if !withArchived {
		query += ` AND f.hash IS NOT NULL`
	}
	query += ` ORDER BY f.ctime DESC, f.name ASC`

	files, err := s.queryFiles(ctx, query, sql.Named("scene", sceneID), sql.Named("folder", model.FolderMime))
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

func (s *SQLiteDatabase) CreateFolder(ctx context.Context, p model.FileParams) (*model.FileProps, error) {
	if err := validateFileName(p.Name); err != nil {
		return nil, err
	}
	sceneID, err := s.sceneID(ctx, p.Scene)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO files (fk_scene_id, name, generation, hash, size, mime, fk_author_id, ctime)
		SELECT @scene, @name,
			COALESCE((SELECT MAX(generation) FROM files WHERE fk_scene_id = @scene AND name = @name), 0) + 1,
			@hash, 0, @folder, @author, @ctime
		WHERE NOT EXISTS (
			SELECT 1 FROM files AS f
			WHERE f.fk_scene_id = @scene AND f.name = @name AND f.hash IS NOT NULL AND `+isHead+`)
		RETURNING file_id`,
		sql.Named("scene", sceneID),
		sql.Named("name", p.Name),
		sql.Named("hash", model.FolderHash),
		sql.Named("folder", model.FolderMime),
		sql.Named("author", p.UserID),
		sql.Named("ctime", s.now()),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Conflict("%q already exists", p.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("creating folder %s: %w", p.Name, translateError(err))
	}
	return s.getFileByID(ctx, id)
}

func (s *SQLiteDatabase) RemoveFolder(ctx context.Context, p model.FileParams) error {
	if err := validateFileName(p.Name); err != nil {
		return err
	}
	sceneID, err := s.sceneID(ctx, p.Scene)
	if err != nil {
		return err
	}

	return s.transaction(ctx, func(tx *SQLiteDatabase) error {
		args := []any{
			sql.Named("scene", sceneID),
			sql.Named("name", p.Name),
			sql.Named("prefix", p.Name+"/"),
			sql.Named("folder", model.FolderMime),
			sql.Named("author", p.UserID),
			sql.Named("ctime", tx.now()),
		}

		res, err := tx.q.ExecContext(ctx, `
			INSERT INTO files (fk_scene_id, name, generation, hash, size, mime, fk_author_id, ctime)
			SELECT f.fk_scene_id, f.name, f.generation + 1, NULL, 0, f.mime, @author, @ctime
			FROM files AS f
			WHERE f.fk_scene_id = @scene AND f.name = @name
				AND f.hash IS NOT NULL AND f.mime = @folder AND `+isHead, args...)
		if err != nil {
			return fmt.Errorf("removing folder %s: %w", p.Name, translateError(err))
		}
		if err := expectOneRow(res, "folder %q not found", p.Name); err != nil {
			return err
		}

		_, err = tx.q.ExecContext(ctx, `
			INSERT INTO files (fk_scene_id, name, generation, hash, size, mime, fk_author_id, ctime)
			SELECT f.fk_scene_id, f.name, f.generation + 1, NULL, 0, f.mime, @author, @ctime
			FROM files AS f
			WHERE f.fk_scene_id = @scene AND substr(f.name, 1, length(@prefix)) = @prefix
				AND f.hash IS NOT NULL AND `+isHead, args...)
		if err != nil {
			return fmt.Errorf("removing content of folder %s: %w", p.Name, translateError(err))
		}
		return nil
	})
}

func (s *SQLiteDatabase) ListFolders(ctx context.Context, scene model.SceneRef) ([]*model.FileProps, error) {
	sceneID, err := s.sceneID(ctx, scene)
	if err != nil {
		return nil, err
	}
	folders, err := s.queryFiles(ctx, fileSelect+`
		WHERE f.fk_scene_id = @scene AND f.mime = @folder AND f.hash IS NOT NULL AND `+isHead+`
		ORDER BY f.name ASC`,
		sql.Named("scene", sceneID), sql.Named("folder", model.FolderMime))
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return folders, nil
}

func (s *SQLiteDatabase) queryFiles(ctx context.Context, query string, args ...any) ([]*model.FileProps, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []*model.FileProps{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
