package database

import (
	"database/sql"
	"fmt"
	"time"

	"ecorpus-go/internal/model"
)

// Timestamps are stored as fixed-width UTC text so that lexical order is
// chronological order.
const timeFormat = "2006-01-02T15:04:05.000Z"

func (s *SQLiteDatabase) now() string {
	return s.clock.Now().UTC().Format(timeFormat)
}

// dbTime scans a stored timestamp into a time.Time.
type dbTime struct{ t *time.Time }

func (d dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d.t = time.Time{}
		return nil
	case time.Time:
		*d.t = v.UTC()
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (d dbTime) parse(v string) error {
	t, err := time.Parse(timeFormat, v)
	if err != nil {
		// Rows written by hand or by older tooling may use RFC 3339.
		if t, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return fmt.Errorf("parsing timestamp %q: %w", v, err)
		}
	}
	*d.t = t.UTC()
	return nil
}

// sceneFilter returns a WHERE fragment selecting a scene row by id or name,
// and its bound argument. The fragment references the unqualified columns
// of the scenes table, optionally through alias.
func sceneFilter(alias string, ref model.SceneRef) (string, sql.NamedArg) {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	if ref.ID != 0 {
		return prefix + "scene_id = @scene", sql.Named("scene", ref.ID)
	}
	return prefix + "scene_name = @scene", sql.Named("scene", ref.Name)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// fileSelect projects file rows for scanFile. Ctime is the creation time
// of the name's first generation.
const fileSelect = `
SELECT f.file_id, f.name, f.generation, f.hash, f.size, f.mime, f.fk_author_id, u.username,
	(SELECT MIN(ctime) FROM files WHERE fk_scene_id = f.fk_scene_id AND name = f.name),
	f.ctime
FROM files AS f
JOIN users AS u ON u.user_id = f.fk_author_id`

func scanFile(row rowScanner) (*model.FileProps, error) {
	var (
		f    model.FileProps
		hash sql.NullString
	)
	err := row.Scan(&f.ID, &f.Name, &f.Generation, &hash, &f.Size, &f.Mime,
		&f.AuthorID, &f.Author, dbTime{&f.Ctime}, dbTime{&f.Mtime})
	if err != nil {
		return nil, err
	}
	f.Hash = hash.String
	return &f, nil
}

const docSelect = `
SELECT d.doc_id, d.fk_scene_id, d.generation, d.data, LENGTH(CAST(d.data AS BLOB)), d.fk_author_id, u.username, d.ctime
FROM documents AS d
JOIN users AS u ON u.user_id = d.fk_author_id`

func scanDoc(row rowScanner) (*model.DocProps, error) {
	var d model.DocProps
	err := row.Scan(&d.ID, &d.SceneID, &d.Generation, &d.Data, &d.Size,
		&d.AuthorID, &d.Author, dbTime{&d.Ctime})
	if err != nil {
		return nil, err
	}
	return &d, nil
}
