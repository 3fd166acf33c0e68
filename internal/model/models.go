package model

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ecorpus-go/internal/access"
)

// Folder entries are stored as files with this mime type and hash.
const (
	FolderMime = "text/directory"
	FolderHash = "directory"
)

// Documents appear in scene history under this name and mime type.
const (
	DocumentName = "scene.svx.json"
	DocumentMime = "application/si-dpo-3d.document+json"
)

// SceneRef identifies a scene either by id or by name.
// A non-zero ID takes precedence.
type SceneRef struct {
	ID   int64
	Name string
}

// ByID references a scene by its numeric id.
func ByID(id int64) SceneRef { return SceneRef{ID: id} }

// ByName references a scene by its unique name.
func ByName(name string) SceneRef { return SceneRef{Name: name} }

func (r SceneRef) String() string {
	if r.ID != 0 {
		return strconv.FormatInt(r.ID, 10)
	}
	return r.Name
}

// Scene is a scene row as seen by one requester.
type Scene struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	Ctime    time.Time      `json:"ctime"`
	Mtime    time.Time      `json:"mtime"`
	AuthorID int64          `json:"author_id"`
	Author   string         `json:"author"`
	Thumb    string         `json:"thumb,omitempty"`
	Access   access.Summary `json:"access"`
}

// SceneQuery filters and pages scene listings.
type SceneQuery struct {
	// Access keeps scenes where the requester's own entry is one of these levels.
	Access []access.Level
	// Match is a whitespace separated list of patterns, all of which must match.
	Match          string
	Limit          int
	Offset         int
	OrderBy        string // "name" (default), "ctime" or "mtime"
	OrderDirection string // "asc" or "desc"
}

// Permission is one explicit entry of a scene's permission map.
type Permission struct {
	UID      int64        `json:"uid"`
	Username string       `json:"username"`
	Access   access.Level `json:"access"`
}

// FileParams addresses a named file within a scene.
type FileParams struct {
	Scene  SceneRef
	Name   string
	UserID int64
	// Mime is only used on writes. Empty keeps the previous generation's type.
	Mime string
	// Archive allows reading a file whose current generation is a delete marker.
	Archive bool
}

// FileProps describes one generation of a file.
// Ctime is the creation time of the file's first generation and Mtime the
// creation time of the described generation.
type FileProps struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Generation int64     `json:"generation"`
	Hash       string    `json:"hash"` // empty for delete markers
	Size       int64     `json:"size"`
	Mime       string    `json:"mime"`
	AuthorID   int64     `json:"author_id"`
	Author     string    `json:"author"`
	Ctime      time.Time `json:"ctime"`
	Mtime      time.Time `json:"mtime"`
}

// Deleted reports whether this generation is a delete marker.
func (f *FileProps) Deleted() bool { return f.Hash == "" }

// IsFolder reports whether the entry is a folder.
func (f *FileProps) IsFolder() bool { return f.Mime == FolderMime }

// ETag returns a weak entity tag derived from the content hash.
func (f *FileProps) ETag() string {
	return fmt.Sprintf("W/%q", f.Hash)
}

// LastModified formats Mtime for an HTTP Last-Modified header.
func (f *FileProps) LastModified() string {
	return f.Mtime.UTC().Format(http.TimeFormat)
}

// DocRef identifies a freshly written document generation.
type DocRef struct {
	ID         int64 `json:"id"`
	Generation int64 `json:"generation"`
}

// DocProps is one generation of a scene document.
type DocProps struct {
	ID         int64     `json:"id"`
	SceneID    int64     `json:"scene_id"`
	Generation int64     `json:"generation"`
	Data       string    `json:"data"`
	Size       int64     `json:"size"`
	AuthorID   int64     `json:"author_id"`
	Author     string    `json:"author"`
	Ctime      time.Time `json:"ctime"`
}

// HistoryEntry is one row of a scene's combined file and document history.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Mime       string    `json:"mime"`
	Generation int64     `json:"generation"`
	Size       int64     `json:"size"`
	AuthorID   int64     `json:"author_id"`
	Author     string    `json:"author"`
	Ctime      time.Time `json:"ctime"`
}

// User is a registered identity. Authentication is handled elsewhere.
type User struct {
	UID             int64  `json:"uid"`
	Username        string `json:"username"`
	Email           string `json:"email,omitempty"`
	IsAdministrator bool   `json:"isAdministrator"`
}

// UserPatch lists the user fields that may be updated. Nil fields are left unchanged.
type UserPatch struct {
	Username        *string
	Email           *string
	IsAdministrator *bool
}
