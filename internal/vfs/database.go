package vfs

import (
	"context"

	"ecorpus-go/internal/access"
	"ecorpus-go/internal/model"
)

// Database is the relational store behind the engine.
//
// Errors are classified with the errs package: unique violations surface as
// conflicts, dangling references as not-found.
type Database interface {
	// Transaction runs work inside a transaction that commits when work
	// returns nil and rolls back otherwise. On a handle that is already
	// transactional, work joins the current transaction.
	Transaction(ctx context.Context, work func(tx Database) error) error

	// Isolate is like Transaction but always uses a new connection, so it
	// may be nested: an inner failure only rolls back the inner scope, and
	// the inner scope never sees its parent's uncommitted writes.
	//
	// Scopes are SQLite deferred transactions with a single writer. Once a
	// parent has written, a nested scope can only read: its first write
	// waits for the busy timeout and then fails with SQLITE_BUSY, since the
	// parent cannot commit while it waits.
	Isolate(ctx context.Context, work func(tx Database) error) error

	// Scenes

	// CreateScene registers a scene with default permissions, granting admin
	// to authorID when it is a real user.
	CreateScene(ctx context.Context, name string, authorID int64) (int64, error)

	// CreateSceneWithPermissions registers a scene with an explicit permission map.
	CreateSceneWithPermissions(ctx context.Context, name string, perms access.Map) (int64, error)

	// RemoveScene deletes a scene with all its files and documents.
	RemoveScene(ctx context.Context, scene model.SceneRef) error

	// ArchiveScene hides a scene from everyone but administrators.
	ArchiveScene(ctx context.Context, scene model.SceneRef) error

	RenameScene(ctx context.Context, id int64, next string) error

	// GetScene returns a scene as seen by uid.
	GetScene(ctx context.Context, scene model.SceneRef, uid int64) (*model.Scene, error)

	// GetScenes lists the scenes uid can at least read.
	GetScenes(ctx context.Context, uid int64, q model.SceneQuery) ([]*model.Scene, error)

	// GetAllScenes lists every scene regardless of permissions.
	GetAllScenes(ctx context.Context, q model.SceneQuery) ([]*model.Scene, error)

	// GetSceneHistory merges file and document generations, newest first.
	GetSceneHistory(ctx context.Context, id int64) ([]*model.HistoryEntry, error)

	// Files

	// CreateFile appends a generation holding the given object. An empty
	// hash records a delete marker.
	CreateFile(ctx context.Context, p model.FileParams, hash string, size int64) (*model.FileProps, error)

	// RemoveFile appends a delete marker.
	RemoveFile(ctx context.Context, p model.FileParams) (*model.FileProps, error)

	// RenameFile moves the current generation of p to next.
	RenameFile(ctx context.Context, p model.FileParams, next string) (*model.FileProps, error)

	GetFileProps(ctx context.Context, p model.FileParams) (*model.FileProps, error)

	// GetFileHistory returns every generation of a file, newest first.
	GetFileHistory(ctx context.Context, p model.FileParams) ([]*model.FileProps, error)

	// ListFiles returns the current generation of each file of a scene.
	ListFiles(ctx context.Context, scene model.SceneRef, withArchived bool) ([]*model.FileProps, error)

	CreateFolder(ctx context.Context, p model.FileParams) (*model.FileProps, error)

	// RemoveFolder deletes a folder and every file below it.
	RemoveFolder(ctx context.Context, p model.FileParams) error

	ListFolders(ctx context.Context, scene model.SceneRef) ([]*model.FileProps, error)

	// Documents

	// WriteDoc appends a document generation.
	WriteDoc(ctx context.Context, data string, scene model.SceneRef, authorID int64) (*model.DocRef, error)

	// GetDoc returns a document generation; generation 0 means the latest.
	GetDoc(ctx context.Context, sceneID int64, generation int64) (*model.DocProps, error)

	GetDocByID(ctx context.Context, id int64) (*model.DocProps, error)

	// GetDocHistory returns every document generation, newest first.
	GetDocHistory(ctx context.Context, sceneID int64) ([]*model.DocProps, error)

	// Users and permissions

	AddUser(ctx context.Context, username, email string, isAdministrator bool) (*model.User, error)
	GetUserByName(ctx context.Context, username string) (*model.User, error)
	GetUsers(ctx context.Context) ([]*model.User, error)
	PatchUser(ctx context.Context, uid int64, patch model.UserPatch) (*model.User, error)
	RemoveUser(ctx context.Context, uid int64) error

	// Grant sets username's entry on a scene. access.Null removes the entry.
	Grant(ctx context.Context, scene model.SceneRef, username string, level access.Level) error

	// GetAccessRights resolves uid's effective level on a scene.
	GetAccessRights(ctx context.Context, scene model.SceneRef, uid int64) (access.Level, error)

	// GetPermissions lists the explicit entries of a scene's permission map.
	GetPermissions(ctx context.Context, scene model.SceneRef) ([]*model.Permission, error)

	// CheckMigrations verifies the schema is up-to-date.
	CheckMigrations() error

	// Close closes the database connection.
	Close() error
}
