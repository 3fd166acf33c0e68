package database_test

import (
	"context"
	"errors"
	"testing"

	"ecorpus-go/internal/access"
	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/model"
	"ecorpus-go/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

func TestSQLiteDatabase_AddUser(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t, nil, testutil.NewStubIDGenerator(100))

	u, err := db.AddUser(ctx, "alice", "alice@example.com", true)
	if err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}
	if u.UID != 100 || !u.IsAdministrator {
		t.Errorf("user = %+v, want uid 100 administrator", u)
	}

	got, err := db.GetUserByName(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByName() error = %v", err)
	}
	if *got != *u {
		t.Errorf("GetUserByName() = %+v, want %+v", got, u)
	}

	tests := []struct {
		name, username, email string
		want                  error
	}{
		{"taken username", "alice", "other@example.com", errs.ErrConflict},
		{"taken email", "alicia", "alice@example.com", errs.ErrConflict},
		{"short username", "al", "", errs.ErrBadRequest},
		{"username with spaces", "al ice", "", errs.ErrBadRequest},
		{"invalid email", "bob", "bob-at-example", errs.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.AddUser(ctx, tt.username, tt.email, false); !errors.Is(err, tt.want) {
				t.Errorf("AddUser(%q, %q) error = %v, want %v", tt.username, tt.email, err, tt.want)
			}
		})
	}

	t.Run("users without email", func(t *testing.T) {
		for _, name := range []string{"carol", "dave"} {
			if _, err := db.AddUser(ctx, name, "", false); err != nil {
				t.Fatalf("AddUser(%q) error = %v", name, err)
			}
		}
	})

	t.Run("reserved users are not listed", func(t *testing.T) {
		users, err := db.GetUsers(ctx)
		if err != nil {
			t.Fatalf("GetUsers() error = %v", err)
		}
		var names []string
		for _, u := range users {
			names = append(names, u.Username)
		}
		if !equalNames(names, "alice", "carol", "dave") {
			t.Errorf("GetUsers() = %v, want [alice carol dave]", names)
		}
	})

	if _, err := db.GetUserByName(ctx, "nobody"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("GetUserByName(missing) error = %v, want not found", err)
	}
}

func TestSQLiteDatabase_PatchUser(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t, nil, nil)
	alice := mustAddUser(t, db, "alice")
	mustAddUser(t, db, "bob")

	got, err := db.PatchUser(ctx, alice.UID, model.UserPatch{
		Username:        ptr("alicia"),
		IsAdministrator: ptr(true),
	})
	if err != nil {
		t.Fatalf("PatchUser() error = %v", err)
	}
	if got.Username != "alicia" || !got.IsAdministrator || got.Email != "alice@example.com" {
		t.Errorf("PatchUser() = %+v, want renamed administrator keeping email", got)
	}

	cleared, err := db.PatchUser(ctx, alice.UID, model.UserPatch{Email: ptr("")})
	if err != nil {
		t.Fatalf("PatchUser(clear email) error = %v", err)
	}
	if cleared.Email != "" {
		t.Errorf("Email = %q, want empty", cleared.Email)
	}

	tests := []struct {
		name  string
		uid   int64
		patch model.UserPatch
		want  error
	}{
		{"empty patch", alice.UID, model.UserPatch{}, errs.ErrBadRequest},
		{"taken username", alice.UID, model.UserPatch{Username: ptr("bob")}, errs.ErrConflict},
		{"invalid username", alice.UID, model.UserPatch{Username: ptr("x")}, errs.ErrBadRequest},
		{"reserved user", access.AnyUserID, model.UserPatch{Username: ptr("everyone")}, errs.ErrBadRequest},
		{"missing user", 424242, model.UserPatch{Username: ptr("ghost")}, errs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.PatchUser(ctx, tt.uid, tt.patch); !errors.Is(err, tt.want) {
				t.Errorf("PatchUser() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSQLiteDatabase_RemoveUser(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t, nil, nil)
	alice := mustAddUser(t, db, "alice")
	id := mustCreateScene(t, db, "foo", alice.UID)
	p := fileIn(id, "a.txt")
	p.UserID = alice.UID
	if _, err := db.CreateFile(ctx, p, testutil.Hash([]byte("a")), 1); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	mustWriteDoc(t, db, `{}`, model.ByID(id), alice.UID)

	if err := db.RemoveUser(ctx, alice.UID); err != nil {
		t.Fatalf("RemoveUser() error = %v", err)
	}

	props, err := db.GetFileProps(ctx, fileIn(id, "a.txt"))
	if err != nil {
		t.Fatalf("GetFileProps() error = %v", err)
	}
	if props.AuthorID != access.DefaultUserID || props.Author != "default" {
		t.Errorf("file author = %q (%d), want default", props.Author, props.AuthorID)
	}
	doc, err := db.GetDoc(ctx, id, 0)
	if err != nil {
		t.Fatalf("GetDoc() error = %v", err)
	}
	if doc.AuthorID != access.DefaultUserID {
		t.Errorf("doc AuthorID = %d, want default", doc.AuthorID)
	}

	perms, err := db.GetPermissions(ctx, model.ByID(id))
	if err != nil {
		t.Fatalf("GetPermissions() error = %v", err)
	}
	for _, perm := range perms {
		if perm.UID == alice.UID {
			t.Errorf("permission of removed user still present: %+v", perm)
		}
	}

	if err := db.RemoveUser(ctx, alice.UID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("second RemoveUser() error = %v, want not found", err)
	}
	if err := db.RemoveUser(ctx, access.DefaultUserID); !errors.Is(err, errs.ErrBadRequest) {
		t.Errorf("RemoveUser(default) error = %v, want bad request", err)
	}
}

func TestSQLiteDatabase_Grant(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t, nil, nil)
	alice := mustAddUser(t, db, "alice")
	bob := mustAddUser(t, db, "bob")
	id := mustCreateScene(t, db, "foo", alice.UID)

	t.Run("grants and resolves", func(t *testing.T) {
		if err := db.Grant(ctx, model.ByName("foo"), "bob", access.Write); err != nil {
			t.Fatalf("Grant() error = %v", err)
		}
		level, err := db.GetAccessRights(ctx, model.ByID(id), bob.UID)
		if err != nil {
			t.Fatalf("GetAccessRights() error = %v", err)
		}
		if level != access.Write {
			t.Errorf("bob level = %v, want write", level)
		}

		sc, err := db.GetScene(ctx, model.ByID(id), bob.UID)
		if err != nil {
			t.Fatalf("GetScene() error = %v", err)
		}
		if sc.Access.User != access.Write {
			t.Errorf("Access.User = %v, want write", sc.Access.User)
		}
	})

	t.Run("null removes the entry", func(t *testing.T) {
		if err := db.Grant(ctx, model.ByID(id), "bob", access.Null); err != nil {
			t.Fatalf("Grant(null) error = %v", err)
		}
		level, err := db.GetAccessRights(ctx, model.ByID(id), bob.UID)
		if err != nil {
			t.Fatalf("GetAccessRights() error = %v", err)
		}
		if level != access.Read {
			t.Errorf("bob level = %v, want read from the any-user entry", level)
		}
	})

	t.Run("reserved entries", func(t *testing.T) {
		if err := db.Grant(ctx, model.ByID(id), "default", access.Read); err != nil {
			t.Fatalf("Grant(default) error = %v", err)
		}
		level, err := db.GetAccessRights(ctx, model.ByID(id), access.DefaultUserID)
		if err != nil {
			t.Fatalf("GetAccessRights() error = %v", err)
		}
		if level != access.Read {
			t.Errorf("anonymous level = %v, want read", level)
		}

		if err := db.Grant(ctx, model.ByID(id), "default", access.Null); !errors.Is(err, errs.ErrBadRequest) {
			t.Errorf("Grant(default, null) error = %v, want bad request", err)
		}
	})

	t.Run("errors", func(t *testing.T) {
		if err := db.Grant(ctx, model.ByName("nope"), "bob", access.Read); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("Grant(missing scene) error = %v, want not found", err)
		}
		if err := db.Grant(ctx, model.ByID(id), "nobody", access.Read); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("Grant(missing user) error = %v, want not found", err)
		}
		if err := db.Grant(ctx, model.ByID(id), "bob", access.Level(42)); !errors.Is(err, errs.ErrBadRequest) {
			t.Errorf("Grant(invalid level) error = %v, want bad request", err)
		}
	})
}

func TestSQLiteDatabase_GetAccessRights(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t, nil, nil)
	alice := mustAddUser(t, db, "alice")
	bob := mustAddUser(t, db, "bob")
	id := mustCreateScene(t, db, "foo", alice.UID)

	tests := []struct {
		name string
		uid  int64
		want access.Level
	}{
		{"author", alice.UID, access.Admin},
		{"other user", bob.UID, access.Read},
		{"anonymous", access.DefaultUserID, access.None},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.GetAccessRights(ctx, model.ByID(id), tt.uid)
			if err != nil {
				t.Fatalf("GetAccessRights() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GetAccessRights() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := db.GetAccessRights(ctx, model.ByName("nope"), alice.UID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("GetAccessRights(missing) error = %v, want not found", err)
	}
	if _, err := db.GetPermissions(ctx, model.ByName("nope")); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("GetPermissions(missing) error = %v, want not found", err)
	}
}
