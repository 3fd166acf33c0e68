package database

import (
	"errors"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"

	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/model"
)

func TestLikePattern(t *testing.T) {
	tests := []struct {
		term string
		want string
	}{
		{"foo", "%foo%"},
		{"^foo", "foo%"},
		{"foo$", "%foo"},
		{"^foo$", "foo"},
		{"f*o", "%f%o%"},
		{"f_o", "%f_o%"},
		{"100%", "%100%%"},
	}
	for _, tt := range tests {
		if got := likePattern(tt.term); got != tt.want {
			t.Errorf("likePattern(%q) = %q, want %q", tt.term, got, tt.want)
		}
	}
}

func TestTranslateError(t *testing.T) {
	constraint := func(code sqlite3.ErrNoExtended) error {
		return sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: code}
	}
	tests := []struct {
		name string
		err  error
		want errs.Kind
	}{
		{"unique", constraint(sqlite3.ErrConstraintUnique), errs.KindConflict},
		{"primary key", constraint(sqlite3.ErrConstraintPrimaryKey), errs.KindConflict},
		{"foreign key", constraint(sqlite3.ErrConstraintForeignKey), errs.KindNotFound},
		{"check", constraint(sqlite3.ErrConstraintCheck), errs.KindBadRequest},
		{"not null", constraint(sqlite3.ErrConstraintNotNull), errs.KindBadRequest},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, errs.KindInternal},
		{"plain", errors.New("plain"), errs.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.err)
			if kind := errs.KindOf(got); kind != tt.want {
				t.Errorf("KindOf(translateError()) = %v, want %v", kind, tt.want)
			}
			var driverErr sqlite3.Error
			if _, isDriver := tt.err.(sqlite3.Error); isDriver && !errors.As(got, &driverErr) {
				t.Error("translated error lost the driver error")
			}
		})
	}
}

func TestValidateFileName(t *testing.T) {
	valid := []string{"a", "a.txt", "models/a.glb", "articles/images/b.jpg", ".hidden"}
	for _, name := range valid {
		if err := validateFileName(name); err != nil {
			t.Errorf("validateFileName(%q) error = %v", name, err)
		}
	}
	invalid := []string{"", "/a", "a/", "a//b", "./a", "a/../b", "..", `a\b`, "a\x00b"}
	for _, name := range invalid {
		if err := validateFileName(name); !errors.Is(err, errs.ErrBadRequest) {
			t.Errorf("validateFileName(%q) error = %v, want bad request", name, err)
		}
	}
}

func TestGuessMime(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"scene.svx.json", "application/json"},
		{"models/a.glb", "model/gltf-binary"},
		{"noext", defaultMime},
	}
	for _, tt := range tests {
		if got := guessMime(tt.name); got != tt.want {
			t.Errorf("guessMime(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDBTime(t *testing.T) {
	want := time.Date(2024, 1, 15, 10, 30, 0, 123000000, time.UTC)
	for _, src := range []any{"2024-01-15T10:30:00.123Z", []byte("2024-01-15T10:30:00.123Z"), "2024-01-15T11:30:00.123+01:00", want} {
		var got time.Time
		if err := (dbTime{&got}).Scan(src); err != nil {
			t.Fatalf("Scan(%v) error = %v", src, err)
		}
		if !got.Equal(want) {
			t.Errorf("Scan(%v) = %v, want %v", src, got, want)
		}
	}
	var got time.Time
	if err := (dbTime{&got}).Scan(42); err == nil {
		t.Error("Scan(42) expected error")
	}
}

func TestSceneFilter(t *testing.T) {
	clause, arg := sceneFilter("s", model.ByID(7))
	if clause != "s.scene_id = @scene" || arg.Value != int64(7) {
		t.Errorf("sceneFilter(ByID) = %q, %v", clause, arg.Value)
	}
	clause, arg = sceneFilter("", model.ByName("foo"))
	if clause != "scene_name = @scene" || arg.Value != "foo" {
		t.Errorf("sceneFilter(ByName) = %q, %v", clause, arg.Value)
	}
}
