// Package access resolves a user's rights on a scene from the scene's
// permission map.
package access

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Level is an ordered access level. The zero value is Null, meaning
// "no entry", which is weaker than an explicit None.
type Level int

const (
	Null Level = iota
	None
	Read
	Write
	Admin
)

// Reserved user ids used as permission map keys.
const (
	DefaultUserID int64 = 0 // anonymous requests
	AnyUserID     int64 = 1 // any authenticated user
)

var levelNames = map[Level]string{
	None:  "none",
	Read:  "read",
	Write: "write",
	Admin: "admin",
}

// Levels lists the non-null levels in ascending order.
var Levels = []Level{None, Read, Write, Admin}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "null"
}

// Valid reports whether l is one of the defined levels, Null included.
func (l Level) Valid() bool {
	return l >= Null && l <= Admin
}

// AtLeast reports whether l grants everything want grants.
func (l Level) AtLeast(want Level) bool {
	return l >= want
}

// Parse converts a level name. "null" and "" parse to Null.
func Parse(s string) (Level, error) {
	switch s {
	case "", "null":
		return Null, nil
	}
	for l, name := range levelNames {
		if name == s {
			return l, nil
		}
	}
	return Null, fmt.Errorf("invalid access level %q", s)
}

func (l Level) MarshalJSON() ([]byte, error) {
	if l == Null {
		return []byte("null"), nil
	}
	if !l.Valid() {
		return nil, fmt.Errorf("invalid access level %d", int(l))
	}
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Null
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("access level must be a string: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Map is a scene's permission map, keyed by decimal user id.
type Map map[string]Level

// Key returns the map key for a user id.
func Key(uid int64) string {
	return strconv.FormatInt(uid, 10)
}

// Get returns the explicit entry for uid, or Null.
func (m Map) Get(uid int64) Level {
	return m[Key(uid)]
}

// Resolve returns the effective level of uid on a scene:
// the user's own entry, else the any-user entry for authenticated users,
// else the default entry.
func Resolve(m Map, uid int64) Level {
	if l := m.Get(uid); l != Null {
		return l
	}
	if uid > DefaultUserID {
		if l := m.Get(AnyUserID); l != Null {
			return l
		}
	}
	return m.Get(DefaultUserID)
}

// Summary is the per-requester view of a permission map returned with scenes.
type Summary struct {
	User    Level `json:"user"`
	Any     Level `json:"any"`
	Default Level `json:"default"`
}

// Summarize builds the Summary of m for uid. Missing user and any-user
// entries read as None.
func Summarize(m Map, uid int64) Summary {
	s := Summary{
		User:    m.Get(uid),
		Any:     m.Get(AnyUserID),
		Default: m.Get(DefaultUserID),
	}
	if s.User == Null {
		s.User = None
	}
	if s.Any == Null {
		s.Any = None
	}
	return s
}
