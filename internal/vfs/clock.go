package vfs

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Clock abstracts time retrieval so stored timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator produces candidate ids for scenes and users.
// Collisions are handled by the caller.
type IDGenerator interface {
	New() int64
}

// RandomIDGenerator draws ids uniformly below 2^53 so they stay exact as
// JSON numbers. The reserved user ids 0 and 1 are never returned.
type RandomIDGenerator struct{}

func (RandomIDGenerator) New() int64 {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic(err)
		}
		id := int64(binary.BigEndian.Uint64(b[:]) >> 11)
		if id > 1 {
			return id
		}
	}
}
