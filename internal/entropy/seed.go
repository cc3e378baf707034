// Package entropy provides seeds for world generation when none is
// configured. Seeds come from crypto/rand, falling back to the clock.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"time"
)

// Seed returns a random positive seed. Zero is reserved to mean "pick one
// for me" in configuration, so it is never returned.
func Seed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		slog.Warn("crypto/rand unavailable, seeding from clock", "error", err)
		return clockSeed(time.Now())
	}
	return positive(int64(binary.LittleEndian.Uint64(buf[:]) >> 1))
}

// Resolve returns configured unless it is zero, in which case it draws a
// fresh seed.
func Resolve(configured int64) int64 {
	if configured != 0 {
		return configured
	}
	return Seed()
}

func clockSeed(t time.Time) int64 {
	return positive(t.UnixNano() & (1<<63 - 1))
}

func positive(v int64) int64 {
	if v == 0 {
		return 1
	}
	return v
}
