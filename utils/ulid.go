package utils

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyLock sync.Mutex
	entropy     = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID returns a ULID identifying one backfill run. IDs sort by start
// time and stay unique when generated concurrently within one millisecond.
func NewRunID() string {
	return NewRunIDAt(time.Now())
}

// NewRunIDAt returns a run ID stamped with t
func NewRunIDAt(t time.Time) string {
	entropyLock.Lock()
	defer entropyLock.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// RunIDTime extracts the start time encoded in a run ID
func RunIDTime(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
