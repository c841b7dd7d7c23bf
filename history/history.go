// Package history keeps the in-memory, append-only record of paths passed to
// the upload command. It lives for the process lifetime and is never
// persisted.
package history

import (
	"errors"
	"sync"
)

// ErrPoisoned is the panic value raised when the tracker is used after a
// panic unwound through a held lock. The shared sequence may be corrupt at
// that point, so callers are not given a chance to continue.
var ErrPoisoned = errors.New("history: tracker poisoned by a panic while locked")

// Tracker is an ordered sequence of uploaded paths guarded by a mutex.
// The zero value is ready to use.
type Tracker struct {
	mu       sync.Mutex
	paths    []string
	poisoned bool
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

// Record appends path. Concurrent calls are serialized; their relative order
// is the order in which they acquire the lock.
func (t *Tracker) Record(path string) {
	t.withLock(func(paths []string) []string {
		return append(paths, path)
	})
}

// Len returns the number of records.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.poisoned {
		panic(ErrPoisoned)
	}
	return len(t.paths)
}

// withLock runs fn inside the critical section. A panic inside fn poisons the
// tracker before the lock is released.
func (t *Tracker) withLock(fn func([]string) []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.poisoned {
		panic(ErrPoisoned)
	}

	done := false
	defer func() {
		if !done {
			t.poisoned = true
		}
	}()
	t.paths = fn(t.paths)
	done = true
}
