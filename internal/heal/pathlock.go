// File: internal/heal/pathlock.go
package heal

import (
	"path/filepath"
	"sync"
)

// pathLocker serializes fix attempts per artifact path. Two sessions may
// heal different files concurrently, but apply-validate-rollback on one
// file is exclusive.
type pathLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPathLocker() *pathLocker {
	return &pathLocker{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for path and returns its release func. An empty
// path (command-only fixes) gets a no-op release.
func (p *pathLocker) acquire(path string) func() {
	if path == "" {
		return func() {}
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	p.mu.Lock()
	lock, ok := p.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[path] = lock
	}
	p.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
