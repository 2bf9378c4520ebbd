// Package lifecycle decides whether this process owns the index writers.
// Only one process per data directory may write to the indexes; the others
// leave event-driven indexing disabled.
package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Arbiter grants the single-writer role.
type Arbiter interface {
	// TryAcquire attempts to become the writer without blocking.
	TryAcquire() (bool, error)

	// Release gives up the writer role. Safe to call when not held.
	Release() error
}

// Role selects how the writer role is decided.
type Role string

const (
	// RoleAuto takes the role if no other process holds the writer lock.
	RoleAuto Role = "auto"
	// RoleMain always takes the role.
	RoleMain Role = "main"
	// RoleReplica never takes the role.
	RoleReplica Role = "replica"
)

// ParseRole parses a role name. Empty means RoleAuto.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RoleAuto:
		return RoleAuto, nil
	case RoleMain:
		return RoleMain, nil
	case RoleReplica:
		return RoleReplica, nil
	default:
		return "", fmt.Errorf("unknown role %q (want auto, main or replica)", s)
	}
}

// NewArbiter returns the arbiter for role, locking under dataDir for RoleAuto.
func NewArbiter(role Role, dataDir string) Arbiter {
	switch role {
	case RoleMain:
		return StaticArbiter(true)
	case RoleReplica:
		return StaticArbiter(false)
	default:
		return NewFileArbiter(dataDir)
	}
}

// StaticArbiter always answers the same.
type StaticArbiter bool

// TryAcquire implements Arbiter.
func (s StaticArbiter) TryAcquire() (bool, error) { return bool(s), nil }

// Release implements Arbiter.
func (StaticArbiter) Release() error { return nil }

// FileArbiter holds the writer role through an exclusive cross-process file
// lock at <dir>/.writer.lock. Works on all platforms gofrs/flock supports.
type FileArbiter struct {
	path  string
	flock *flock.Flock

	mu     sync.Mutex
	locked bool
}

// NewFileArbiter creates a FileArbiter for dir.
func NewFileArbiter(dir string) *FileArbiter {
	lockPath := filepath.Join(dir, ".writer.lock")
	return &FileArbiter{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryAcquire attempts to take the lock without blocking.
// Returns false when another process holds it.
func (a *FileArbiter) TryAcquire() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.locked {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := a.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire writer lock: %w", err)
	}
	a.locked = acquired
	return acquired, nil
}

// Release unlocks the file. Calling it when not held is a no-op.
func (a *FileArbiter) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.locked {
		return nil
	}
	a.locked = false
	if err := a.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release writer lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (a *FileArbiter) Path() string {
	return a.path
}

// Held reports whether this process holds the lock.
func (a *FileArbiter) Held() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locked
}
