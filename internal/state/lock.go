package state

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/openmined/reflexmaps/internal/utils"
)

var ErrLocked = errors.New("state: another sync is already running")

// RunLock is an advisory lock next to the state file, held for the length of a run.
type RunLock struct {
	flock *flock.Flock
}

// Lock takes the lock for the state file at statePath without blocking.
func Lock(statePath string) (*RunLock, error) {
	lockPath := statePath + ".lock"
	if err := utils.EnsureParent(lockPath); err != nil {
		return nil, fmt.Errorf("state: lock dir: %w", err)
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("state: lock %q: %w", lockPath, err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return &RunLock{flock: fl}, nil
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	return l.flock.Path()
}

// Unlock releases the lock and removes the lock file.
func (l *RunLock) Unlock() error {
	// if this process hasn't locked the file, then don't delete it
	if !l.flock.Locked() {
		return nil
	}

	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("state: unlock: %w", err)
	}

	if err := os.Remove(l.flock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
