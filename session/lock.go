package session

import (
	"fmt"

	"github.com/gofrs/flock"
)

// fileLock is the process-level half of the two-level lock: an advisory
// lock on a sibling .lock file, shared for readers and exclusive for the
// single writer. The OS enforces mutual exclusion between processes; the
// in-process sync.RWMutex in Session enforces it between goroutines of the
// same process.
type fileLock struct {
	flock *flock.Flock
}

func newFileLock(path string) *fileLock {
	return &fileLock{flock: flock.New(path)}
}

// lockGuard releases its lock exactly once, on Unlock — matching the
// "release on guard drop" contract: callers must defer Unlock immediately
// after acquiring.
type lockGuard struct {
	fl        *fileLock
	exclusive bool
}

func (g *lockGuard) Unlock() error {
	return g.fl.flock.Unlock()
}

// lockExclusive blocks until the process-level exclusive (write) lock is
// available.
func (fl *fileLock) lockExclusive() (*lockGuard, error) {
	if err := fl.flock.Lock(); err != nil {
		return nil, fmt.Errorf("session: acquire exclusive file lock: %w", err)
	}
	return &lockGuard{fl: fl, exclusive: true}, nil
}

// lockShared blocks until the process-level shared (read) lock is
// available.
func (fl *fileLock) lockShared() (*lockGuard, error) {
	if err := fl.flock.RLock(); err != nil {
		return nil, fmt.Errorf("session: acquire shared file lock: %w", err)
	}
	return &lockGuard{fl: fl}, nil
}

// tryLockExclusive attempts the exclusive lock without blocking, reporting
// false (with a nil guard) if another holder has it.
func (fl *fileLock) tryLockExclusive() (*lockGuard, bool, error) {
	ok, err := fl.flock.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("session: try exclusive file lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &lockGuard{fl: fl, exclusive: true}, true, nil
}
