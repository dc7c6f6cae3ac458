// Package session is the single-writer, multi-reader coordination layer
// sitting on top of pager.Pager: process-level advisory locking, an
// in-process reader-writer lock, commit-in-doubt poisoning, and the
// checkpoint-after-commit policy.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/murodb/murodb/pager"
)

// StatementKind distinguishes statistics-only statements (always allowed,
// even on a poisoned session) from everything else.
type StatementKind int

const (
	// StatementStats is a read of operational counters (Stats, cache
	// occupancy, checkpoint failures) — never touches table data.
	StatementStats StatementKind = iota
	// StatementQuery is an ordinary read against committed data.
	StatementQuery
	// StatementWrite is any statement that opens a write transaction.
	StatementWrite
)

// Options configures a new Session. PagerConfig is passed through to
// pager.OpenPager unchanged; LockPath defaults to PagerConfig.DBPath+".lock"
// if empty. If ConfigPath is set, the YAML file it names is loaded and its
// checkpoint fields (when present) override Policy before Open returns —
// an explicit on-disk config always wins over environment variables.
type Options struct {
	PagerConfig pager.PagerConfig
	LockPath    string
	ConfigPath  string
	Policy      CheckpointPolicy
}

// Session owns one pager.Pager plus the two-level lock that serializes
// writers against each other (process-level) and goroutines against each
// other (in-process). Exactly one transaction may be open at a time per
// Session, matching the single-writer model: Execute takes the write lock
// for its whole duration rather than exposing a separate BEGIN/COMMIT pair
// across calls.
type Session struct {
	ID uuid.UUID

	pager *pager.Pager
	flock *fileLock
	rw    sync.RWMutex

	mu       sync.Mutex // guards poisoned + policy, which Execute mutates under rw already held
	poisoned bool
	policy   CheckpointPolicy

	log zerolog.Logger
}

// Open opens (or creates) a database and its session coordination state.
func Open(opts Options) (*Session, error) {
	policy := opts.Policy
	if opts.ConfigPath != "" {
		cfg, err := LoadConfig(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.applyTo(&policy)
		if cfg.PageSize != 0 {
			opts.PagerConfig.PageSize = cfg.PageSize
		}
		if cfg.MaxCachePages != 0 {
			opts.PagerConfig.MaxCachePages = cfg.MaxCachePages
		}
	}

	p, err := pager.OpenPager(opts.PagerConfig)
	if err != nil {
		return nil, fmt.Errorf("session: open pager: %w", err)
	}

	lockPath := opts.LockPath
	if lockPath == "" {
		lockPath = opts.PagerConfig.DBPath + ".lock"
	}

	id := uuid.New()
	s := &Session{
		ID:     id,
		pager:  p,
		flock:  newFileLock(lockPath),
		policy: policy,
		log:    log.With().Str("component", "session").Str("session_id", id.String()).Logger(),
	}
	s.log.Info().Str("db_path", opts.PagerConfig.DBPath).Msg("session opened")
	return s, nil
}

// Close releases the pager and its file handles. The process-level lock is
// released implicitly when the process exits or the lock file descriptor
// is closed; Session never holds it across calls, only for the duration of
// one Execute/ExecuteReadOnlyQuery.
func (s *Session) Close() error {
	s.log.Info().Msg("session closed")
	return s.pager.Close()
}

// WriteFunc performs one write transaction's worth of work against a fresh
// *pager.Transaction and returns an application-level error, if any. A
// non-nil error rolls the transaction back; Execute never calls Commit if
// fn fails.
type WriteFunc func(tx *pager.Transaction) error

// Execute runs fn inside a new write transaction under the full two-level
// lock (process-level exclusive, then in-process exclusive). On success it
// commits; after the commit, or after the rollback when fn fails, it
// attempts a checkpoint subject to the checkpoint policy. A
// CommitInDoubt from the commit poisons the session for all future writes
// until it is reopened.
func (s *Session) Execute(fn WriteFunc) error {
	s.mu.Lock()
	poisoned := s.poisoned
	s.mu.Unlock()
	if poisoned {
		return pager.ErrSessionPoisoned
	}

	guard, err := s.flock.lockExclusive()
	if err != nil {
		return err
	}
	defer guard.Unlock()

	s.rw.Lock()
	defer s.rw.Unlock()

	tx := pager.Begin(s.pager)
	if err := fn(tx); err != nil {
		tx.Rollback()
		s.maybeCheckpoint()
		return err
	}
	if err := tx.Commit(); err != nil {
		if isCommitInDoubt(err) {
			s.mu.Lock()
			s.poisoned = true
			s.mu.Unlock()
			s.log.Error().Err(err).Msg("commit in doubt; session poisoned")
		}
		return err
	}

	s.mu.Lock()
	s.policy.observeCommit()
	s.mu.Unlock()
	s.maybeCheckpoint()
	return nil
}

// ReadFunc performs one read-only operation against the pager directly
// (which implements pager.PageStore for reads) and returns a result value
// plus an error.
type ReadFunc func(store pager.PageStore) (any, error)

// ExecuteReadOnlyQuery runs fn under the shared half of the two-level lock.
// On a poisoned session, only StatementStats is permitted; every other
// kind is rejected with ErrSessionPoisoned without ever taking a lock.
func (s *Session) ExecuteReadOnlyQuery(kind StatementKind, fn ReadFunc) (any, error) {
	s.mu.Lock()
	poisoned := s.poisoned
	s.mu.Unlock()
	if poisoned && kind != StatementStats {
		return nil, pager.ErrSessionPoisoned
	}

	guard, err := s.flock.lockShared()
	if err != nil {
		return nil, err
	}
	defer guard.Unlock()

	s.rw.RLock()
	defer s.rw.RUnlock()

	return fn(s.pager)
}

// Stats returns the underlying pager's operational counters. Safe to call
// on a poisoned session.
func (s *Session) Stats() pager.Stats {
	return s.pager.Stats()
}

// Poisoned reports whether a prior commit left this session unable to
// accept further writes.
func (s *Session) Poisoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poisoned
}

func isCommitInDoubt(err error) bool {
	return errors.Is(err, pager.ErrCommitInDoubt)
}

func (s *Session) maybeCheckpoint() {
	s.mu.Lock()
	walBytes := s.pager.WALSize()
	due := s.policy.shouldCheckpoint(walBytes)
	s.mu.Unlock()
	if !due {
		return
	}

	s.policy.runCheckpoint(s.pager.Checkpoint, func(err error) {
		s.log.Warn().Err(err).Msg("checkpoint attempt failed")
	})
}
