package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/murodb/murodb/pager"
)

func TestSessionExecuteCommitsWriteTransaction(t *testing.T) {
	s := openTestSession(t)

	var root pager.PageID
	err := s.Execute(func(tx *pager.Transaction) error {
		bt, err := pager.CreateBTree(tx, s.pager.PageSize(), tx.TxID())
		if err != nil {
			return err
		}
		if err := bt.Insert(tx.TxID(), []byte("k"), []byte("v")); err != nil {
			return err
		}
		root = bt.Root()
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	result, err := s.ExecuteReadOnlyQuery(StatementQuery, func(store pager.PageStore) (any, error) {
		bt := pager.NewBTree(store, s.pager.PageSize(), root)
		val, ok, err := bt.Get([]byte("k"))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New("key not found")
		}
		return string(val), nil
	})
	if err != nil {
		t.Fatalf("ExecuteReadOnlyQuery: %v", err)
	}
	if result != "v" {
		t.Errorf("read back %q, want %q", result, "v")
	}
}

func TestSessionExecuteRollsBackOnAppError(t *testing.T) {
	s := openTestSession(t)
	wantErr := errors.New("application validation failed")

	err := s.Execute(func(tx *pager.Transaction) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Execute err = %v, want %v", err, wantErr)
	}
	if s.Poisoned() {
		t.Error("an ordinary application error must not poison the session")
	}
}

func TestSessionPoisonedRejectsWrites(t *testing.T) {
	s := openTestSession(t)
	s.mu.Lock()
	s.poisoned = true
	s.mu.Unlock()

	called := false
	err := s.Execute(func(tx *pager.Transaction) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected ErrSessionPoisoned")
	}
	if !errors.Is(err, pager.ErrSessionPoisoned) {
		t.Errorf("err = %v, want ErrSessionPoisoned", err)
	}
	if called {
		t.Error("fn must not run on a poisoned session")
	}
}

func TestSessionPoisonedAllowsStatsButRejectsQueries(t *testing.T) {
	s := openTestSession(t)
	s.mu.Lock()
	s.poisoned = true
	s.mu.Unlock()

	_, err := s.ExecuteReadOnlyQuery(StatementStats, func(store pager.PageStore) (any, error) {
		return s.Stats(), nil
	})
	if err != nil {
		t.Errorf("stats query on a poisoned session should be permitted, got %v", err)
	}

	_, err = s.ExecuteReadOnlyQuery(StatementQuery, func(store pager.PageStore) (any, error) {
		t.Fatal("fn must not run for a rejected statement kind")
		return nil, nil
	})
	if !errors.Is(err, pager.ErrSessionPoisoned) {
		t.Errorf("err = %v, want ErrSessionPoisoned", err)
	}
}

func TestSessionIDIsUnique(t *testing.T) {
	a := openTestSession(t)
	b := openTestSession(t)
	if a.ID == b.ID {
		t.Error("distinct sessions should receive distinct IDs")
	}
}

func TestOpenWithConfigPathOverridesPolicy(t *testing.T) {
	t.Setenv("MURODB_INSECURE_PLAINTEXT", "1")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "murodb.yaml")
	if err := os.WriteFile(cfgPath, []byte("checkpoint_tx_threshold: 5\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := Open(Options{
		PagerConfig: pager.PagerConfig{
			DBPath:        filepath.Join(dir, "test.db"),
			WALPath:       filepath.Join(dir, "test.wal"),
			CipherSuiteID: 0,
		},
		ConfigPath: cfgPath,
		Policy:     NewCheckpointPolicyFromEnv(),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.policy.TxThreshold != 5 {
		t.Errorf("policy.TxThreshold = %d, want 5 (from config file)", s.policy.TxThreshold)
	}
}
