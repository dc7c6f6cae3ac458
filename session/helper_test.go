package session

import (
	"path/filepath"
	"testing"

	"github.com/murodb/murodb/pager"
)

func openTestSession(t *testing.T) *Session {
	t.Helper()
	t.Setenv("MURODB_INSECURE_PLAINTEXT", "1")
	dir := t.TempDir()
	s, err := Open(Options{
		PagerConfig: pager.PagerConfig{
			DBPath:        filepath.Join(dir, "test.db"),
			WALPath:       filepath.Join(dir, "test.wal"),
			CipherSuiteID: 0,
		},
		Policy: NewCheckpointPolicyFromEnv(),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
