package fts

import (
	"path/filepath"
	"testing"

	"github.com/murodb/murodb/pager"
)

// newTestPager opens a fresh plaintext-suite pager rooted in t.TempDir(),
// matching the teacher's style of exercising real file-backed storage in
// tests rather than mocking the pager.
func newTestPager(t *testing.T) *pager.Pager {
	t.Helper()
	t.Setenv("MURODB_INSECURE_PLAINTEXT", "1")
	dir := t.TempDir()
	p, err := pager.OpenPager(pager.PagerConfig{
		DBPath:        filepath.Join(dir, "test.db"),
		WALPath:       filepath.Join(dir, "test.wal"),
		CipherSuiteID: 0,
	})
	if err != nil {
		t.Fatalf("OpenPager: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

var testTermKey = []byte("fts-package-test-term-key-000000")
