package session

import (
	"path/filepath"
	"testing"
)

func TestFileLockExclusiveBlocksSecondExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	a := newFileLock(path)
	b := newFileLock(path)

	guard, err := a.lockExclusive()
	if err != nil {
		t.Fatalf("a.lockExclusive: %v", err)
	}
	defer guard.Unlock()

	_, ok, err := b.tryLockExclusive()
	if err != nil {
		t.Fatalf("b.tryLockExclusive: %v", err)
	}
	if ok {
		t.Fatal("expected second exclusive lock attempt to fail while the first is held")
	}
}

func TestFileLockExclusiveReleasesOnUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	a := newFileLock(path)
	b := newFileLock(path)

	guard, err := a.lockExclusive()
	if err != nil {
		t.Fatalf("a.lockExclusive: %v", err)
	}
	if err := guard.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	bGuard, ok, err := b.tryLockExclusive()
	if err != nil {
		t.Fatalf("b.tryLockExclusive: %v", err)
	}
	if !ok {
		t.Fatal("expected exclusive lock to be available after the first holder released it")
	}
	bGuard.Unlock()
}

func TestFileLockSharedAllowsMultipleReaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	a := newFileLock(path)
	b := newFileLock(path)

	g1, err := a.lockShared()
	if err != nil {
		t.Fatalf("a.lockShared: %v", err)
	}
	defer g1.Unlock()

	g2, err := b.lockShared()
	if err != nil {
		t.Fatalf("b.lockShared (concurrent reader): %v", err)
	}
	defer g2.Unlock()
}
