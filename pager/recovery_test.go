package pager

import (
	"path/filepath"
	"testing"
)

// simulateCrash closes the underlying WAL and data file directly, bypassing
// Close()'s checkpoint, so the next OpenPager must go through Recover().
func simulateCrash(t *testing.T, p *Pager) {
	t.Helper()
	if err := p.wal.Close(); err != nil {
		t.Fatalf("close wal: %v", err)
	}
	if err := p.file.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func TestRecoveryCommittedTxApplied(t *testing.T) {
	t.Setenv("MURODB_INSECURE_PLAINTEXT", "1")
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	p, err := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	if err != nil {
		t.Fatal(err)
	}

	tx := Begin(p)
	bt, err := CreateBTree(tx, p.PageSize(), tx.TxID())
	if err != nil {
		t.Fatal(err)
	}
	if err := bt.Insert(tx.TxID(), []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	tx.SetCatalogRoot(bt.Root())
	root := bt.Root()
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	simulateCrash(t, p)

	p2, err := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	if err != nil {
		t.Fatalf("reopen after crash: %v", err)
	}
	defer p2.Close()

	if p2.CatalogRoot() != root {
		t.Fatalf("CatalogRoot after recovery = %d, want %d", p2.CatalogRoot(), root)
	}
	bt2 := NewBTree(p2, p2.PageSize(), root)
	val, found, err := bt2.Get([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "v" {
		t.Fatalf("got %q/%v want v/true", val, found)
	}

	if walSize := p2.WALSize(); walSize != WALFileHdrSize {
		t.Fatalf("WAL should be truncated to just its header after recovery, size=%d", walSize)
	}
}

func TestRecoveryUncommittedTxIgnored(t *testing.T) {
	t.Setenv("MURODB_INSECURE_PLAINTEXT", "1")
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	p, err := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	if err != nil {
		t.Fatal(err)
	}

	pageBuf := NewPage(p.PageSize(), PageTypeBTreeLeaf, 42)
	InitBTreePage(pageBuf, 42, true)
	SetPageCRC(pageBuf)
	if _, err := p.wal.AppendRecord(&WALRecord{Type: WALRecordPageImage, TxID: 77, PageID: 42, Data: pageBuf}); err != nil {
		t.Fatalf("append page image: %v", err)
	}
	if _, err := p.wal.AppendRecord(&WALRecord{
		Type: WALRecordMetaUpdate,
		TxID: 77,
		Meta: &MetaUpdatePayload{CatalogRoot: 555, NextPageID: 1000, NextTxID: 78, Epoch: p.Epoch()},
	}); err != nil {
		t.Fatalf("append meta update: %v", err)
	}
	if err := p.wal.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	// deliberately no WALRecordCommit

	simulateCrash(t, p)

	p2, err := OpenPager(PagerConfig{DBPath: dbPath, PageSize: DefaultPageSize})
	if err != nil {
		t.Fatalf("reopen after crash: %v", err)
	}
	defer p2.Close()

	if p2.CatalogRoot() == PageID(555) {
		t.Fatal("uncommitted meta update should not have been applied")
	}
	if p2.NextPageID() == PageID(1000) {
		t.Fatal("uncommitted meta update should not have advanced NextPageID")
	}

	if walSize := p2.WALSize(); walSize != WALFileHdrSize {
		t.Fatalf("WAL should be truncated even when nothing was applied, size=%d", walSize)
	}
}
