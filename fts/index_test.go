package fts

import (
	"testing"

	"github.com/murodb/murodb/pager"
)

func buildIndex(t *testing.T, docs []Doc) (*pager.Pager, pager.PageID) {
	t.Helper()
	p := newTestPager(t)
	tx := pager.Begin(p)
	idx, err := Create(tx, p.PageSize(), tx.TxID(), testTermKey)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := idx.BuildFromDocs(tx.TxID(), docs); err != nil {
		t.Fatalf("BuildFromDocs: %v", err)
	}
	root := idx.RootPageID()
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return p, root
}

func TestFtsStatsRoundtrip(t *testing.T) {
	p := newTestPager(t)
	tx := pager.Begin(p)
	idx, err := Create(tx, p.PageSize(), tx.TxID(), testTermKey)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	stats, err := idx.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalDocs != 0 || stats.TotalTokens != 0 {
		t.Fatalf("fresh index stats = %+v, want zero", stats)
	}
}

func TestFtsIndexAddAndGetPostings(t *testing.T) {
	p, root := buildIndex(t, []Doc{
		{DocID: 1, Text: "hello world"},
		{DocID: 2, Text: "hello there"},
	})
	idx := Open(p, p.PageSize(), root, testTermKey)

	pl, err := idx.GetPostings("he")
	if err != nil {
		t.Fatalf("GetPostings: %v", err)
	}
	if pl.DocFreq() != 2 {
		t.Errorf("DocFreq() for \"he\" = %d, want 2", pl.DocFreq())
	}

	stats, err := idx.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalDocs != 2 {
		t.Errorf("TotalDocs = %d, want 2", stats.TotalDocs)
	}
}

func TestFtsIndexMissingTermReturnsEmptyList(t *testing.T) {
	p, root := buildIndex(t, []Doc{{DocID: 1, Text: "hello"}})
	idx := Open(p, p.PageSize(), root, testTermKey)

	pl, err := idx.GetPostings("zz")
	if err != nil {
		t.Fatalf("GetPostings: %v", err)
	}
	if pl.DocFreq() != 0 {
		t.Errorf("DocFreq() for missing term = %d, want 0", pl.DocFreq())
	}
}

func TestFtsIndexRemoveUpdatesPostingsAndStats(t *testing.T) {
	p, root := buildIndex(t, []Doc{
		{DocID: 1, Text: "hello world"},
		{DocID: 2, Text: "hello there"},
	})
	idx := Open(p, p.PageSize(), root, testTermKey)

	tx := pager.Begin(p)
	if err := idx.ApplyPending(tx.TxID(), []PendingOp{{Kind: PendingRemove, DocID: 1, Text: "hello world"}}); err != nil {
		t.Fatalf("ApplyPending remove: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	idx2 := Open(p, p.PageSize(), root, testTermKey)
	pl, err := idx2.GetPostings("he")
	if err != nil {
		t.Fatalf("GetPostings: %v", err)
	}
	if pl.DocFreq() != 1 {
		t.Fatalf("DocFreq() after remove = %d, want 1", pl.DocFreq())
	}
	if pl.Entries[0].DocID != 2 {
		t.Errorf("remaining doc = %d, want 2", pl.Entries[0].DocID)
	}

	stats, err := idx2.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalDocs != 1 {
		t.Errorf("TotalDocs after remove = %d, want 1", stats.TotalDocs)
	}
}

func TestFtsIndexLargeSegmentedPostingList(t *testing.T) {
	// A long enough run of the same bigram serializes past the 64KB
	// single-segment payload limit, forcing the splitter to produce more
	// than one segment (version v2, seg_count > 1).
	text := make([]byte, 0, 20100)
	for i := 0; i < 10050; i++ {
		text = append(text, 'a', 'a')
	}
	p, root := buildIndex(t, []Doc{{DocID: 1, Text: string(text)}})
	idx := Open(p, p.PageSize(), root, testTermKey)

	metaRaw, ok, err := idx.btree.Get(segMetaKey(idx.TermID("aa")))
	if err != nil {
		t.Fatalf("Get seg meta: %v", err)
	}
	if !ok {
		t.Fatal("expected segment metadata to exist for a heavily-repeated bigram")
	}
	meta, err := decodeSegmentMeta(metaRaw)
	if err != nil {
		t.Fatalf("decodeSegmentMeta: %v", err)
	}
	if !meta.isV2 {
		t.Fatal("expected v2 segment metadata")
	}
	if meta.segCount <= 1 {
		t.Fatalf("seg_count = %d, want > 1 for a heavily-repeated bigram", meta.segCount)
	}

	pl, err := idx.GetPostings("aa")
	if err != nil {
		t.Fatalf("GetPostings: %v", err)
	}
	if pl.DocFreq() != 1 {
		t.Fatalf("DocFreq() = %d, want 1", pl.DocFreq())
	}
	if want := 20099; len(pl.Entries[0].Positions) != want {
		// 20100 consecutive 'a' runes produce 20099 overlapping "aa"
		// bigrams, one per adjacent rune pair (positions 0..20098), and
		// GetPostings merges the split segments back into one entry.
		t.Fatalf("positions count = %d, want %d", len(pl.Entries[0].Positions), want)
	}
}

func TestFtsGenerationMonotonicityAndVacuum(t *testing.T) {
	p := newTestPager(t)
	tx := pager.Begin(p)
	idx, err := Create(tx, p.PageSize(), tx.TxID(), testTermKey)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := idx.BuildFromDocs(tx.TxID(), []Doc{{DocID: 1, Text: "banana"}}); err != nil {
		t.Fatalf("BuildFromDocs: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	root := idx.RootPageID()

	// A term's posting list survives a second add (doc 2 shares the same
	// bigrams), so the rewrite sees a live old generation to supersede:
	// the generation counter must strictly increase and the superseded
	// payload must be queued for vacuum.
	tid := idx.TermID("an") // appears in "banana" multiple times
	gen1, err := idx.loadTermGenerationCounter(tid)
	if err != nil {
		t.Fatalf("loadTermGenerationCounter: %v", err)
	}

	tx2 := pager.Begin(p)
	idx2 := Open(p, p.PageSize(), root, testTermKey)
	// force btree writes through tx2
	idx2.btree = pagerNewBTreeForTx(idx2, tx2)
	idx2.store = tx2
	if err := idx2.ApplyPending(tx2.TxID(), []PendingOp{{Kind: PendingAdd, DocID: 2, Text: "banana"}}); err != nil {
		t.Fatalf("ApplyPending second add: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	idx3 := Open(p, p.PageSize(), idx2.RootPageID(), testTermKey)
	gen2, err := idx3.loadTermGenerationCounter(tid)
	if err != nil {
		t.Fatalf("loadTermGenerationCounter: %v", err)
	}
	if gen2 <= gen1 {
		t.Fatalf("generation did not strictly increase: %d -> %d", gen1, gen2)
	}

	tx3 := pager.Begin(p)
	idx3.btree = pagerNewBTreeForTx(idx3, tx3)
	idx3.store = tx3
	processed, err := idx3.VacuumStaleSegments(tx3.TxID(), 1000)
	if err != nil {
		t.Fatalf("VacuumStaleSegments: %v", err)
	}
	if processed == 0 {
		t.Fatal("expected at least one GC task to be processed")
	}
	if err := tx3.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

// pagerNewBTreeForTx re-points an index's B-tree handle at the same root
// but through a new transaction's write path, since *pager.Transaction and
// *pager.Pager are different PageStore implementations sharing no state.
func pagerNewBTreeForTx(idx *FtsIndex, tx *pager.Transaction) *pager.BTree {
	return pager.NewBTree(tx, idx.pageSize, idx.RootPageID())
}
