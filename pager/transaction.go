package pager

import "fmt"

// Transaction buffers page writes in memory and commits them atomically
// through the pager's WAL. It implements PageStore, so a B-tree (or any
// other page-structured collaborator) can operate against a Transaction
// exactly as it would against a Pager directly — reads fall through to the
// pager (seeing its own uncommitted writes via the dirty map), writes stay
// buffered until Commit.
type Transaction struct {
	pager   *Pager
	txID    TxID
	dirty   map[PageID][]byte
	freed   map[PageID]struct{}
	allocd  []PageID
	root    PageID // new catalog root, if this transaction changes it
	rootSet bool
	done    bool
}

// Begin starts a new transaction against p.
func Begin(p *Pager) *Transaction {
	return &Transaction{
		pager: p,
		txID:  p.BeginTx(),
		dirty: make(map[PageID][]byte),
		freed: make(map[PageID]struct{}),
	}
}

// TxID returns the transaction's identifier.
func (tx *Transaction) TxID() TxID { return tx.txID }

// ReadPage returns a page, preferring the transaction's own uncommitted
// writes over the pager's on-disk/cached copy — a transaction must see its
// own writes before they are durable.
func (tx *Transaction) ReadPage(id PageID) ([]byte, error) {
	if buf, ok := tx.dirty[id]; ok {
		return buf, nil
	}
	return tx.pager.ReadPage(id)
}

// UnpinPage releases a pin acquired through ReadPage. Pages served from the
// transaction's own dirty map were never pinned in the pager's cache, so
// this is a no-op for them.
func (tx *Transaction) UnpinPage(id PageID) {
	if _, ok := tx.dirty[id]; ok {
		return
	}
	tx.pager.UnpinPage(id)
}

// WritePage stages a page write in memory. Nothing is durable until Commit.
func (tx *Transaction) WritePage(txID TxID, id PageID, buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	tx.dirty[id] = cp
	delete(tx.freed, id)
	return nil
}

// AllocPage allocates a new page for this transaction. The allocation is
// tentative: if the transaction rolls back, the page ID is simply never
// referenced by a committed MetaUpdate and the pager's NextPageID counter
// moves on without leaving a usable gap — MuroDB does not reclaim IDs lost
// to a rolled-back allocation, the same tradeoff its free-list makes for
// any abandoned page.
func (tx *Transaction) AllocPage() (PageID, []byte) {
	id, buf := tx.pager.AllocPage()
	tx.pager.UnpinPage(id)
	tx.allocd = append(tx.allocd, id)
	tx.dirty[id] = buf
	return id, buf
}

// FreePage marks a page to be freed when this transaction commits.
func (tx *Transaction) FreePage(id PageID) {
	tx.freed[id] = struct{}{}
	delete(tx.dirty, id)
}

// SetCatalogRoot records a new catalog root to be written into the
// MetaUpdate record at commit time. The catalog itself (tables, indexes,
// schema) lives outside this package; this is just the pointer to it.
func (tx *Transaction) SetCatalogRoot(root PageID) {
	tx.root = root
	tx.rootSet = true
}

// Commit writes all staged pages plus a MetaUpdate and Commit record to the
// WAL and fsyncs. On fsync failure it returns ErrCommitInDoubt: the caller
// must treat the session as poisoned rather than retry or report success,
// since whether the transaction is durable is genuinely unknown.
func (tx *Transaction) Commit() error {
	if tx.done {
		return fmt.Errorf("%w: commit on a finished transaction", ErrTransaction)
	}
	tx.done = true

	for id := range tx.freed {
		tx.pager.FreePage(id)
	}

	catalogRoot := tx.pager.CatalogRoot()
	if tx.rootSet {
		catalogRoot = tx.root
	}
	meta := MetaUpdatePayload{
		CatalogRoot: catalogRoot,
		NextPageID:  tx.pager.NextPageID(),
		NextTxID:    tx.pager.NextTxIDPreview(),
		Epoch:       tx.pager.Epoch(),
	}

	if len(tx.dirty) == 0 && !tx.rootSet {
		return nil
	}
	return tx.pager.CommitTransaction(tx.txID, tx.dirty, meta)
}

// Rollback discards all staged writes and allocations without touching the
// WAL or the data file. Page IDs handed out by AllocPage during this
// transaction are abandoned (see AllocPage's comment) rather than returned
// to the free-list, since nothing was ever durably recorded about them.
func (tx *Transaction) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	for id := range tx.dirty {
		tx.pager.UnpinPage(id)
	}
	tx.dirty = nil
	tx.freed = nil
}
