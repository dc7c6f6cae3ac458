package pager

import (
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Crash recovery
// ───────────────────────────────────────────────────────────────────────────
//
// 1. Open the data file, read the superblock, derive the key.
// 2. Scan the WAL from the start, decoding frames in order. The first frame
//    that fails to parse, fails its CRC, or fails AEAD authentication marks
//    the torn tail; everything from there on is discarded.
// 3. Group the decoded prefix by TxID.
// 4. For every TxID whose group contains a Commit record, in the order the
//    Commit records appear, reapply its PageImage records to the data file
//    and its MetaUpdate to the superblock. Transactions without a visible
//    Commit are discarded.
// 5. Truncate the WAL to empty and fsync.

type txGroup struct {
	pages     []*WALRecord
	meta      *WALRecord
	committed bool
}

// Recover replays the WAL, applying only transactions with a visible commit.
func (p *Pager) Recover() error {
	records, err := ReadAllRecords(p.walPath, p.suite)
	if err != nil {
		return fmt.Errorf("recover read WAL: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	groups := make(map[TxID]*txGroup)
	var commitOrder []TxID
	var maxLSN LSN
	for _, rec := range records {
		if rec.LSN > maxLSN {
			maxLSN = rec.LSN
		}
		g, ok := groups[rec.TxID]
		if !ok {
			g = &txGroup{}
			groups[rec.TxID] = g
		}
		switch rec.Type {
		case WALRecordPageImage:
			g.pages = append(g.pages, rec)
		case WALRecordMetaUpdate:
			g.meta = rec
		case WALRecordCommit:
			g.committed = true
			commitOrder = append(commitOrder, rec.TxID)
		}
	}

	var applied int
	var lastMeta *MetaUpdatePayload
	for _, txID := range commitOrder {
		g := groups[txID]
		if !g.committed {
			continue
		}
		for _, rec := range g.pages {
			if err := p.writePageRaw(rec.PageID, rec.Data); err != nil {
				return fmt.Errorf("recover apply page %d: %w", rec.PageID, err)
			}
			applied++
		}
		if g.meta != nil {
			lastMeta = g.meta.Meta
		}
	}

	if applied > 0 || lastMeta != nil {
		if err := p.file.Sync(); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}

		if lastMeta != nil {
			p.sb.CatalogRoot = lastMeta.CatalogRoot
			p.sb.NextPageID = lastMeta.NextPageID
			p.sb.NextTxID = lastMeta.NextTxID
			p.sb.Epoch = lastMeta.Epoch
			if uint64(p.sb.NextPageID) > p.sb.PageCount {
				p.sb.PageCount = uint64(p.sb.NextPageID)
			}
		}
		p.sb.CheckpointLSN = maxLSN

		sbBuf := MarshalSuperblock(p.sb, p.pageSize)
		if err := p.writeSuperblockRaw(sbBuf); err != nil {
			return fmt.Errorf("recover superblock: %w", err)
		}
		if err := p.file.Sync(); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	p.wal.SetNextLSN(maxLSN + 1)
	return p.wal.Truncate()
}
