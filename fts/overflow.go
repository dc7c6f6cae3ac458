package fts

import (
	"encoding/binary"
	"fmt"

	"github.com/murodb/murodb/pager"
)

// Segment payloads too large to store inline (past maxSegmentInlineBytes)
// spill to a raw overflow chain, reusing the pager's own overflow page
// format (pager.OverflowPage) rather than inventing a second one — the
// chain interior (magic/next_page_id/chunk_len/payload) is shared between
// a B-tree value's auto-overflow and an FTS segment's overflow, the only
// difference being who holds the chain head (a leaf cell vs. a 16-byte
// reference value).

// overflowRef is the 16-byte value stored at a `__segovf__` key, pointing
// at the head of a segment's overflow chain.
type overflowRef struct {
	FirstPageID pager.PageID
	TotalLen    uint32
	PageCount   uint32
}

const overflowRefSize = 16 // first_page_id:u64 | total_len:u32 | page_count:u32

func encodeOverflowRef(ref overflowRef) []byte {
	buf := make([]byte, overflowRefSize)
	binary.LittleEndian.PutUint64(buf[0:], uint64(ref.FirstPageID))
	binary.LittleEndian.PutUint32(buf[8:], ref.TotalLen)
	binary.LittleEndian.PutUint32(buf[12:], ref.PageCount)
	return buf
}

func decodeOverflowRef(raw []byte) (overflowRef, error) {
	if len(raw) != overflowRefSize {
		return overflowRef{}, fmt.Errorf("%w: invalid fts overflow reference payload", pager.ErrCorruption)
	}
	ref := overflowRef{
		FirstPageID: pager.PageID(binary.LittleEndian.Uint64(raw[0:])),
		TotalLen:    binary.LittleEndian.Uint32(raw[8:]),
		PageCount:   binary.LittleEndian.Uint32(raw[12:]),
	}
	if ref.PageCount == 0 {
		return overflowRef{}, fmt.Errorf("%w: fts overflow reference page_count must be > 0", pager.ErrCorruption)
	}
	return ref, nil
}

func writeOverflowChain(store pager.PageStore, txID pager.TxID, payload []byte, pageSize int) (overflowRef, error) {
	if len(payload) == 0 {
		return overflowRef{}, fmt.Errorf("fts: overflow payload cannot be empty")
	}
	chunkCap := pager.OverflowCapacity(pageSize)
	pageCount := (len(payload) + chunkCap - 1) / chunkCap

	ids := make([]pager.PageID, 0, pageCount)
	bufs := make([]*pager.OverflowPage, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		id, buf := store.AllocPage()
		ids = append(ids, id)
		bufs = append(bufs, pager.InitOverflowPage(buf, id))
	}

	for i, op := range bufs {
		var next pager.PageID = pager.InvalidPageID
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		start := i * chunkCap
		end := start + chunkCap
		if end > len(payload) {
			end = len(payload)
		}
		op.SetNextOverflow(next)
		if err := op.SetData(payload[start:end]); err != nil {
			return overflowRef{}, err
		}
		pager.SetPageCRC(op.Bytes())
		if err := store.WritePage(txID, ids[i], op.Bytes()); err != nil {
			return overflowRef{}, err
		}
	}

	return overflowRef{
		FirstPageID: ids[0],
		TotalLen:    uint32(len(payload)),
		PageCount:   uint32(pageCount),
	}, nil
}

func readOverflowChain(store pager.PageStore, ref overflowRef) ([]byte, error) {
	out, err := pager.ReadOverflowChain(store.ReadPage, store.UnpinPage, ref.FirstPageID, int(ref.TotalLen))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func freeOverflowChain(store pager.PageStore, ref overflowRef) error {
	visited := make(map[pager.PageID]struct{})
	current := ref.FirstPageID
	var freedPages uint32

	for current != pager.InvalidPageID {
		if _, ok := visited[current]; ok {
			return fmt.Errorf("%w: fts overflow chain cycle detected while freeing", pager.ErrCorruption)
		}
		visited[current] = struct{}{}

		buf, err := store.ReadPage(current)
		if err != nil {
			return err
		}
		op := pager.WrapOverflowPage(buf)
		if err := op.CheckMagic(); err != nil {
			store.UnpinPage(current)
			return err
		}
		next := op.NextOverflow()
		store.UnpinPage(current)

		store.FreePage(current)
		freedPages++
		current = next
	}

	if freedPages != ref.PageCount {
		return fmt.Errorf("%w: fts overflow chain page_count mismatch while freeing", pager.ErrCorruption)
	}
	return nil
}
