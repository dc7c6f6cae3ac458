package pager

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Overflow pages
// ───────────────────────────────────────────────────────────────────────────
//
// Overflow pages store values too large to fit inline in a B-tree leaf cell.
// They form a singly-linked chain. The same interior format is used for
// FTS overflow chains, so both callers share this type:
//
//   magic:"OFG1" | next_page_id:u64 | chunk_len:u16 | chunk_bytes
//
// living inside the common PageHeader + this interior, all still inside the
// encrypted envelope on disk.

const (
	overflowMagic      = "OFG1"
	overflowMagicOff   = PageHeaderSize           // 40
	overflowNextOff    = overflowMagicOff + 4     // 44
	overflowChunkLenOff = overflowNextOff + 8      // 52
	overflowDataOff    = overflowChunkLenOff + 2  // 54
)

// OverflowCapacity returns the payload capacity of a single overflow page.
func OverflowCapacity(pageSize int) int {
	return pageSize - overflowDataOff
}

// OverflowPage wraps a page buffer as an overflow page.
type OverflowPage struct {
	buf      []byte
	pageSize int
}

// WrapOverflowPage wraps an existing overflow page buffer.
func WrapOverflowPage(buf []byte) *OverflowPage {
	return &OverflowPage{buf: buf, pageSize: len(buf)}
}

// InitOverflowPage creates a new overflow page.
func InitOverflowPage(buf []byte, id PageID) *OverflowPage {
	h := &PageHeader{Type: PageTypeOverflow, ID: id}
	MarshalHeader(h, buf)
	copy(buf[overflowMagicOff:overflowMagicOff+4], overflowMagic)
	binary.LittleEndian.PutUint64(buf[overflowNextOff:], uint64(InvalidPageID))
	binary.LittleEndian.PutUint16(buf[overflowChunkLenOff:], 0)
	return &OverflowPage{buf: buf, pageSize: len(buf)}
}

// CheckMagic reports whether the page carries the expected overflow magic.
func (op *OverflowPage) CheckMagic() error {
	if string(op.buf[overflowMagicOff:overflowMagicOff+4]) != overflowMagic {
		return fmt.Errorf("%w: bad overflow page magic", ErrCorruption)
	}
	return nil
}

func (op *OverflowPage) NextOverflow() PageID {
	return PageID(binary.LittleEndian.Uint64(op.buf[overflowNextOff:]))
}

func (op *OverflowPage) SetNextOverflow(pid PageID) {
	binary.LittleEndian.PutUint64(op.buf[overflowNextOff:], uint64(pid))
}

func (op *OverflowPage) DataLen() int {
	return int(binary.LittleEndian.Uint16(op.buf[overflowChunkLenOff:]))
}

// SetData writes payload into the overflow page.
func (op *OverflowPage) SetData(data []byte) error {
	cap := OverflowCapacity(op.pageSize)
	if len(data) > cap {
		return fmt.Errorf("%w: overflow data %d bytes exceeds capacity %d", ErrPageOverflow, len(data), cap)
	}
	binary.LittleEndian.PutUint16(op.buf[overflowChunkLenOff:], uint16(len(data)))
	copy(op.buf[overflowDataOff:], data)
	return nil
}

// Data returns the payload bytes.
func (op *OverflowPage) Data() []byte {
	dl := op.DataLen()
	return op.buf[overflowDataOff : overflowDataOff+dl]
}

// Bytes returns the underlying page buffer.
func (op *OverflowPage) Bytes() []byte { return op.buf }

// ReadOverflowChain reads and concatenates an overflow chain starting at
// headID, detecting cycles and enforcing the depth cap.
func ReadOverflowChain(readPage func(PageID) ([]byte, error), unpin func(PageID), headID PageID, totalSize int) ([]byte, error) {
	result := make([]byte, 0, totalSize)
	pid := headID
	seen := map[PageID]struct{}{}
	depth := 0
	for pid != InvalidPageID {
		depth++
		if depth > MaxTreeDepth {
			return nil, ErrMaxDepthExceeded
		}
		if _, ok := seen[pid]; ok {
			return nil, fmt.Errorf("%w: cycle in overflow chain at page %d", ErrCorruption, pid)
		}
		seen[pid] = struct{}{}
		buf, err := readPage(pid)
		if err != nil {
			return nil, err
		}
		op := WrapOverflowPage(buf)
		if err := op.CheckMagic(); err != nil {
			if unpin != nil {
				unpin(pid)
			}
			return nil, err
		}
		result = append(result, op.Data()...)
		next := op.NextOverflow()
		if unpin != nil {
			unpin(pid)
		}
		pid = next
	}
	if totalSize >= 0 && len(result) != totalSize {
		return nil, fmt.Errorf("%w: overflow chain length mismatch: got %d want %d", ErrCorruption, len(result), totalSize)
	}
	return result, nil
}
