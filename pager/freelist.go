package pager

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Free-list pages the pager sanitizes this chain on open
// ───────────────────────────────────────────────────────────────────────────
//
// The free-list is a singly-linked chain of pages, each storing an array of
// free PageIDs. It overflows out of the superblock's inline region to these
// dedicated pages once the in-memory set grows past what fits there.
//
// Layout:
//   [0:40]   Common PageHeader (Type=FreeList)
//   [40:48]  NextFreeList  (uint64 LE) — next free-list page, 0 = end
//   [48:52]  EntryCount    (uint32 LE)
//   [52:52+8*EntryCount]   PageID entries (uint64 LE each)

const (
	freeListNextOff  = PageHeaderSize       // 40
	freeListCountOff = freeListNextOff + 8  // 48
	freeListDataOff  = freeListCountOff + 4 // 52
	freeListEntryLen = 8                    // uint64
)

// FreeListCapacity returns how many page IDs fit in one free-list page.
func FreeListCapacity(pageSize int) int {
	return (pageSize - freeListDataOff) / freeListEntryLen
}

// FreeListPage wraps a page buffer as a free-list page.
type FreeListPage struct {
	buf      []byte
	pageSize int
}

// WrapFreeListPage wraps an existing free-list buffer.
func WrapFreeListPage(buf []byte) *FreeListPage {
	return &FreeListPage{buf: buf, pageSize: len(buf)}
}

// InitFreeListPage creates a new empty free-list page.
func InitFreeListPage(buf []byte, id PageID) *FreeListPage {
	h := &PageHeader{Type: PageTypeFreeList, ID: id}
	MarshalHeader(h, buf)
	binary.LittleEndian.PutUint64(buf[freeListNextOff:], uint64(InvalidPageID))
	binary.LittleEndian.PutUint32(buf[freeListCountOff:], 0)
	return &FreeListPage{buf: buf, pageSize: len(buf)}
}

func (fl *FreeListPage) NextFreeList() PageID {
	return PageID(binary.LittleEndian.Uint64(fl.buf[freeListNextOff:]))
}

func (fl *FreeListPage) SetNextFreeList(pid PageID) {
	binary.LittleEndian.PutUint64(fl.buf[freeListNextOff:], uint64(pid))
}

func (fl *FreeListPage) EntryCount() int {
	return int(binary.LittleEndian.Uint32(fl.buf[freeListCountOff:]))
}

func (fl *FreeListPage) GetEntry(i int) PageID {
	off := freeListDataOff + i*freeListEntryLen
	return PageID(binary.LittleEndian.Uint64(fl.buf[off:]))
}

// AddEntry appends a free page ID. Returns false if the page is full.
func (fl *FreeListPage) AddEntry(pid PageID) bool {
	ec := fl.EntryCount()
	if ec >= FreeListCapacity(fl.pageSize) {
		return false
	}
	off := freeListDataOff + ec*freeListEntryLen
	binary.LittleEndian.PutUint64(fl.buf[off:], uint64(pid))
	binary.LittleEndian.PutUint32(fl.buf[freeListCountOff:], uint32(ec+1))
	return true
}

// AllEntries returns all stored free page IDs.
func (fl *FreeListPage) AllEntries() []PageID {
	ec := fl.EntryCount()
	ids := make([]PageID, ec)
	for i := 0; i < ec; i++ {
		ids[i] = fl.GetEntry(i)
	}
	return ids
}

// Bytes returns the underlying page buffer.
func (fl *FreeListPage) Bytes() []byte { return fl.buf }

// ───────────────────────────────────────────────────────────────────────────
// FreeManager — coordinates free-list pages via the pager
// ───────────────────────────────────────────────────────────────────────────

// SanitizeReport summarizes anomalies dropped while loading the free-list
// on open: dropped entries are invalid or already seen.
type SanitizeReport struct {
	OutOfRange int
	Duplicates int
}

// FreeManager tracks free pages using an in-memory set backed by free-list
// pages on disk.
type FreeManager struct {
	free map[PageID]struct{}
	head PageID
}

// NewFreeManager creates a FreeManager. Call LoadFromDisk to populate.
func NewFreeManager() *FreeManager {
	return &FreeManager{free: map[PageID]struct{}{}}
}

// LoadFromDisk walks the free-list chain starting at head and populates the
// in-memory set, sanitizing as it goes: any entry that is out of range
// (>= highWatermark, or the null sentinel) or a duplicate of one already
// seen is dropped and counted rather than propagated. Sanitizing is
// idempotent — running it again over an already-clean set reports zeros.
//
// Unlike a B-tree descent, chain length here grows with the number of free
// pages rather than logarithmically, so it isn't bounded by MaxTreeDepth.
// The seen set already guarantees termination on a cyclic chain; walkLimit
// (derived from highWatermark, the total page count) catches a chain that
// is merely very long without rejecting a healthy, heavily-churned database.
func (fm *FreeManager) LoadFromDisk(head PageID, highWatermark PageID, readPage func(PageID) ([]byte, error)) (SanitizeReport, error) {
	fm.head = head
	var report SanitizeReport
	pid := head
	seen := map[PageID]struct{}{}
	walkLimit := int(highWatermark) + 1
	depth := 0
	for pid != InvalidPageID {
		depth++
		if depth > walkLimit {
			return report, fmt.Errorf("%w: free-list chain exceeds %d pages (high watermark %d)", ErrCorruption, walkLimit, highWatermark)
		}
		if _, dup := seen[pid]; dup {
			break
		}
		seen[pid] = struct{}{}
		buf, err := readPage(pid)
		if err != nil {
			return report, err
		}
		fl := WrapFreeListPage(buf)
		for _, freeID := range fl.AllEntries() {
			if freeID == InvalidPageID || freeID >= highWatermark {
				report.OutOfRange++
				continue
			}
			if _, dup := fm.free[freeID]; dup {
				report.Duplicates++
				continue
			}
			fm.free[freeID] = struct{}{}
		}
		pid = fl.NextFreeList()
	}
	return report, nil
}

// Alloc returns a free page ID (popped from the set) or InvalidPageID if empty.
func (fm *FreeManager) Alloc() PageID {
	for pid := range fm.free {
		delete(fm.free, pid)
		return pid
	}
	return InvalidPageID
}

// Free marks a page ID as available for reuse.
func (fm *FreeManager) Free(pid PageID) {
	fm.free[pid] = struct{}{}
}

// Count returns the number of free pages.
func (fm *FreeManager) Count() int { return len(fm.free) }

// AllFree returns all free page IDs (unsorted).
func (fm *FreeManager) AllFree() []PageID {
	ids := make([]PageID, 0, len(fm.free))
	for pid := range fm.free {
		ids = append(ids, pid)
	}
	return ids
}

// FlushToDisk writes the in-memory free set into free-list pages, returning
// the head PageID of the new chain and the page buffers to write.
func (fm *FreeManager) FlushToDisk(pageSize int, allocPage func() (PageID, []byte)) (PageID, [][]byte) {
	ids := fm.AllFree()
	if len(ids) == 0 {
		return InvalidPageID, nil
	}

	capacity := FreeListCapacity(pageSize)
	var pages [][]byte
	var head PageID
	var prev *FreeListPage

	for i := 0; i < len(ids); i += capacity {
		end := i + capacity
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		pid, buf := allocPage()
		fl := InitFreeListPage(buf, pid)
		for _, fid := range chunk {
			fl.AddEntry(fid)
		}
		SetPageCRC(buf)
		pages = append(pages, buf)

		if prev != nil {
			prev.SetNextFreeList(pid)
			SetPageCRC(prev.Bytes())
		} else {
			head = pid
		}
		prev = fl
	}

	fm.head = head
	return head, pages
}
