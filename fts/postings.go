// Package fts implements MuroDB's full-text search layer: bigram
// tokenization, HMAC-keyed term identity, segmented posting-list storage on
// top of the pager's B-tree, and natural-language/boolean querying.
package fts

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/murodb/murodb/pager"
)

// Posting is one document's occurrences of a term: the document id and the
// sorted, deduplicated bigram positions within that document.
type Posting struct {
	DocID     uint64
	Positions []uint32
}

// PostingList is the in-memory representation of all postings for a single
// term. Entries are kept sorted by DocID so serialization and merges can
// proceed by a single linear pass.
type PostingList struct {
	Entries []Posting
}

// NewPostingList returns an empty posting list.
func NewPostingList() *PostingList {
	return &PostingList{}
}

// Add records an occurrence of the term at pos within docID, inserting in
// DocID order and keeping Positions sorted and deduplicated.
func (pl *PostingList) Add(docID uint64, pos uint32) {
	i := sort.Search(len(pl.Entries), func(i int) bool { return pl.Entries[i].DocID >= docID })
	if i < len(pl.Entries) && pl.Entries[i].DocID == docID {
		addPositionSorted(&pl.Entries[i], pos)
		return
	}
	entry := Posting{DocID: docID, Positions: []uint32{pos}}
	pl.Entries = append(pl.Entries, Posting{})
	copy(pl.Entries[i+1:], pl.Entries[i:])
	pl.Entries[i] = entry
}

func addPositionSorted(p *Posting, pos uint32) {
	i := sort.Search(len(p.Positions), func(i int) bool { return p.Positions[i] >= pos })
	if i < len(p.Positions) && p.Positions[i] == pos {
		return
	}
	p.Positions = append(p.Positions, 0)
	copy(p.Positions[i+1:], p.Positions[i:])
	p.Positions[i] = pos
}

// Remove deletes all postings for docID, if present.
func (pl *PostingList) Remove(docID uint64) {
	i := sort.Search(len(pl.Entries), func(i int) bool { return pl.Entries[i].DocID >= docID })
	if i < len(pl.Entries) && pl.Entries[i].DocID == docID {
		pl.Entries = append(pl.Entries[:i], pl.Entries[i+1:]...)
	}
}

// DocFreq returns the number of distinct documents containing the term.
func (pl *PostingList) DocFreq() int {
	return len(pl.Entries)
}

// Merge combines other into pl, overwriting any existing entry for a shared
// DocID (other wins).
func (pl *PostingList) Merge(other *PostingList) {
	for _, e := range other.Entries {
		pl.Remove(e.DocID)
		i := sort.Search(len(pl.Entries), func(i int) bool { return pl.Entries[i].DocID >= e.DocID })
		pl.Entries = append(pl.Entries, Posting{})
		copy(pl.Entries[i+1:], pl.Entries[i:])
		pl.Entries[i] = e
	}
}

// Serialize encodes the posting list as:
//
//	entry_count:u32
//	per entry: doc_id:u64, pos_count:u32, pos[pos_count]:u32
//
// all little-endian.
func (pl *PostingList) Serialize() []byte {
	size := 4
	for _, e := range pl.Entries {
		size += 8 + 4 + 4*len(e.Positions)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(pl.Entries)))
	off := 4
	for _, e := range pl.Entries {
		binary.LittleEndian.PutUint64(buf[off:], e.DocID)
		off += 8
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(e.Positions)))
		off += 4
		for _, p := range e.Positions {
			binary.LittleEndian.PutUint32(buf[off:], p)
			off += 4
		}
	}
	return buf
}

// DeserializePostingList decodes the wire format produced by Serialize.
func DeserializePostingList(buf []byte) (*PostingList, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: posting list header truncated", pager.ErrCorruption)
	}
	count := binary.LittleEndian.Uint32(buf[0:])
	off := 4
	pl := &PostingList{Entries: make([]Posting, 0, count)}
	for i := uint32(0); i < count; i++ {
		if off+12 > len(buf) {
			return nil, fmt.Errorf("%w: posting entry header truncated", pager.ErrCorruption)
		}
		docID := binary.LittleEndian.Uint64(buf[off:])
		off += 8
		posCount := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		if off+4*int(posCount) > len(buf) {
			return nil, fmt.Errorf("%w: posting positions truncated", pager.ErrCorruption)
		}
		positions := make([]uint32, posCount)
		for j := uint32(0); j < posCount; j++ {
			positions[j] = binary.LittleEndian.Uint32(buf[off:])
			off += 4
		}
		pl.Entries = append(pl.Entries, Posting{DocID: docID, Positions: positions})
		_ = i
	}
	return pl, nil
}

// SerializedSize returns the byte length Serialize would produce, without
// allocating the buffer — used by the segment packer to decide where a
// posting list's entries need to split across segments.
func (pl *PostingList) SerializedSize() int {
	size := 4
	for _, e := range pl.Entries {
		size += 8 + 4 + 4*len(e.Positions)
	}
	return size
}
