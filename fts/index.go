package fts

import (
	"encoding/binary"
	"fmt"

	"github.com/murodb/murodb/pager"
)

// FtsIndex is a full-text index: a posting-list store keyed by HMAC term
// id, layered on a single B-tree. Every mutating method must be called
// within a transaction (the PageStore passed in is either the pager itself
// for reads, or an open *pager.Transaction for writes).
type FtsIndex struct {
	btree    *pager.BTree
	store    pager.PageStore
	termKey  []byte
	pageSize int
}

// FtsStats holds corpus-wide statistics used by BM25 scoring.
type FtsStats struct {
	TotalDocs   uint64
	TotalTokens uint64
}

// AvgDocLen returns the average document length in tokens, or 0 for an
// empty corpus.
func (s FtsStats) AvgDocLen() float64 {
	if s.TotalDocs == 0 {
		return 0
	}
	return float64(s.TotalTokens) / float64(s.TotalDocs)
}

func (s FtsStats) serialize() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], s.TotalDocs)
	binary.LittleEndian.PutUint64(buf[8:], s.TotalTokens)
	return buf
}

func deserializeFtsStats(data []byte) FtsStats {
	if len(data) < 16 {
		return FtsStats{}
	}
	return FtsStats{
		TotalDocs:   binary.LittleEndian.Uint64(data[0:]),
		TotalTokens: binary.LittleEndian.Uint64(data[8:]),
	}
}

// PendingOpKind distinguishes the two operations an index can accumulate
// during a transaction before being applied at commit time.
type PendingOpKind int

const (
	PendingAdd PendingOpKind = iota
	PendingRemove
)

// PendingOp is one accumulated FTS mutation: index or remove a document's
// full text.
type PendingOp struct {
	Kind  PendingOpKind
	DocID uint64
	Text  string
}

var (
	errCannotFitEntry        = fmt.Errorf("fts: posting entry cannot fit into segmented payload")
	errCannotFitEmptySegment = fmt.Errorf("fts: posting entry cannot fit into empty segment")
)

// ───────────────────────────────────────────────────────────────────────────
// Key layout
// ───────────────────────────────────────────────────────────────────────────

var (
	statsKey        = []byte("__stats__")
	segMetaPrefix   = []byte("__segmeta__")
	segGenPrefix    = []byte("__seggen__")
	segDataPrefix   = []byte("__segdata__") // legacy (pre-generational) key space
	segDataV2Prefix = []byte("__segv2__")
	segOvfV2Prefix  = []byte("__segovf__")
	gcHeadKey       = []byte("__seggc_head__")
	gcTailKey       = []byte("__seggc_tail__")
	gcTaskPrefix    = []byte("__seggc__")
)

const segMetaV2Version = 2

func segMetaKey(tid [TermIDSize]byte) []byte {
	return append(append([]byte(nil), segMetaPrefix...), tid[:]...)
}

func segGenerationKey(tid [TermIDSize]byte) []byte {
	return append(append([]byte(nil), segGenPrefix...), tid[:]...)
}

func segDataKeyLegacyU16(tid [TermIDSize]byte, idx uint16) []byte {
	k := append(append([]byte(nil), segDataPrefix...), tid[:]...)
	idxBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(idxBuf, idx)
	return append(k, idxBuf...)
}

func segDataKeyLegacyU32(tid [TermIDSize]byte, idx uint32) []byte {
	k := append(append([]byte(nil), segDataPrefix...), tid[:]...)
	idxBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(idxBuf, idx)
	return append(k, idxBuf...)
}

func segDataKeyV2(tid [TermIDSize]byte, generation, idx uint32) []byte {
	k := append(append([]byte(nil), segDataV2Prefix...), tid[:]...)
	tail := make([]byte, 8)
	binary.LittleEndian.PutUint32(tail[0:], generation)
	binary.LittleEndian.PutUint32(tail[4:], idx)
	return append(k, tail...)
}

func segOverflowKeyV2(tid [TermIDSize]byte, generation, idx uint32) []byte {
	k := append(append([]byte(nil), segOvfV2Prefix...), tid[:]...)
	tail := make([]byte, 8)
	binary.LittleEndian.PutUint32(tail[0:], generation)
	binary.LittleEndian.PutUint32(tail[4:], idx)
	return append(k, tail...)
}

func gcTaskKey(seq uint64) []byte {
	k := append(append([]byte(nil), gcTaskPrefix...), make([]byte, 8)...)
	binary.BigEndian.PutUint64(k[len(gcTaskPrefix):], seq)
	return k
}

// ───────────────────────────────────────────────────────────────────────────
// Segment metadata (legacy + v2, backward compatible on read)
// ───────────────────────────────────────────────────────────────────────────

type segKeyFormat int

const (
	segKeyFormatLegacyU16 segKeyFormat = iota
	segKeyFormatU32
)

// segmentMeta is the decoded form of a `__segmeta__`+tid value. Exactly
// one of the two shapes is populated, selected by isV2.
type segmentMeta struct {
	isV2       bool
	generation uint32 // v2 only
	segCount   uint32
	keyFormat  segKeyFormat // v1 only
}

func decodeSegmentMeta(raw []byte) (segmentMeta, error) {
	switch len(raw) {
	case 9:
		if raw[0] != segMetaV2Version {
			return segmentMeta{}, fmt.Errorf("%w: unknown segment metadata version %d", pager.ErrCorruption, raw[0])
		}
		return segmentMeta{
			isV2:       true,
			generation: binary.LittleEndian.Uint32(raw[1:5]),
			segCount:   binary.LittleEndian.Uint32(raw[5:9]),
		}, nil
	case 2:
		return segmentMeta{
			segCount:  uint32(binary.LittleEndian.Uint16(raw[0:2])),
			keyFormat: segKeyFormatLegacyU16,
		}, nil
	case 4:
		return segmentMeta{
			segCount:  binary.LittleEndian.Uint32(raw[0:4]),
			keyFormat: segKeyFormatU32,
		}, nil
	default:
		return segmentMeta{}, fmt.Errorf("%w: invalid segment metadata length %d", pager.ErrCorruption, len(raw))
	}
}

func encodeSegmentMetaV2(generation, segCount uint32) []byte {
	buf := make([]byte, 9)
	buf[0] = segMetaV2Version
	binary.LittleEndian.PutUint32(buf[1:5], generation)
	binary.LittleEndian.PutUint32(buf[5:9], segCount)
	return buf
}

func segmentPayloadKey(tid [TermIDSize]byte, meta segmentMeta, segIdx uint32) ([]byte, error) {
	if meta.isV2 {
		return segDataKeyV2(tid, meta.generation, segIdx), nil
	}
	switch meta.keyFormat {
	case segKeyFormatLegacyU16:
		if segIdx > 0xFFFF {
			return nil, fmt.Errorf("%w: legacy segment index exceeds u16 range", pager.ErrCorruption)
		}
		return segDataKeyLegacyU16(tid, uint16(segIdx)), nil
	default:
		return segDataKeyLegacyU32(tid, segIdx), nil
	}
}

// ───────────────────────────────────────────────────────────────────────────
// GC task encoding
// ───────────────────────────────────────────────────────────────────────────

type segmentGCTask struct {
	tid                [TermIDSize]byte
	oldMeta            *segmentMeta
	deleteLegacySingle bool
}

func encodeSegmentGCTask(task segmentGCTask) []byte {
	out := make([]byte, 0, 2+TermIDSize+1+9)
	out = append(out, 1) // task format version
	if task.deleteLegacySingle {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = append(out, task.tid[:]...)

	switch {
	case task.oldMeta == nil:
		out = append(out, 0)
	case !task.oldMeta.isV2 && task.oldMeta.keyFormat == segKeyFormatLegacyU16:
		out = append(out, 1)
		segCount := make([]byte, 2)
		binary.LittleEndian.PutUint16(segCount, uint16(task.oldMeta.segCount))
		out = append(out, segCount...)
	case !task.oldMeta.isV2:
		out = append(out, 2)
		segCount := make([]byte, 4)
		binary.LittleEndian.PutUint32(segCount, task.oldMeta.segCount)
		out = append(out, segCount...)
	default:
		out = append(out, 3)
		tail := make([]byte, 8)
		binary.LittleEndian.PutUint32(tail[0:4], task.oldMeta.generation)
		binary.LittleEndian.PutUint32(tail[4:8], task.oldMeta.segCount)
		out = append(out, tail...)
	}
	return out
}

func decodeSegmentGCTask(raw []byte) (segmentGCTask, error) {
	if len(raw) < 2+TermIDSize+1 || raw[0] != 1 {
		return segmentGCTask{}, fmt.Errorf("%w: invalid fts gc task", pager.ErrCorruption)
	}
	task := segmentGCTask{deleteLegacySingle: raw[1] != 0}
	copy(task.tid[:], raw[2:2+TermIDSize])
	tagOff := 2 + TermIDSize
	tag := raw[tagOff]
	rest := raw[tagOff+1:]

	switch tag {
	case 0:
		// no previous metadata
	case 1:
		if len(rest) != 2 {
			return segmentGCTask{}, fmt.Errorf("%w: invalid fts gc task (v1/u16)", pager.ErrCorruption)
		}
		task.oldMeta = &segmentMeta{segCount: uint32(binary.LittleEndian.Uint16(rest)), keyFormat: segKeyFormatLegacyU16}
	case 2:
		if len(rest) != 4 {
			return segmentGCTask{}, fmt.Errorf("%w: invalid fts gc task (v1/u32)", pager.ErrCorruption)
		}
		task.oldMeta = &segmentMeta{segCount: binary.LittleEndian.Uint32(rest), keyFormat: segKeyFormatU32}
	case 3:
		if len(rest) != 8 {
			return segmentGCTask{}, fmt.Errorf("%w: invalid fts gc task (v2)", pager.ErrCorruption)
		}
		task.oldMeta = &segmentMeta{
			isV2:       true,
			generation: binary.LittleEndian.Uint32(rest[0:4]),
			segCount:   binary.LittleEndian.Uint32(rest[4:8]),
		}
	default:
		return segmentGCTask{}, fmt.Errorf("%w: invalid fts gc task tag %d", pager.ErrCorruption, tag)
	}
	return task, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Construction
// ───────────────────────────────────────────────────────────────────────────

// Create allocates a new, empty FTS index (a fresh B-tree plus a
// zero-valued stats entry). Must be called within a transaction.
func Create(store pager.PageStore, pageSize int, txID pager.TxID, termKey []byte) (*FtsIndex, error) {
	bt, err := pager.CreateBTree(store, pageSize, txID)
	if err != nil {
		return nil, fmt.Errorf("fts: create btree: %w", err)
	}
	idx := &FtsIndex{btree: bt, store: store, termKey: append([]byte(nil), termKey...), pageSize: pageSize}
	if err := idx.btree.Insert(txID, statsKey, FtsStats{}.serialize()); err != nil {
		return nil, fmt.Errorf("fts: init stats: %w", err)
	}
	return idx, nil
}

// Open attaches to an existing FTS index given its B-tree root.
func Open(store pager.PageStore, pageSize int, root pager.PageID, termKey []byte) *FtsIndex {
	return &FtsIndex{
		btree:    pager.NewBTree(store, pageSize, root),
		store:    store,
		termKey:  append([]byte(nil), termKey...),
		pageSize: pageSize,
	}
}

// RootPageID returns the index's B-tree root, for persisting alongside a
// catalog entry.
func (idx *FtsIndex) RootPageID() pager.PageID { return idx.btree.Root() }

// TermID derives the opaque on-disk identity of a bigram.
func (idx *FtsIndex) TermID(bigram string) [TermIDSize]byte {
	return TermID(idx.termKey, bigram)
}

// GetStats returns the corpus statistics, or a zero value if uninitialized.
func (idx *FtsIndex) GetStats() (FtsStats, error) {
	data, ok, err := idx.btree.Get(statsKey)
	if err != nil {
		return FtsStats{}, err
	}
	if !ok {
		return FtsStats{}, nil
	}
	return deserializeFtsStats(data), nil
}

// GetPostings returns the fully-merged posting list for term, empty if the
// term has never been indexed.
func (idx *FtsIndex) GetPostings(term string) (*PostingList, error) {
	tid := idx.TermID(term)
	return idx.loadPostingsByTID(tid)
}

// ───────────────────────────────────────────────────────────────────────────
// Apply pending operations
// ───────────────────────────────────────────────────────────────────────────

// ApplyPending applies a batch of accumulated add/remove operations within
// a single transaction and updates corpus statistics accordingly.
func (idx *FtsIndex) ApplyPending(txID pager.TxID, ops []PendingOp) error {
	stats, err := idx.GetStats()
	if err != nil {
		return err
	}

	for _, op := range ops {
		switch op.Kind {
		case PendingAdd:
			tokens := Tokenize(op.Text)
			positions := make(map[string][]uint32)
			for _, tok := range tokens {
				positions[tok.Text] = append(positions[tok.Text], tok.Pos)
			}
			for term, poss := range positions {
				tid := idx.TermID(term)
				pl, err := idx.loadPostingsByTID(tid)
				if err != nil {
					return err
				}
				for _, p := range poss {
					pl.Add(op.DocID, p)
				}
				if err := idx.storePostingsByTID(txID, tid, pl); err != nil {
					return err
				}
			}
			stats.TotalDocs++
			stats.TotalTokens += uint64(len(tokens))

		case PendingRemove:
			tokens := Tokenize(op.Text)
			seen := make(map[string]struct{})
			for _, tok := range tokens {
				if _, ok := seen[tok.Text]; ok {
					continue
				}
				seen[tok.Text] = struct{}{}
				tid := idx.TermID(tok.Text)
				pl, err := idx.loadPostingsByTID(tid)
				if err != nil {
					return err
				}
				if pl.DocFreq() == 0 {
					continue
				}
				pl.Remove(op.DocID)
				if err := idx.storePostingsByTID(txID, tid, pl); err != nil {
					return err
				}
			}
			if stats.TotalDocs > 0 {
				stats.TotalDocs--
			}
			tokCount := uint64(len(tokens))
			if tokCount > stats.TotalTokens {
				stats.TotalTokens = 0
			} else {
				stats.TotalTokens -= tokCount
			}
		}
	}

	return idx.btree.Insert(txID, statsKey, stats.serialize())
}

// Doc is one (doc_id, text) pair for bulk indexing.
type Doc struct {
	DocID uint64
	Text  string
}

// BuildFromDocs indexes a full corpus from scratch as a sequence of Add
// operations.
func (idx *FtsIndex) BuildFromDocs(txID pager.TxID, docs []Doc) error {
	ops := make([]PendingOp, 0, len(docs))
	for _, d := range docs {
		ops = append(ops, PendingOp{Kind: PendingAdd, DocID: d.DocID, Text: d.Text})
	}
	return idx.ApplyPending(txID, ops)
}

// ───────────────────────────────────────────────────────────────────────────
// Vacuum
// ───────────────────────────────────────────────────────────────────────────

// VacuumStaleSegments drains up to maxTasks entries from the GC FIFO,
// deleting the segment/overflow keys of superseded generations. It returns
// the number of tasks processed.
func (idx *FtsIndex) VacuumStaleSegments(txID pager.TxID, maxTasks int) (int, error) {
	if maxTasks <= 0 {
		return 0, nil
	}

	head, err := idx.loadGCCounter(gcHeadKey)
	if err != nil {
		return 0, err
	}
	tail, err := idx.loadGCCounter(gcTailKey)
	if err != nil {
		return 0, err
	}

	processed := 0
	for head < tail && processed < maxTasks {
		key := gcTaskKey(head)
		raw, ok, err := idx.btree.Get(key)
		if err != nil {
			return processed, err
		}
		if ok {
			task, err := decodeSegmentGCTask(raw)
			if err != nil {
				return processed, err
			}
			if err := idx.deletePostingsFromMeta(txID, task.tid, task.oldMeta); err != nil {
				return processed, err
			}
			if task.deleteLegacySingle {
				if _, ok, err := idx.btree.Get(task.tid[:]); err != nil {
					return processed, err
				} else if ok {
					if _, err := idx.btree.Delete(txID, task.tid[:]); err != nil {
						return processed, err
					}
				}
			}
			if _, err := idx.btree.Delete(txID, key); err != nil {
				return processed, err
			}
		}
		head++
		processed++
	}

	if err := idx.storeGCCounter(txID, gcHeadKey, head); err != nil {
		return processed, err
	}
	if head >= tail {
		if err := idx.storeGCCounter(txID, gcHeadKey, 0); err != nil {
			return processed, err
		}
		if err := idx.storeGCCounter(txID, gcTailKey, 0); err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Posting load/store/delete
// ───────────────────────────────────────────────────────────────────────────

func (idx *FtsIndex) loadPostingsByTID(tid [TermIDSize]byte) (*PostingList, error) {
	metaRaw, hasMeta, err := idx.btree.Get(segMetaKey(tid))
	if err != nil {
		return nil, err
	}
	if hasMeta {
		meta, err := decodeSegmentMeta(metaRaw)
		if err != nil {
			return nil, err
		}
		merged := NewPostingList()
		for i := uint32(0); i < meta.segCount; i++ {
			data, err := idx.loadSegmentPayload(tid, meta, i)
			if err != nil {
				return nil, err
			}
			seg, err := DeserializePostingList(data)
			if err != nil {
				return nil, err
			}
			for _, e := range seg.Entries {
				for _, p := range e.Positions {
					merged.Add(e.DocID, p)
				}
			}
		}
		return merged, nil
	}

	// Fall back to the legacy non-segmented representation.
	data, ok, err := idx.btree.Get(tid[:])
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewPostingList(), nil
	}
	return DeserializePostingList(data)
}

func (idx *FtsIndex) storePostingsByTID(txID pager.TxID, tid [TermIDSize]byte, pl *PostingList) error {
	if pl.DocFreq() == 0 {
		return idx.deletePostingsByTID(txID, tid)
	}

	metaRaw, hasMeta, err := idx.btree.Get(segMetaKey(tid))
	if err != nil {
		return err
	}
	var oldMeta *segmentMeta
	if hasMeta {
		m, err := decodeSegmentMeta(metaRaw)
		if err != nil {
			return err
		}
		oldMeta = &m
	}
	_, hadLegacySingle, err := idx.btree.Get(tid[:])
	if err != nil {
		return err
	}

	var lastGenFromMeta uint32
	if oldMeta != nil && oldMeta.isV2 {
		lastGenFromMeta = oldMeta.generation
	}
	genCounter, err := idx.loadTermGenerationCounter(tid)
	if err != nil {
		return err
	}
	lastGeneration := lastGenFromMeta
	if genCounter > lastGeneration {
		lastGeneration = genCounter
	}
	newGeneration := lastGeneration + 1

	segments, err := splitPostingsIntoSegments(pl, maxSegmentPayloadBytes)
	if err != nil {
		return err
	}
	for i, seg := range segments {
		if err := idx.storeSegmentPayload(txID, tid, newGeneration, uint32(i), seg.Serialize()); err != nil {
			return err
		}
	}

	if err := idx.btree.Insert(txID, segMetaKey(tid), encodeSegmentMetaV2(newGeneration, uint32(len(segments)))); err != nil {
		return err
	}
	if err := idx.storeTermGenerationCounter(txID, tid, newGeneration); err != nil {
		return err
	}

	if oldMeta != nil || hadLegacySingle {
		task := segmentGCTask{tid: tid, oldMeta: oldMeta, deleteLegacySingle: hadLegacySingle}
		if err := idx.enqueueSegmentGCTask(txID, task); err != nil {
			return err
		}
	}
	return nil
}

func (idx *FtsIndex) deletePostingsByTID(txID pager.TxID, tid [TermIDSize]byte) error {
	metaRaw, hasMeta, err := idx.btree.Get(segMetaKey(tid))
	if err != nil {
		return err
	}
	if hasMeta {
		meta, err := decodeSegmentMeta(metaRaw)
		if err != nil {
			return err
		}
		if err := idx.deletePostingsFromMeta(txID, tid, &meta); err != nil {
			return err
		}
		if _, err := idx.btree.Delete(txID, segMetaKey(tid)); err != nil {
			return err
		}
	}
	if _, ok, err := idx.btree.Get(tid[:]); err != nil {
		return err
	} else if ok {
		if _, err := idx.btree.Delete(txID, tid[:]); err != nil {
			return err
		}
	}
	return nil
}

func (idx *FtsIndex) deletePostingsFromMeta(txID pager.TxID, tid [TermIDSize]byte, meta *segmentMeta) error {
	if meta == nil {
		return nil
	}
	for i := uint32(0); i < meta.segCount; i++ {
		if err := idx.deleteSegmentPayload(txID, tid, *meta, i); err != nil {
			return err
		}
	}
	return nil
}

func (idx *FtsIndex) loadSegmentPayload(tid [TermIDSize]byte, meta segmentMeta, segIdx uint32) ([]byte, error) {
	key, err := segmentPayloadKey(tid, meta, segIdx)
	if err != nil {
		return nil, err
	}
	if data, ok, err := idx.btree.Get(key); err != nil {
		return nil, err
	} else if ok {
		return data, nil
	}

	if meta.isV2 {
		refRaw, ok, err := idx.btree.Get(segOverflowKeyV2(tid, meta.generation, segIdx))
		if err != nil {
			return nil, err
		}
		if ok {
			ref, err := decodeOverflowRef(refRaw)
			if err != nil {
				return nil, err
			}
			return readOverflowChain(idx.store, ref)
		}
	}
	return nil, fmt.Errorf("%w: missing fts segment payload", pager.ErrCorruption)
}

func (idx *FtsIndex) storeSegmentPayload(txID pager.TxID, tid [TermIDSize]byte, generation, segIdx uint32, payload []byte) error {
	if len(payload) <= maxSegmentInlineBytes {
		return idx.btree.Insert(txID, segDataKeyV2(tid, generation, segIdx), payload)
	}
	ref, err := writeOverflowChain(idx.store, txID, payload, idx.pageSize)
	if err != nil {
		return err
	}
	return idx.btree.Insert(txID, segOverflowKeyV2(tid, generation, segIdx), encodeOverflowRef(ref))
}

func (idx *FtsIndex) deleteSegmentPayload(txID pager.TxID, tid [TermIDSize]byte, meta segmentMeta, segIdx uint32) error {
	key, err := segmentPayloadKey(tid, meta, segIdx)
	if err != nil {
		return err
	}
	if _, ok, err := idx.btree.Get(key); err != nil {
		return err
	} else if ok {
		if _, err := idx.btree.Delete(txID, key); err != nil {
			return err
		}
	}

	if meta.isV2 {
		ovfKey := segOverflowKeyV2(tid, meta.generation, segIdx)
		refRaw, ok, err := idx.btree.Get(ovfKey)
		if err != nil {
			return err
		}
		if ok {
			ref, err := decodeOverflowRef(refRaw)
			if err != nil {
				return err
			}
			if err := freeOverflowChain(idx.store, ref); err != nil {
				return err
			}
			if _, err := idx.btree.Delete(txID, ovfKey); err != nil {
				return err
			}
		}
	}
	return nil
}

func (idx *FtsIndex) enqueueSegmentGCTask(txID pager.TxID, task segmentGCTask) error {
	tail, err := idx.loadGCCounter(gcTailKey)
	if err != nil {
		return err
	}
	if err := idx.btree.Insert(txID, gcTaskKey(tail), encodeSegmentGCTask(task)); err != nil {
		return err
	}
	return idx.storeGCCounter(txID, gcTailKey, tail+1)
}

func (idx *FtsIndex) loadGCCounter(key []byte) (uint64, error) {
	raw, ok, err := idx.btree.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("%w: invalid fts gc counter", pager.ErrCorruption)
	}
	return binary.LittleEndian.Uint64(raw), nil
}

func (idx *FtsIndex) storeGCCounter(txID pager.TxID, key []byte, value uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return idx.btree.Insert(txID, key, buf)
}

func (idx *FtsIndex) loadTermGenerationCounter(tid [TermIDSize]byte) (uint32, error) {
	raw, ok, err := idx.btree.Get(segGenerationKey(tid))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if len(raw) != 4 {
		return 0, fmt.Errorf("%w: invalid fts term generation counter", pager.ErrCorruption)
	}
	return binary.LittleEndian.Uint32(raw), nil
}

func (idx *FtsIndex) storeTermGenerationCounter(txID pager.TxID, tid [TermIDSize]byte, generation uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, generation)
	return idx.btree.Insert(txID, segGenerationKey(tid), buf)
}
