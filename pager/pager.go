package pager

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/murodb/murodb/cipher"
)

// ───────────────────────────────────────────────────────────────────────────
// Buffer Pool / Pager
// ───────────────────────────────────────────────────────────────────────────
//
// The Pager is the central I/O layer. It manages the database file, the WAL,
// the buffer pool (page cache with dirty tracking), the free-list, and the
// superblock. All page reads and writes go through the Pager so that CRC
// validation, encryption, and WAL logging happen automatically.
//
// On-disk layout: page 0 (the superblock) is stored raw at offset 0, exactly
// PageSize bytes, since it must be readable before any key is derived. Every
// other page is stored as plaintext-header + AEAD-sealed body, which is
// PageSize + suite.Overhead() bytes — a fixed "physical" page size — starting
// right after the superblock.

// PageFrame is an in-memory cached page.
type PageFrame struct {
	id     PageID
	buf    []byte
	dirty  bool
	lsn    LSN // LSN of last modification
	pinned int // pin count (>0 = cannot evict)
	prev   *PageFrame
	next   *PageFrame
}

// PageBufferPool is an LRU page cache with dirty-page tracking.
type PageBufferPool struct {
	mu       sync.Mutex
	maxPages int
	pages    map[PageID]*PageFrame
	head     *PageFrame
	tail     *PageFrame
}

func newPageBufferPool(maxPages int) *PageBufferPool {
	if maxPages <= 0 {
		maxPages = 1024
	}
	return &PageBufferPool{
		maxPages: maxPages,
		pages:    make(map[PageID]*PageFrame, maxPages),
	}
}

func (bp *PageBufferPool) get(id PageID) (*PageFrame, bool) {
	f, ok := bp.pages[id]
	if ok {
		bp.moveToFront(f)
	}
	return f, ok
}

func (bp *PageBufferPool) put(f *PageFrame) {
	if _, exists := bp.pages[f.id]; exists {
		bp.moveToFront(f)
		return
	}
	for len(bp.pages) >= bp.maxPages {
		if !bp.evictOne() {
			break
		}
	}
	bp.pages[f.id] = f
	bp.pushFront(f)
}

func (bp *PageBufferPool) remove(id PageID) {
	f, ok := bp.pages[id]
	if !ok {
		return
	}
	bp.unlink(f)
	delete(bp.pages, id)
}

func (bp *PageBufferPool) evictOne() bool {
	for f := bp.tail; f != nil; f = f.prev {
		if f.pinned == 0 && !f.dirty {
			bp.unlink(f)
			delete(bp.pages, f.id)
			return true
		}
	}
	return false
}

func (bp *PageBufferPool) dirtyPages() []*PageFrame {
	var out []*PageFrame
	for _, f := range bp.pages {
		if f.dirty {
			out = append(out, f)
		}
	}
	return out
}

func (bp *PageBufferPool) pushFront(f *PageFrame) {
	f.prev = nil
	f.next = bp.head
	if bp.head != nil {
		bp.head.prev = f
	}
	bp.head = f
	if bp.tail == nil {
		bp.tail = f
	}
}

func (bp *PageBufferPool) unlink(f *PageFrame) {
	if f.prev != nil {
		f.prev.next = f.next
	} else {
		bp.head = f.next
	}
	if f.next != nil {
		f.next.prev = f.prev
	} else {
		bp.tail = f.prev
	}
	f.prev = nil
	f.next = nil
}

func (bp *PageBufferPool) moveToFront(f *PageFrame) {
	bp.unlink(f)
	bp.pushFront(f)
}

// ───────────────────────────────────────────────────────────────────────────
// Pager
// ───────────────────────────────────────────────────────────────────────────

// PagerConfig configures a Pager.
type PagerConfig struct {
	DBPath        string
	WALPath       string
	PageSize      int
	MaxCachePages int // buffer pool capacity (0 = default 1024)

	// Passphrase unlocks an encrypted database and is ignored when the
	// plaintext suite is in use. An empty passphrase is not rejected.
	Passphrase    string
	CipherSuiteID cipher.SuiteID // 0 (SuitePlaintext) only via MURODB_INSECURE_PLAINTEXT
	KDFParams     cipher.KDFParams
}

// Stats exposes counters useful to the session layer's checkpoint policy
// and to operational monitoring.
type Stats struct {
	CheckpointFailures uint64
	CommitsInDoubt     uint64
}

// Pager manages page-level I/O, encryption, the WAL, buffer pool, and
// free-list.
type Pager struct {
	mu       sync.RWMutex
	file     *os.File
	wal      *WALFile
	pool     *PageBufferPool
	sb       *Superblock
	freeMgr  *FreeManager
	suite    cipher.Suite
	pageSize int
	path     string
	walPath  string
	closed   bool

	checkpointFailures uint64
	commitsInDoubt     uint64
}

// OpenPager opens or creates a page-based, passphrase-encrypted database.
func OpenPager(cfg PagerConfig) (*Pager, error) {
	ps := cfg.PageSize
	if ps == 0 {
		ps = DefaultPageSize
	}
	if ps < MinPageSize || ps > MaxPageSize || ps&(ps-1) != 0 {
		return nil, fmt.Errorf("invalid page size %d", ps)
	}

	suiteID := cfg.CipherSuiteID
	if suiteID == 0 && os.Getenv("MURODB_INSECURE_PLAINTEXT") == "" {
		suiteID = cipher.SuiteAESGCM
	}

	isNew := false
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		isNew = true
	}

	f, err := os.OpenFile(cfg.DBPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open db file: %v", ErrIO, err)
	}

	p := &Pager{
		file:     f,
		pageSize: ps,
		path:     cfg.DBPath,
		pool:     newPageBufferPool(cfg.MaxCachePages),
		freeMgr:  NewFreeManager(),
	}

	if isNew {
		if err := p.initNew(cfg, suiteID); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := p.openExisting(cfg); err != nil {
			f.Close()
			return nil, err
		}
	}

	walPath := cfg.WALPath
	if walPath == "" {
		walPath = cfg.DBPath + ".wal"
	}
	p.walPath = walPath
	wf, err := OpenWALFile(walPath, p.pageSize, p.suite)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open WAL file: %w", err)
	}
	p.wal = wf

	if !isNew {
		if err := p.Recover(); err != nil {
			wf.Close()
			f.Close()
			return nil, fmt.Errorf("WAL recovery: %w", err)
		}
	}

	return p, nil
}

func (p *Pager) initNew(cfg PagerConfig, suiteID cipher.SuiteID) error {
	params := cfg.KDFParams
	if params == (cipher.KDFParams{}) {
		params = cipher.DefaultKDFParams
	}

	var salt []byte
	var key []byte
	if suiteID == cipher.SuitePlaintext {
		salt = make([]byte, cipher.SaltSize)
	} else {
		var err error
		salt, err = cipher.NewSalt()
		if err != nil {
			return err
		}
		key = cipher.DeriveKey(cfg.Passphrase, salt, params)
	}

	suite, err := cipher.NewSuite(suiteID, key)
	if err != nil {
		return err
	}
	p.suite = suite

	sb, err := NewSuperblock(uint32(p.pageSize), suite, salt, params)
	if err != nil {
		return err
	}
	buf := MarshalSuperblock(sb, p.pageSize)
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: write superblock: %v", ErrIO, err)
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	p.sb = sb
	return nil
}

func (p *Pager) openExisting(cfg PagerConfig) error {
	buf := make([]byte, p.pageSize)
	if _, err := p.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("%w: read superblock: %v", ErrIO, err)
	}
	sb, err := UnmarshalSuperblock(buf)
	if err != nil {
		return err
	}
	p.sb = sb
	p.pageSize = int(sb.PageSize)

	var key []byte
	if sb.CipherSuiteID != cipher.SuitePlaintext {
		key = cipher.DeriveKey(cfg.Passphrase, sb.KDFSalt, sb.KDFParams)
	}
	suite, err := cipher.NewSuite(sb.CipherSuiteID, key)
	if err != nil {
		return err
	}
	if err := cipher.CheckVerifier(suite, sb.Verifier); err != nil {
		return fmt.Errorf("wrong passphrase: %w", err)
	}
	p.suite = suite

	if sb.FreeListRoot != InvalidPageID {
		if _, err := p.freeMgr.LoadFromDisk(sb.FreeListRoot, sb.NextPageID, p.readPageRaw); err != nil {
			return fmt.Errorf("load freelist: %w", err)
		}
	}
	return nil
}

// ── Physical layout ───────────────────────────────────────────────────────

func (p *Pager) physicalPageSize() int {
	return p.pageSize + p.suite.Overhead()
}

func (p *Pager) pageOffset(id PageID) int64 {
	if id == InvalidPageID {
		return 0
	}
	return int64(p.pageSize) + int64(id-1)*int64(p.physicalPageSize())
}

// readPageRaw reads a page directly from the database file (no cache),
// verifying its CRC and, for non-superblock pages, opening its AEAD seal.
func (p *Pager) readPageRaw(id PageID) ([]byte, error) {
	if id == InvalidPageID {
		buf := make([]byte, p.pageSize)
		if _, err := p.file.ReadAt(buf, 0); err != nil {
			return nil, fmt.Errorf("%w: read superblock: %v", ErrIO, err)
		}
		if err := VerifyPageCRC(buf); err != nil {
			return nil, err
		}
		return buf, nil
	}

	physBuf := make([]byte, p.physicalPageSize())
	if _, err := p.file.ReadAt(physBuf, p.pageOffset(id)); err != nil {
		return nil, fmt.Errorf("%w: read page %d: %v", ErrIO, id, err)
	}
	header := physBuf[:PageHeaderSize]
	sealed := physBuf[PageHeaderSize:]
	epoch := PageEpoch(header)

	body, err := p.suite.Open(uint64(id), epoch, sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", ErrCorruption, id, err)
	}

	full := make([]byte, p.pageSize)
	copy(full[:PageHeaderSize], header)
	copy(full[PageHeaderSize:], body)
	if err := VerifyPageCRC(full); err != nil {
		return nil, err
	}
	return full, nil
}

// writeSuperblockRaw writes page 0 (never sealed) directly.
func (p *Pager) writeSuperblockRaw(buf []byte) error {
	SetPageCRC(buf)
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: write superblock: %v", ErrIO, err)
	}
	return nil
}

// writePageRaw writes a page directly to the database file (no cache),
// stamping it with the pager's current epoch and sealing it under AEAD.
func (p *Pager) writePageRaw(id PageID, buf []byte) error {
	if id == InvalidPageID {
		return p.writeSuperblockRaw(buf)
	}

	SetPageEpoch(buf, p.sb.Epoch)
	SetPageCRC(buf)

	header := buf[:PageHeaderSize]
	body := buf[PageHeaderSize:]
	sealed, err := p.suite.Seal(uint64(id), p.sb.Epoch, body)
	if err != nil {
		return fmt.Errorf("seal page %d: %w", id, err)
	}

	physBuf := make([]byte, PageHeaderSize+len(sealed))
	copy(physBuf, header)
	copy(physBuf[PageHeaderSize:], sealed)

	if _, err := p.file.WriteAt(physBuf, p.pageOffset(id)); err != nil {
		return fmt.Errorf("%w: write page %d: %v", ErrIO, id, err)
	}
	return nil
}

// ── Public page I/O ───────────────────────────────────────────────────────

// ReadPage returns a page by ID, using the buffer pool cache. The page is
// pinned in the cache; call UnpinPage when done.
func (p *Pager) ReadPage(id PageID) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.readPageCached(id)
}

func (p *Pager) readPageCached(id PageID) ([]byte, error) {
	p.pool.mu.Lock()
	if f, ok := p.pool.get(id); ok {
		f.pinned++
		p.pool.mu.Unlock()
		return f.buf, nil
	}
	p.pool.mu.Unlock()

	buf, err := p.readPageRaw(id)
	if err != nil {
		return nil, err
	}
	f := &PageFrame{id: id, buf: buf, pinned: 1}
	p.pool.mu.Lock()
	p.pool.put(f)
	p.pool.mu.Unlock()
	return buf, nil
}

// UnpinPage decrements the pin count.
func (p *Pager) UnpinPage(id PageID) {
	p.pool.mu.Lock()
	defer p.pool.mu.Unlock()
	if f, ok := p.pool.get(id); ok && f.pinned > 0 {
		f.pinned--
	}
}

// WritePage immediately WAL-logs a page image and marks it dirty in the
// cache. This is the simple, un-batched write path; the session layer's
// Transaction type (transaction.go) instead buffers writes in memory and
// drives the full multi-page commit protocol through CommitTransaction.
func (p *Pager) WritePage(txID TxID, id PageID, buf []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := &WALRecord{Type: WALRecordPageImage, TxID: txID, PageID: id, Data: append([]byte(nil), buf...)}
	lsn, err := p.wal.AppendRecord(rec)
	if err != nil {
		return fmt.Errorf("WAL write page %d: %w", id, err)
	}

	p.cachePutDirty(id, buf, lsn)
	return nil
}

func (p *Pager) cachePutDirty(id PageID, buf []byte, lsn LSN) {
	p.pool.mu.Lock()
	f, ok := p.pool.get(id)
	if !ok {
		f = &PageFrame{id: id, buf: make([]byte, p.pageSize)}
		p.pool.put(f)
	}
	copy(f.buf, buf)
	f.dirty = true
	f.lsn = lsn
	p.pool.mu.Unlock()
}

// ── Transaction management ───────────────────────────────────────────────

// BeginTx reserves a new transaction ID. No WAL record is written — nothing
// is durable about a transaction until it commits.
func (p *Pager) BeginTx() TxID {
	p.mu.Lock()
	defer p.mu.Unlock()
	txID := p.sb.NextTxID
	p.sb.NextTxID++
	return txID
}

// CommitTx appends a bare Commit record for the un-batched write path
// (see WritePage) and fsyncs the WAL.
func (p *Pager) CommitTx(txID TxID) error {
	if _, err := p.wal.AppendRecord(&WALRecord{Type: WALRecordCommit, TxID: txID}); err != nil {
		return err
	}
	if err := p.wal.Sync(); err != nil {
		atomic.AddUint64(&p.commitsInDoubt, 1)
		return fmt.Errorf("%w: %v", ErrCommitInDoubt, err)
	}
	return nil
}

// CommitTransaction drives the full commit protocol for a batch of dirty
// pages collected by a Transaction: append a PageImage record per dirty
// page, a MetaUpdate record, then a Commit record, and fsync. If the fsync
// fails the transaction's durability is unknown and ErrCommitInDoubt is
// returned — the caller (the session layer) must poison the session rather
// than report success or silently retry.
func (p *Pager) CommitTransaction(txID TxID, dirty map[PageID][]byte, meta MetaUpdatePayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	type applied struct {
		id  PageID
		buf []byte
		lsn LSN
	}
	var toApply []applied

	for id, buf := range dirty {
		lsn, err := p.wal.AppendRecord(&WALRecord{Type: WALRecordPageImage, TxID: txID, PageID: id, Data: append([]byte(nil), buf...)})
		if err != nil {
			return fmt.Errorf("WAL page image %d: %w", id, err)
		}
		toApply = append(toApply, applied{id: id, buf: buf, lsn: lsn})
	}

	if _, err := p.wal.AppendRecord(&WALRecord{Type: WALRecordMetaUpdate, TxID: txID, Meta: &meta}); err != nil {
		return fmt.Errorf("WAL meta update: %w", err)
	}
	if _, err := p.wal.AppendRecord(&WALRecord{Type: WALRecordCommit, TxID: txID}); err != nil {
		return fmt.Errorf("WAL commit: %w", err)
	}

	if err := p.wal.Sync(); err != nil {
		atomic.AddUint64(&p.commitsInDoubt, 1)
		return fmt.Errorf("%w: %v", ErrCommitInDoubt, err)
	}

	for _, a := range toApply {
		p.cachePutDirty(a.id, a.buf, a.lsn)
	}
	p.sb.CatalogRoot = meta.CatalogRoot
	p.sb.NextPageID = meta.NextPageID
	p.sb.NextTxID = meta.NextTxID
	if uint64(p.sb.NextPageID) > p.sb.PageCount {
		p.sb.PageCount = uint64(p.sb.NextPageID)
	}
	return nil
}

// ── Page allocation ───────────────────────────────────────────────────────

// AllocPage allocates a new page (from the free-list or by extending the
// file). Returns the page ID and a zeroed buffer. The page is pinned.
func (p *Pager) AllocPage() (PageID, []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pid := p.freeMgr.Alloc()
	if pid == InvalidPageID {
		pid = p.sb.NextPageID
		p.sb.NextPageID++
		p.sb.PageCount++
	}
	buf := make([]byte, p.pageSize)
	f := &PageFrame{id: pid, buf: buf, pinned: 1}
	p.pool.mu.Lock()
	p.pool.put(f)
	p.pool.mu.Unlock()
	return pid, buf
}

// FreePage marks a page as free for reuse.
func (p *Pager) FreePage(pid PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeMgr.Free(pid)
	p.pool.mu.Lock()
	p.pool.remove(pid)
	p.pool.mu.Unlock()
}

func (p *Pager) freeOldFreeListChain(head PageID) {
	pid := head
	seen := map[PageID]struct{}{}
	for pid != InvalidPageID {
		if _, ok := seen[pid]; ok {
			break
		}
		seen[pid] = struct{}{}
		buf, err := p.readPageRaw(pid)
		if err != nil {
			break
		}
		fl := WrapFreeListPage(buf)
		next := fl.NextFreeList()
		p.freeMgr.Free(pid)
		pid = next
	}
}

// ── Checkpoint ────────────────────────────────────────────────────────────

// Checkpoint flushes all dirty pages to the database file, writes an
// updated superblock, fsyncs the file, truncates the WAL, and bumps the
// epoch for subsequent writes. The decision of *when* to checkpoint belongs
// to the session layer's policy; this method is purely mechanical.
func (p *Pager) Checkpoint() (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if err != nil {
			atomic.AddUint64(&p.checkpointFailures, 1)
		}
	}()

	rec := &WALRecord{Type: WALRecordCommit}
	lsn, err := p.wal.AppendRecord(rec)
	if err != nil {
		return err
	}
	if err = p.wal.Sync(); err != nil {
		return err
	}

	p.pool.mu.Lock()
	dirty := p.pool.dirtyPages()
	p.pool.mu.Unlock()
	for _, f := range dirty {
		if werr := p.writePageRaw(f.id, f.buf); werr != nil {
			err = fmt.Errorf("checkpoint flush page %d: %w", f.id, werr)
			return err
		}
		f.dirty = false
	}

	oldFLHead := p.sb.FreeListRoot
	if oldFLHead != InvalidPageID {
		p.freeOldFreeListChain(oldFLHead)
	}

	flHead, flPages := p.freeMgr.FlushToDisk(p.pageSize, func() (PageID, []byte) {
		pid := p.sb.NextPageID
		p.sb.NextPageID++
		p.sb.PageCount++
		return pid, make([]byte, p.pageSize)
	})
	for _, fb := range flPages {
		pid := PageID(leUint64(fb[4:12]))
		if werr := p.writePageRaw(pid, fb); werr != nil {
			err = fmt.Errorf("checkpoint freelist page: %w", werr)
			return err
		}
	}

	p.sb.FreeListRoot = flHead
	p.sb.CheckpointLSN = lsn
	p.sb.Epoch++

	sbBuf := MarshalSuperblock(p.sb, p.pageSize)
	if err = p.writeSuperblockRaw(sbBuf); err != nil {
		return fmt.Errorf("checkpoint superblock: %w", err)
	}
	if err = p.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	if err = p.wal.Truncate(); err != nil {
		return err
	}
	return nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// ── Stats / superblock access ────────────────────────────────────────────

// Stats returns a snapshot of pager-level operational counters.
func (p *Pager) Stats() Stats {
	return Stats{
		CheckpointFailures: atomic.LoadUint64(&p.checkpointFailures),
		CommitsInDoubt:     atomic.LoadUint64(&p.commitsInDoubt),
	}
}

// WALSize returns the current WAL file size, used by checkpoint policies
// that trigger on WAL growth.
func (p *Pager) WALSize() int64 { return p.wal.Size() }

// Superblock returns a copy of the current superblock.
func (p *Pager) Superblock() Superblock {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return *p.sb
}

// UpdateSuperblock updates the in-memory superblock fields. It does NOT
// write to disk. Use Checkpoint for that.
func (p *Pager) UpdateSuperblock(fn func(sb *Superblock)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.sb)
}

// NextPageID previews (without consuming) the page ID AllocPage would hand
// out next, for a Transaction building its MetaUpdate record.
func (p *Pager) NextPageID() PageID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sb.NextPageID
}

// NextTxIDPreview previews NextTxID for a MetaUpdate record.
func (p *Pager) NextTxIDPreview() TxID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sb.NextTxID
}

// CatalogRoot returns the current catalog root page ID.
func (p *Pager) CatalogRoot() PageID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sb.CatalogRoot
}

// Epoch returns the pager's current AEAD epoch.
func (p *Pager) Epoch() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sb.Epoch
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() int { return p.pageSize }

// ── Close ─────────────────────────────────────────────────────────────────

// Close performs a final checkpoint and closes all files.
func (p *Pager) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.Checkpoint(); err != nil {
		_ = p.wal.Close()
		_ = p.file.Close()
		return err
	}
	if err := p.wal.Close(); err != nil {
		_ = p.file.Close()
		return err
	}
	return p.file.Close()
}

// Path returns the database file path.
func (p *Pager) Path() string { return p.path }

// WALPath returns the WAL file path.
func (p *Pager) WALPath() string { return p.walPath }
