package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/murodb/murodb/cipher"
)

// ───────────────────────────────────────────────────────────────────────────
// WAL file format
// ───────────────────────────────────────────────────────────────────────────
//
// The WAL is an append-only file of encrypted frames:
//
//   len:u32 | lsn:u64 | kind:u8 | sealed(txid || page_id || payload_len:u32
//                                        || crc32:u32 || payload)
//
// lsn and kind sit outside the AEAD payload in plaintext, forming the AAD
// (AAD = lsn || kind), because recovery needs them to know how to seal-
// open the rest of the frame before it can decode anything else. The
// plaintext suite leaves the payload unsealed but the frame shape (and the
// CRC inside it) is identical either way, so recovery logic doesn't care
// which suite produced the file.
//
// WAL file header (first 32 bytes, never sealed — it has no secret content):
//   [0:8]   Magic       "MURODWAL"
//   [8:12]  Version     uint32 LE
//   [12:16] PageSize    uint32 LE
//   [16:24] Reserved
//   [24:28] HeaderCRC   uint32 LE (CRC of bytes 0:24)
//   [28:32] Padding

const (
	WALMagic       = "MURODWAL"
	WALVersion     = uint32(2)
	WALFileHdrSize = 32
)

// WALRecordType identifies the kind of WAL record: exactly three kinds.
type WALRecordType uint8

const (
	WALRecordPageImage  WALRecordType = 0x01
	WALRecordMetaUpdate WALRecordType = 0x02
	WALRecordCommit     WALRecordType = 0x03
)

func (rt WALRecordType) String() string {
	switch rt {
	case WALRecordPageImage:
		return "PAGE_IMAGE"
	case WALRecordMetaUpdate:
		return "META_UPDATE"
	case WALRecordCommit:
		return "COMMIT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(rt))
	}
}

// MetaUpdatePayload mirrors the superblock fields a MetaUpdate record
// carries forward.
type MetaUpdatePayload struct {
	CatalogRoot PageID
	NextPageID  PageID
	NextTxID    TxID
	Epoch       uint64
}

func (m MetaUpdatePayload) marshal() []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(m.CatalogRoot))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.NextPageID))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(m.NextTxID))
	binary.LittleEndian.PutUint64(buf[24:32], m.Epoch)
	return buf
}

func unmarshalMetaUpdate(buf []byte) (MetaUpdatePayload, error) {
	if len(buf) != 32 {
		return MetaUpdatePayload{}, fmt.Errorf("%w: MetaUpdate payload wrong size %d", ErrCorruption, len(buf))
	}
	return MetaUpdatePayload{
		CatalogRoot: PageID(binary.LittleEndian.Uint64(buf[0:8])),
		NextPageID:  PageID(binary.LittleEndian.Uint64(buf[8:16])),
		NextTxID:    TxID(binary.LittleEndian.Uint64(buf[16:24])),
		Epoch:       binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}

// WALRecord is an in-memory representation of a WAL record.
type WALRecord struct {
	Type   WALRecordType
	LSN    LSN
	TxID   TxID
	PageID PageID             // PageImage only
	Data   []byte             // plaintext page image, PageImage only
	Meta   *MetaUpdatePayload // MetaUpdate only
}

// ───────────────────────────────────────────────────────────────────────────
// WAL writer/reader
// ───────────────────────────────────────────────────────────────────────────

// WALFile manages the append-only, encrypted WAL file.
type WALFile struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	pageSize int
	suite    cipher.Suite
	nextLSN  LSN
	writePos int64
}

// OpenWALFile opens or creates a WAL file, sealing/opening frames with suite.
func OpenWALFile(path string, pageSize int, suite cipher.Suite) (*WALFile, error) {
	exists := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		exists = false
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open WAL: %v", ErrIO, err)
	}

	wf := &WALFile{f: f, path: path, pageSize: pageSize, suite: suite, nextLSN: 1}

	if exists {
		if err := wf.validateHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := wf.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
	}

	endPos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: seek WAL end: %v", ErrIO, err)
	}
	wf.writePos = endPos

	return wf, nil
}

func (wf *WALFile) writeHeader() error {
	var hdr [WALFileHdrSize]byte
	copy(hdr[0:8], WALMagic)
	binary.LittleEndian.PutUint32(hdr[8:12], WALVersion)
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(wf.pageSize))
	c := crc32.Checksum(hdr[:24], crcTable)
	binary.LittleEndian.PutUint32(hdr[24:28], c)
	if _, err := wf.f.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("%w: write WAL header: %v", ErrIO, err)
	}
	return wf.f.Sync()
}

func (wf *WALFile) validateHeader() error {
	var hdr [WALFileHdrSize]byte
	n, err := wf.f.ReadAt(hdr[:], 0)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: read WAL header: %v", ErrIO, err)
	}
	if n < WALFileHdrSize {
		return fmt.Errorf("%w: WAL header too short: %d bytes", ErrCorruption, n)
	}
	if string(hdr[0:8]) != WALMagic {
		return fmt.Errorf("%w: bad WAL magic", ErrCorruption)
	}
	ver := binary.LittleEndian.Uint32(hdr[8:12])
	if ver != WALVersion {
		return fmt.Errorf("%w: unsupported WAL version %d", ErrCorruption, ver)
	}
	ps := binary.LittleEndian.Uint32(hdr[12:16])
	if int(ps) != wf.pageSize {
		return fmt.Errorf("%w: WAL page size %d != expected %d", ErrCorruption, ps, wf.pageSize)
	}
	stored := binary.LittleEndian.Uint32(hdr[24:28])
	computed := crc32.Checksum(hdr[:24], crcTable)
	if stored != computed {
		return fmt.Errorf("%w: WAL header CRC mismatch", ErrCorruption)
	}
	return nil
}

// AppendRecord seals and writes a WAL record, assigning it a monotonic LSN.
func (wf *WALFile) AppendRecord(rec *WALRecord) (LSN, error) {
	wf.mu.Lock()
	defer wf.mu.Unlock()

	lsn := wf.nextLSN
	wf.nextLSN++
	rec.LSN = lsn

	frame, err := wf.sealRecord(rec)
	if err != nil {
		return 0, err
	}
	n, err := wf.f.WriteAt(frame, wf.writePos)
	if err != nil {
		return 0, fmt.Errorf("%w: WAL append: %v", ErrIO, err)
	}
	wf.writePos += int64(n)
	return lsn, nil
}

func (wf *WALFile) sealRecord(rec *WALRecord) ([]byte, error) {
	inner := marshalWALInner(rec)
	sealed, err := wf.suite.Seal(uint64(rec.LSN), uint64(rec.Type), inner)
	if err != nil {
		return nil, fmt.Errorf("WAL seal: %w", err)
	}

	frame := make([]byte, 4+8+1+len(sealed))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(8+1+len(sealed)))
	binary.LittleEndian.PutUint64(frame[4:12], uint64(rec.LSN))
	frame[12] = byte(rec.Type)
	copy(frame[13:], sealed)
	return frame, nil
}

// marshalWALInner builds the plaintext body that gets sealed: txid | page_id
// | payload_len:u32 | crc32:u32 | payload.
func marshalWALInner(rec *WALRecord) []byte {
	var payload []byte
	switch rec.Type {
	case WALRecordPageImage:
		payload = rec.Data
	case WALRecordMetaUpdate:
		payload = rec.Meta.marshal()
	case WALRecordCommit:
		payload = nil
	}
	buf := make([]byte, 8+8+4+4+len(payload))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(rec.TxID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(rec.PageID))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(payload)))
	h := crc32.New(crcTable)
	h.Write(buf[:20])
	h.Write(payload)
	binary.LittleEndian.PutUint32(buf[20:24], h.Sum32())
	copy(buf[24:], payload)
	return buf
}

func unmarshalWALInner(kind WALRecordType, lsn LSN, inner []byte) (*WALRecord, error) {
	if len(inner) < 24 {
		return nil, fmt.Errorf("%w: WAL record too short at lsn %d", ErrCorruption, lsn)
	}
	txid := TxID(binary.LittleEndian.Uint64(inner[0:8]))
	pageID := PageID(binary.LittleEndian.Uint64(inner[8:16]))
	payloadLen := int(binary.LittleEndian.Uint32(inner[16:20]))
	storedCRC := binary.LittleEndian.Uint32(inner[20:24])
	if len(inner) != 24+payloadLen {
		return nil, fmt.Errorf("%w: WAL payload length mismatch at lsn %d", ErrCorruption, lsn)
	}
	payload := inner[24:]

	h := crc32.New(crcTable)
	h.Write(inner[:20])
	h.Write(payload)
	if h.Sum32() != storedCRC {
		return nil, fmt.Errorf("%w: WAL record CRC mismatch at lsn %d", ErrCorruption, lsn)
	}

	rec := &WALRecord{Type: kind, LSN: lsn, TxID: txid, PageID: pageID}
	switch kind {
	case WALRecordPageImage:
		rec.Data = append([]byte(nil), payload...)
	case WALRecordMetaUpdate:
		meta, err := unmarshalMetaUpdate(payload)
		if err != nil {
			return nil, err
		}
		rec.Meta = &meta
	case WALRecordCommit:
		// no payload
	default:
		return nil, fmt.Errorf("%w: unknown WAL record kind 0x%02x at lsn %d", ErrCorruption, kind, lsn)
	}
	return rec, nil
}

// Sync fsyncs the WAL file to guarantee durability.
func (wf *WALFile) Sync() error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	if err := wf.f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// Close closes the WAL file.
func (wf *WALFile) Close() error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.f.Close()
}

// Truncate resets the WAL file to just the header (after a checkpoint).
func (wf *WALFile) Truncate() error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	if err := wf.f.Truncate(WALFileHdrSize); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	wf.writePos = WALFileHdrSize
	wf.nextLSN = 1
	return wf.f.Sync()
}

// Size returns the current WAL file size in bytes (used by the checkpoint
// policy's WAL-bytes threshold).
func (wf *WALFile) Size() int64 {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.writePos
}

// NextLSN returns the next LSN that will be assigned.
func (wf *WALFile) NextLSN() LSN {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.nextLSN
}

// SetNextLSN allows recovery to set the LSN counter.
func (wf *WALFile) SetNextLSN(lsn LSN) {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	wf.nextLSN = lsn
}

// ───────────────────────────────────────────────────────────────────────────
// Reading all records (recovery)
// ───────────────────────────────────────────────────────────────────────────

// ReadAllRecords decodes every well-formed frame from the WAL in lsn order,
// stopping (without error) at the first frame that fails to parse, fails
// its CRC, or fails AEAD authentication — that is the torn tail left by a
// crash mid-append.
func ReadAllRecords(path string, suite cipher.Suite) ([]*WALRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer f.Close()

	if _, err := f.Seek(WALFileHdrSize, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	var records []*WALRecord
	for {
		rec, err := readOneFrame(f, suite)
		if err != nil {
			break
		}
		records = append(records, rec)
	}
	return records, nil
}

func readOneFrame(r io.Reader, suite cipher.Suite) (*WALRecord, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	frameLen := binary.LittleEndian.Uint32(lenBuf[:])
	if frameLen < 9 {
		return nil, fmt.Errorf("%w: implausible WAL frame length", ErrCorruption)
	}
	rest := make([]byte, frameLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	lsn := LSN(binary.LittleEndian.Uint64(rest[0:8]))
	kind := WALRecordType(rest[8])
	sealed := rest[9:]

	inner, err := suite.Open(uint64(lsn), uint64(kind), sealed)
	if err != nil {
		return nil, err
	}
	return unmarshalWALInner(kind, lsn, inner)
}
