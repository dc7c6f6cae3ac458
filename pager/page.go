// Package pager implements MuroDB's storage core: a page-based,
// write-ahead-logged, passphrase-encrypted key/value store with a B-tree
// index layer. The storage format consists of a main database file with
// fixed-size pages (default 4 KiB) and a sibling WAL file. Page 0 is the
// superblock; subsequent pages are typed (B-tree internal, B-tree leaf,
// overflow, free-list). Every page carries a small plaintext header (type,
// page id, LSN, CRC) followed by a heap of variable-length cells; the
// header lets recovery and the cache inspect a page without decrypting it,
// while the cell heap is sealed under AEAD before it ever reaches disk.
package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// ───────────────────────────────────────────────────────────────────────────
// Constants
// ───────────────────────────────────────────────────────────────────────────

const (
	// DefaultPageSize is the default page size in bytes.
	DefaultPageSize = 4096

	// MinPageSize is the minimum allowed page size.
	MinPageSize = 4096

	// MaxPageSize is the maximum allowed page size.
	MaxPageSize = 65536

	// PageHeaderSize is the size of the common page header in bytes.
	// Layout:
	//   [0]     Type       (1 byte)
	//   [1]     Flags      (1 byte)
	//   [2:4]   Reserved   (2 bytes)
	//   [4:12]  ID         (8 bytes, uint64 LE)
	//   [12:20] LSN        (8 bytes, uint64 LE)
	//   [20:24] CRC32      (4 bytes, uint32 LE)
	//   [24:32] Epoch      (8 bytes, uint64 LE) — the AEAD epoch this page
	//                      body was last sealed under; read in plaintext so
	//                      the pager can reconstruct the page's own AAD
	//                      without a global epoch counter
	//   [32:40] Reserved   (8 bytes)
	PageHeaderSize = 40

	// InvalidPageID represents a null/invalid page pointer.
	InvalidPageID PageID = 0

	// OverflowThreshold is a fixed 1 KiB inline value size. The B-tree does
	// not use it: its inline limit comes from overflowThresholdFor(pageSize),
	// 992 bytes for 4 KiB pages.
	OverflowThreshold = 1024
)

// ───────────────────────────────────────────────────────────────────────────
// Page types
// ───────────────────────────────────────────────────────────────────────────

// PageType identifies the kind of data stored in a page.
type PageType uint8

const (
	PageTypeSuperblock    PageType = 0x01
	PageTypeBTreeInternal PageType = 0x02
	PageTypeBTreeLeaf     PageType = 0x03
	PageTypeOverflow      PageType = 0x04
	PageTypeFreeList      PageType = 0x05
)

func (pt PageType) String() string {
	switch pt {
	case PageTypeSuperblock:
		return "Superblock"
	case PageTypeBTreeInternal:
		return "BTree-Internal"
	case PageTypeBTreeLeaf:
		return "BTree-Leaf"
	case PageTypeOverflow:
		return "Overflow"
	case PageTypeFreeList:
		return "FreeList"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(pt))
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Core types
// ───────────────────────────────────────────────────────────────────────────

// PageID is a 64-bit page identifier. Page 0 is reserved as the null
// sentinel value and also hosts the superblock.
type PageID uint64

// LSN is a monotonically increasing Log Sequence Number.
type LSN uint64

// TxID is a transaction identifier.
type TxID uint64

// ───────────────────────────────────────────────────────────────────────────
// Page header
// ───────────────────────────────────────────────────────────────────────────

// PageHeader is the header present at the start of every page, in plaintext
// even when the rest of the page is sealed under AEAD.
type PageHeader struct {
	Type     PageType
	Flags    uint8
	Reserved uint16
	ID       PageID
	LSN      LSN
	CRC      uint32
	Epoch    uint64
	Pad      [8]byte
}

// MarshalHeader writes a PageHeader into the first PageHeaderSize bytes of buf.
func MarshalHeader(h *PageHeader, buf []byte) {
	if len(buf) < PageHeaderSize {
		panic("buffer too small for PageHeader")
	}
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	binary.LittleEndian.PutUint16(buf[2:4], h.Reserved)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(h.ID))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(h.LSN))
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC)
	binary.LittleEndian.PutUint64(buf[24:32], h.Epoch)
	copy(buf[32:40], h.Pad[:])
}

// UnmarshalHeader reads a PageHeader from the first PageHeaderSize bytes of buf.
func UnmarshalHeader(buf []byte) PageHeader {
	var h PageHeader
	h.Type = PageType(buf[0])
	h.Flags = buf[1]
	h.Reserved = binary.LittleEndian.Uint16(buf[2:4])
	h.ID = PageID(binary.LittleEndian.Uint64(buf[4:12]))
	h.LSN = LSN(binary.LittleEndian.Uint64(buf[12:20]))
	h.CRC = binary.LittleEndian.Uint32(buf[20:24])
	h.Epoch = binary.LittleEndian.Uint64(buf[24:32])
	copy(h.Pad[:], buf[32:40])
	return h
}

// PageEpoch reads just the Epoch field from a raw header without a full
// unmarshal — the pager needs this before it can even validate the CRC,
// since Epoch feeds the AEAD AAD.
func PageEpoch(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[24:32])
}

// SetPageEpoch overwrites the Epoch field in a raw page buffer.
func SetPageEpoch(buf []byte, epoch uint64) {
	binary.LittleEndian.PutUint64(buf[24:32], epoch)
}

// ───────────────────────────────────────────────────────────────────────────
// CRC helpers
// ───────────────────────────────────────────────────────────────────────────

// crcTable is the CRC32 (Castagnoli) table used throughout the package.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputePageCRC computes the CRC32-C of a full (plaintext, in-memory) page,
// treating the CRC field as zero during computation. This is a corruption
// tripwire independent of AEAD authentication — it also protects the
// plaintext suite, which has no authentication tag of its own.
func ComputePageCRC(page []byte) uint32 {
	h := crc32.New(crcTable)
	h.Write(page[:20])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(page[24:])
	return h.Sum32()
}

// SetPageCRC computes and writes the CRC into the page header.
func SetPageCRC(page []byte) {
	c := ComputePageCRC(page)
	binary.LittleEndian.PutUint32(page[20:24], c)
}

// VerifyPageCRC checks the CRC32 checksum of a page.
func VerifyPageCRC(page []byte) error {
	stored := binary.LittleEndian.Uint32(page[20:24])
	computed := ComputePageCRC(page)
	if stored != computed {
		pid := PageID(binary.LittleEndian.Uint64(page[4:12]))
		return fmt.Errorf("%w: CRC mismatch on page %d: stored=%08x computed=%08x", ErrCorruption, pid, stored, computed)
	}
	return nil
}

// ───────────────────────────────────────────────────────────────────────────
// Page helper
// ───────────────────────────────────────────────────────────────────────────

// NewPage allocates a zeroed page buffer at the given size and writes its header.
func NewPage(pageSize int, pt PageType, id PageID) []byte {
	buf := make([]byte, pageSize)
	h := &PageHeader{Type: pt, ID: id}
	MarshalHeader(h, buf)
	return buf
}
