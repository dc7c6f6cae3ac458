package pager

import (
	"encoding/binary"
	"fmt"

	"github.com/murodb/murodb/cipher"
)

// ───────────────────────────────────────────────────────────────────────────
// Superblock — Page 0 (the file header)
// ───────────────────────────────────────────────────────────────────────────
//
// Layout (fits in one page, default 4 KiB):
//
//  Offset  Size  Field
//  ──────  ────  ───────────────────
//  0       40    Common PageHeader (Type=Superblock, ID=0)
//  40      8     Magic            [8]byte "MURODB\x00\x00"
//  48      4     FormatVersion    uint32 LE
//  52      4     PageSize         uint32 LE
//  56      8     PageCount        uint64 LE
//  64      1     CipherSuiteID    uint8
//  65      16    KDFSalt          [16]byte
//  81      4     KDFTimeCost      uint32 LE
//  85      4     KDFMemoryKiB     uint32 LE
//  89      1     KDFParallelism   uint8
//  90      2     VerifierLen      uint16 LE
//  92      64    Verifier         [64]byte (sealed key-verifier ciphertext, zero padded)
//  156     8     CatalogRoot      uint64 LE — opaque root page id for the external collaborator's catalog
//  164     8     FreeListRoot     uint64 LE
//  172     8     CheckpointLSN    uint64 LE
//  180     8     NextTxID         uint64 LE
//  188     8     NextPageID       uint64 LE
//  196     8     Epoch            uint64 LE — bumped on every meta flush, mixed into page AAD
//  204     ...   Reserved, zero-filled to end of page
//
// The common PageHeader's CRC covers the whole plaintext page. The
// superblock itself is never sealed under AEAD (it must be readable before
// a key is derived), but its CRC still guards against torn writes.

const (
	SuperblockMagic = "MURODB\x00\x00"

	CurrentFormatVersion uint32 = 1

	sbMagicOff          = PageHeaderSize       // 40
	sbFormatVersionOff  = sbMagicOff + 8       // 48
	sbPageSizeOff       = sbFormatVersionOff + 4
	sbPageCountOff      = sbPageSizeOff + 4
	sbCipherSuiteOff    = sbPageCountOff + 8
	sbKDFSaltOff        = sbCipherSuiteOff + 1
	sbKDFTimeCostOff    = sbKDFSaltOff + cipher.SaltSize
	sbKDFMemoryOff      = sbKDFTimeCostOff + 4
	sbKDFParallelismOff = sbKDFMemoryOff + 4
	sbVerifierLenOff    = sbKDFParallelismOff + 1
	sbVerifierOff       = sbVerifierLenOff + 2
	sbVerifierCap       = 64
	sbCatalogRootOff    = sbVerifierOff + sbVerifierCap
	sbFreeListRootOff   = sbCatalogRootOff + 8
	sbCheckpointLSNOff  = sbFreeListRootOff + 8
	sbNextTxIDOff       = sbCheckpointLSNOff + 8
	sbNextPageIDOff     = sbNextTxIDOff + 8
	sbEpochOff          = sbNextPageIDOff + 8
	sbEnd               = sbEpochOff + 8
)

// Superblock holds the parsed contents of page 0.
type Superblock struct {
	FormatVersion uint32
	PageSize      uint32
	PageCount     uint64

	CipherSuiteID cipher.SuiteID
	KDFSalt       []byte
	KDFParams     cipher.KDFParams
	Verifier      []byte // sealed key-verifier ciphertext

	CatalogRoot   PageID
	FreeListRoot  PageID
	CheckpointLSN LSN
	NextTxID      TxID
	NextPageID    PageID

	// Epoch increments on every meta flush. It is mixed into the AAD of
	// every page write so a replayed ciphertext from an earlier epoch fails
	// authentication.
	Epoch uint64
}

func init() {
	if sbEnd > MinPageSize {
		panic("pager: superblock layout exceeds minimum page size")
	}
}

// MarshalSuperblock serializes a Superblock into a full page buffer.
func MarshalSuperblock(sb *Superblock, pageSize int) []byte {
	buf := NewPage(pageSize, PageTypeSuperblock, 0)

	copy(buf[sbMagicOff:sbMagicOff+8], SuperblockMagic)
	binary.LittleEndian.PutUint32(buf[sbFormatVersionOff:], sb.FormatVersion)
	binary.LittleEndian.PutUint32(buf[sbPageSizeOff:], sb.PageSize)
	binary.LittleEndian.PutUint64(buf[sbPageCountOff:], sb.PageCount)

	buf[sbCipherSuiteOff] = byte(sb.CipherSuiteID)
	copy(buf[sbKDFSaltOff:sbKDFSaltOff+cipher.SaltSize], sb.KDFSalt)
	binary.LittleEndian.PutUint32(buf[sbKDFTimeCostOff:], sb.KDFParams.TimeCost)
	binary.LittleEndian.PutUint32(buf[sbKDFMemoryOff:], sb.KDFParams.MemoryKiB)
	buf[sbKDFParallelismOff] = sb.KDFParams.Parallelism

	vlen := len(sb.Verifier)
	if vlen > sbVerifierCap {
		panic("pager: verifier too large for superblock")
	}
	binary.LittleEndian.PutUint16(buf[sbVerifierLenOff:], uint16(vlen))
	copy(buf[sbVerifierOff:sbVerifierOff+vlen], sb.Verifier)

	binary.LittleEndian.PutUint64(buf[sbCatalogRootOff:], uint64(sb.CatalogRoot))
	binary.LittleEndian.PutUint64(buf[sbFreeListRootOff:], uint64(sb.FreeListRoot))
	binary.LittleEndian.PutUint64(buf[sbCheckpointLSNOff:], uint64(sb.CheckpointLSN))
	binary.LittleEndian.PutUint64(buf[sbNextTxIDOff:], uint64(sb.NextTxID))
	binary.LittleEndian.PutUint64(buf[sbNextPageIDOff:], uint64(sb.NextPageID))
	binary.LittleEndian.PutUint64(buf[sbEpochOff:], sb.Epoch)

	SetPageCRC(buf)
	return buf
}

// UnmarshalSuperblock decodes page 0 from buf, validating magic, format
// version, and CRC.
func UnmarshalSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < MinPageSize {
		return nil, fmt.Errorf("%w: superblock too small: %d bytes", ErrCorruption, len(buf))
	}
	if err := VerifyPageCRC(buf); err != nil {
		return nil, fmt.Errorf("superblock: %w", err)
	}
	magic := string(buf[sbMagicOff : sbMagicOff+8])
	if magic != SuperblockMagic {
		return nil, fmt.Errorf("%w: bad magic %q, expected %q", ErrCorruption, magic, SuperblockMagic)
	}

	sb := &Superblock{
		FormatVersion: binary.LittleEndian.Uint32(buf[sbFormatVersionOff:]),
		PageSize:      binary.LittleEndian.Uint32(buf[sbPageSizeOff:]),
		PageCount:     binary.LittleEndian.Uint64(buf[sbPageCountOff:]),
		CipherSuiteID: cipher.SuiteID(buf[sbCipherSuiteOff]),
		KDFSalt:       append([]byte(nil), buf[sbKDFSaltOff:sbKDFSaltOff+cipher.SaltSize]...),
		KDFParams: cipher.KDFParams{
			TimeCost:    binary.LittleEndian.Uint32(buf[sbKDFTimeCostOff:]),
			MemoryKiB:   binary.LittleEndian.Uint32(buf[sbKDFMemoryOff:]),
			Parallelism: buf[sbKDFParallelismOff],
		},
		CatalogRoot:   PageID(binary.LittleEndian.Uint64(buf[sbCatalogRootOff:])),
		FreeListRoot:  PageID(binary.LittleEndian.Uint64(buf[sbFreeListRootOff:])),
		CheckpointLSN: LSN(binary.LittleEndian.Uint64(buf[sbCheckpointLSNOff:])),
		NextTxID:      TxID(binary.LittleEndian.Uint64(buf[sbNextTxIDOff:])),
		NextPageID:    PageID(binary.LittleEndian.Uint64(buf[sbNextPageIDOff:])),
		Epoch:         binary.LittleEndian.Uint64(buf[sbEpochOff:]),
	}
	vlen := int(binary.LittleEndian.Uint16(buf[sbVerifierLenOff:]))
	if vlen > sbVerifierCap {
		return nil, fmt.Errorf("%w: verifier length %d exceeds capacity", ErrCorruption, vlen)
	}
	sb.Verifier = append([]byte(nil), buf[sbVerifierOff:sbVerifierOff+vlen]...)

	if sb.FormatVersion != CurrentFormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d (this build supports %d)",
			ErrCorruption, sb.FormatVersion, CurrentFormatVersion)
	}
	if sb.PageSize < MinPageSize || sb.PageSize > MaxPageSize {
		return nil, fmt.Errorf("%w: page size %d out of range [%d..%d]",
			ErrCorruption, sb.PageSize, MinPageSize, MaxPageSize)
	}
	if sb.PageSize&(sb.PageSize-1) != 0 {
		return nil, fmt.Errorf("%w: page size %d is not a power of two", ErrCorruption, sb.PageSize)
	}

	return sb, nil
}

// NewSuperblock creates a default Superblock for a new database, sealed
// under the given cipher suite and KDF parameters.
func NewSuperblock(pageSize uint32, suite cipher.Suite, salt []byte, params cipher.KDFParams) (*Superblock, error) {
	verifier, err := cipher.SealVerifier(suite)
	if err != nil {
		return nil, fmt.Errorf("seal verifier: %w", err)
	}
	return &Superblock{
		FormatVersion: CurrentFormatVersion,
		PageSize:      pageSize,
		PageCount:     1,
		CipherSuiteID: suite.ID(),
		KDFSalt:       salt,
		KDFParams:     params,
		Verifier:      verifier,
		CatalogRoot:   InvalidPageID,
		FreeListRoot:  InvalidPageID,
		CheckpointLSN: 0,
		NextTxID:      1,
		NextPageID:    1, // page 0 is the superblock
		Epoch:         1,
	}, nil
}
