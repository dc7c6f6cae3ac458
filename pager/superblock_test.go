package pager

import (
	"testing"

	"github.com/murodb/murodb/cipher"
)

func testPlaintextSuite(t *testing.T) cipher.Suite {
	t.Helper()
	suite, err := cipher.NewSuite(cipher.SuitePlaintext, nil)
	if err != nil {
		t.Fatalf("NewSuite: %v", err)
	}
	return suite
}

func TestSuperblockRoundTrip(t *testing.T) {
	suite := testPlaintextSuite(t)
	salt := make([]byte, cipher.SaltSize)
	sb, err := NewSuperblock(DefaultPageSize, suite, salt, cipher.DefaultKDFParams)
	if err != nil {
		t.Fatalf("NewSuperblock: %v", err)
	}
	sb.CatalogRoot = PageID(5)
	sb.FreeListRoot = PageID(10)
	sb.CheckpointLSN = LSN(999)
	sb.NextTxID = TxID(42)
	sb.NextPageID = PageID(50)
	sb.PageCount = 50
	sb.Epoch = 3

	buf := MarshalSuperblock(sb, DefaultPageSize)
	sb2, err := UnmarshalSuperblock(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sb2.FormatVersion != sb.FormatVersion {
		t.Errorf("version mismatch: %d vs %d", sb2.FormatVersion, sb.FormatVersion)
	}
	if sb2.PageSize != sb.PageSize {
		t.Errorf("pageSize mismatch")
	}
	if sb2.CatalogRoot != sb.CatalogRoot {
		t.Errorf("catalogRoot mismatch")
	}
	if sb2.CheckpointLSN != sb.CheckpointLSN {
		t.Errorf("checkpointLSN mismatch")
	}
	if sb2.NextTxID != sb.NextTxID || sb2.NextPageID != sb.NextPageID {
		t.Errorf("tx/page counters mismatch: %+v vs %+v", sb2, sb)
	}
	if sb2.Epoch != sb.Epoch {
		t.Errorf("epoch mismatch: %d vs %d", sb2.Epoch, sb.Epoch)
	}
}

func TestSuperblockBadMagic(t *testing.T) {
	suite := testPlaintextSuite(t)
	salt := make([]byte, cipher.SaltSize)
	sb, err := NewSuperblock(DefaultPageSize, suite, salt, cipher.DefaultKDFParams)
	if err != nil {
		t.Fatal(err)
	}
	buf := MarshalSuperblock(sb, DefaultPageSize)
	buf[sbMagicOff] = 'X'
	SetPageCRC(buf)
	if _, err := UnmarshalSuperblock(buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestSuperblockUnsupportedVersion(t *testing.T) {
	suite := testPlaintextSuite(t)
	salt := make([]byte, cipher.SaltSize)
	sb, err := NewSuperblock(DefaultPageSize, suite, salt, cipher.DefaultKDFParams)
	if err != nil {
		t.Fatal(err)
	}
	sb.FormatVersion = 99
	buf := MarshalSuperblock(sb, DefaultPageSize)
	if _, err := UnmarshalSuperblock(buf); err == nil {
		t.Fatal("expected error for unsupported format version")
	}
}

func TestSuperblockTooSmall(t *testing.T) {
	if _, err := UnmarshalSuperblock(make([]byte, 16)); err == nil {
		t.Fatal("expected error for undersized buffer")
	}
}
