// Package cipher implements page-level authenticated encryption for the
// storage core. Every page on disk (other than its common header) is
// encrypted independently under a key derived from the database passphrase,
// so a single leaked page never exposes neighboring pages and the page
// header (page id, type, LSN) stays visible for recovery without decryption.
package cipher

import (
	"crypto/aes"
	gcipher "crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// SuiteID identifies the on-disk cipher suite, persisted in the superblock
// so a database file is self-describing about how to decrypt itself.
type SuiteID uint8

const (
	// SuiteAESGCM is AES-256-GCM with a random 96-bit nonce per encryption.
	SuiteAESGCM SuiteID = 1

	// SuitePlaintext stores pages unencrypted. Only ever selected through
	// MURODB_INSECURE_PLAINTEXT, used by tests that want to inspect raw
	// page bytes without deriving a key.
	SuitePlaintext SuiteID = 0
)

// NonceSize is the AES-GCM nonce length in bytes.
const NonceSize = 12

// TagSize is the AES-GCM authentication tag length in bytes.
const TagSize = 16

// KeySize is the master key length in bytes (AES-256).
const KeySize = 32

// ErrDecryption is returned when a page fails authentication — either the
// passphrase is wrong, the page was corrupted, or it was tampered with.
var ErrDecryption = errors.New("cipher: page authentication failed")

// Suite encrypts and decrypts individual pages. The additional authenticated
// data binds each ciphertext to the page it came from and to the database's
// current epoch, so a page image can never be silently replayed onto a
// different page id or an older epoch.
type Suite interface {
	ID() SuiteID
	// Seal encrypts plaintext for the given page id and epoch, returning
	// nonce || ciphertext || tag (or plaintext unchanged, for SuitePlaintext).
	Seal(pageID uint64, epoch uint64, plaintext []byte) ([]byte, error)
	// Open authenticates and decrypts a sealed page payload.
	Open(pageID uint64, epoch uint64, sealed []byte) ([]byte, error)
	// Overhead is the number of extra bytes Seal adds beyond the plaintext.
	Overhead() int
}

func buildAAD(pageID, epoch uint64) []byte {
	aad := make([]byte, 16)
	binary.LittleEndian.PutUint64(aad[0:8], pageID)
	binary.LittleEndian.PutUint64(aad[8:16], epoch)
	return aad
}

// NewSuite constructs a Suite for the given key material. The key must be
// exactly KeySize bytes for SuiteAESGCM; it is ignored for SuitePlaintext.
func NewSuite(id SuiteID, key []byte) (Suite, error) {
	switch id {
	case SuiteAESGCM:
		if len(key) != KeySize {
			return nil, fmt.Errorf("cipher: AES-256-GCM key must be %d bytes, got %d", KeySize, len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("cipher: %w", err)
		}
		aead, err := gcipher.NewGCMWithNonceSize(block, NonceSize)
		if err != nil {
			return nil, fmt.Errorf("cipher: %w", err)
		}
		return &aeadSuite{aead: aead}, nil
	case SuitePlaintext:
		return plaintextSuite{}, nil
	default:
		return nil, fmt.Errorf("cipher: unknown suite id %d", id)
	}
}

// aeadSuite wraps AES-256-GCM. A fresh random nonce is generated for every
// Seal call rather than derived from a counter: the storage core can crash
// between allocating an LSN and writing a page, so any scheme that ties the
// nonce to a monotonic counter risks reuse across crash/replay. A random
// 96-bit nonce keeps reuse probability negligible for the lifetime of any
// single database file.
type aeadSuite struct {
	aead gcipher.AEAD
}

func (s *aeadSuite) ID() SuiteID { return SuiteAESGCM }

func (s *aeadSuite) Overhead() int { return NonceSize + TagSize }

func (s *aeadSuite) Seal(pageID, epoch uint64, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cipher: nonce: %w", err)
	}
	aad := buildAAD(pageID, epoch)
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	copy(out, nonce)
	out = s.aead.Seal(out, nonce, plaintext, aad)
	return out, nil
}

func (s *aeadSuite) Open(pageID, epoch uint64, sealed []byte) ([]byte, error) {
	if len(sealed) < NonceSize+TagSize {
		return nil, ErrDecryption
	}
	nonce := sealed[:NonceSize]
	ct := sealed[NonceSize:]
	aad := buildAAD(pageID, epoch)
	pt, err := s.aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrDecryption
	}
	return pt, nil
}

// plaintextSuite performs no transformation. It exists so the pager can be
// exercised (tests, inspection tools) without deriving a key, and is never
// selected unless the caller sets MURODB_INSECURE_PLAINTEXT.
type plaintextSuite struct{}

func (plaintextSuite) ID() SuiteID                                        { return SuitePlaintext }
func (plaintextSuite) Overhead() int                                      { return 0 }
func (plaintextSuite) Seal(_, _ uint64, plaintext []byte) ([]byte, error) { return plaintext, nil }
func (plaintextSuite) Open(_, _ uint64, sealed []byte) ([]byte, error)    { return sealed, nil }

// ───────────────────────────────────────────────────────────────────────────
// Key derivation
// ───────────────────────────────────────────────────────────────────────────

// SaltSize is the length of the KDF salt stored in the superblock.
const SaltSize = 16

// KDFParams controls the Argon2id cost parameters. Persisted in the
// superblock so a database opened later (possibly by a different build with
// different defaults) reproduces the exact same key.
type KDFParams struct {
	TimeCost    uint32
	MemoryKiB   uint32
	Parallelism uint8
}

// DefaultKDFParams are conservative parameters suitable for an interactive
// "open this database" path — a few hundred milliseconds on commodity
// hardware.
var DefaultKDFParams = KDFParams{TimeCost: 3, MemoryKiB: 64 * 1024, Parallelism: 4}

// DeriveKey runs Argon2id over the passphrase and salt to produce a 256-bit
// master key. Argon2id is memory-hard, which makes offline passphrase
// guessing against a stolen database file expensive even though the
// passphrase itself may be low-entropy.
func DeriveKey(passphrase string, salt []byte, params KDFParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt, params.TimeCost, params.MemoryKiB, params.Parallelism, KeySize)
}

// NewSalt generates a fresh random KDF salt for a new database.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("cipher: salt: %w", err)
	}
	return salt, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Key verifier
// ───────────────────────────────────────────────────────────────────────────

// verifierPlaintext is a fixed, recognizable plaintext sealed under the
// derived key and stored in the superblock at database creation time. On a
// later open, the passphrase is rejected immediately (without attempting to
// decrypt real pages) if this verifier fails to decrypt.
const verifierText = "murodb-key-verifier-v1"

var verifierPlaintext = []byte(verifierText)

// VerifierSize is the on-disk size of the sealed verifier for SuiteAESGCM.
const VerifierSize = NonceSize + len(verifierText) + TagSize

// SealVerifier produces the sealed verifier to store in the superblock.
func SealVerifier(suite Suite) ([]byte, error) {
	return suite.Seal(0, 0, verifierPlaintext)
}

// CheckVerifier confirms a derived key matches the one the database was
// created with. Returns ErrDecryption on mismatch.
func CheckVerifier(suite Suite, sealed []byte) error {
	pt, err := suite.Open(0, 0, sealed)
	if err != nil {
		return ErrDecryption
	}
	if subtle.ConstantTimeCompare(pt, verifierPlaintext) != 1 {
		return ErrDecryption
	}
	return nil
}
