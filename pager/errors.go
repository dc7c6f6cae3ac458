package pager

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. The storage core never panics on malformed input or
// a bad passphrase; every failure path returns one of these, wrapped with
// context via fmt.Errorf("...: %w", ...) so callers can errors.Is/As them.
var (
	// ErrIO wraps an underlying OS-level failure (open, read, write, fsync).
	ErrIO = errors.New("pager: I/O error")

	// ErrCorruption covers invalid magic, a cycle in a supposedly acyclic
	// structure, a length mismatch, or a freelist anomaly. A data page that
	// fails AEAD authentication is reported wrapping both ErrCorruption and
	// cipher.ErrDecryption.
	ErrCorruption = errors.New("pager: corruption detected")

	// ErrPageOverflow means a cell did not fit in a page; callers convert
	// this into a split (B-tree) or an overflow chain (large values).
	ErrPageOverflow = errors.New("pager: page overflow")

	// ErrCommitInDoubt means a commit reached a state where durability on
	// the WAL and on the data file cannot both be confirmed. The session
	// that returns this is poisoned until the database is reopened.
	ErrCommitInDoubt = errors.New("pager: commit in doubt")

	// ErrSessionPoisoned is returned for any statement but a stats query on
	// a poisoned session.
	ErrSessionPoisoned = errors.New("pager: session poisoned by a prior CommitInDoubt")

	// ErrTransaction covers API misuse: double BEGIN, COMMIT with no active
	// transaction, writing through a read-only handle, and similar.
	ErrTransaction = errors.New("pager: transaction misuse")

	// ErrMaxDepthExceeded is a Corruption sub-case: a B-tree descent or
	// overflow chain walk exceeded the depth cap, implying a cycle. It wraps
	// ErrCorruption.
	ErrMaxDepthExceeded = fmt.Errorf("%w: max depth exceeded", ErrCorruption)
)

// MaxTreeDepth bounds B-tree descent and overflow chain walks, both of which
// are logarithmic/fixed in a healthy database, so a corrupt, self-looping
// structure fails fast instead of spinning forever. The free-list chain
// walk does NOT use this: its length grows with the number of free pages,
// not with tree depth, so it uses its own high-watermark-derived bound
// instead (see FreeManager.LoadFromDisk).
const MaxTreeDepth = 64
