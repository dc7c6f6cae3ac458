package fts

import (
	"crypto/hmac"
	"crypto/sha256"
)

// TermIDSize is the length of a derived term id: a full HMAC-SHA256 tag.
const TermIDSize = sha256.Size

// TermID derives the opaque on-disk identity of a bigram under the index's
// term key. The index never stores a raw bigram — only this tag — so a
// captured database file does not reveal which bigrams it contains without
// the key. Identical bigrams always derive the same tag under the same key,
// which is exactly what a content-addressed posting-list key needs; the tag
// reveals nothing about the bigram without it.
func TermID(termKey []byte, bigram string) [TermIDSize]byte {
	mac := hmac.New(sha256.New, termKey)
	mac.Write([]byte(bigram))
	var out [TermIDSize]byte
	copy(out[:], mac.Sum(nil))
	return out
}
