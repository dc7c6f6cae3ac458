package fts

import "testing"

func TestTokenizeBasicBigrams(t *testing.T) {
	bigrams := Tokenize("abc")
	if len(bigrams) != 2 {
		t.Fatalf("len(bigrams) = %d, want 2", len(bigrams))
	}
	if bigrams[0].Text != "ab" || bigrams[0].Pos != 0 {
		t.Errorf("bigrams[0] = %+v, want {ab 0}", bigrams[0])
	}
	if bigrams[1].Text != "bc" || bigrams[1].Pos != 1 {
		t.Errorf("bigrams[1] = %+v, want {bc 1}", bigrams[1])
	}
}

func TestTokenizeLowercases(t *testing.T) {
	bigrams := Tokenize("AB")
	if bigrams[0].Text != "ab" {
		t.Errorf("Tokenize did not lowercase: got %q", bigrams[0].Text)
	}
}

func TestTokenizeEmptyString(t *testing.T) {
	if bigrams := Tokenize(""); bigrams != nil {
		t.Errorf("Tokenize(\"\") = %v, want nil", bigrams)
	}
}

func TestTokenizeSingleRune(t *testing.T) {
	bigrams := Tokenize("x")
	if len(bigrams) != 1 {
		t.Fatalf("len(bigrams) = %d, want 1", len(bigrams))
	}
	if bigrams[0].Text != "xx" {
		t.Errorf("single-rune bigram = %q, want \"xx\"", bigrams[0].Text)
	}
}

func TestTokenizeCJKPositionsAreConsecutive(t *testing.T) {
	bigrams := Tokenize("東京タワー")
	for i, bg := range bigrams {
		if bg.Pos != uint32(i) {
			t.Errorf("bigram %d has position %d, want %d", i, bg.Pos, i)
		}
	}
	if bigrams[0].Text != "東京" {
		t.Errorf("first bigram = %q, want 東京", bigrams[0].Text)
	}
}

func TestTokenizeNFKCNormalizesFullwidth(t *testing.T) {
	// Fullwidth "ＡＢ" (U+FF21 U+FF22) NFKC-normalizes to ASCII "AB", which
	// then lowercases to "ab" — matching ordinary ASCII input.
	fullwidth := Tokenize("ＡＢ")
	ascii := Tokenize("AB")
	if len(fullwidth) != len(ascii) || fullwidth[0].Text != ascii[0].Text {
		t.Errorf("NFKC-normalized fullwidth input = %+v, want to match ascii %+v", fullwidth, ascii)
	}
}
