package fts

import (
	"math"
	"sort"
)

// Result is one scored document from a query.
type Result struct {
	DocID uint64
	Score float64
}

// BM25 tuning constants, the standard values used absent corpus-specific
// tuning. The index does not track per-document token length, only the
// corpus-wide average (FtsStats.AvgDocLen); every document is scored as if
// it were exactly average length, so the bm25B length-normalization term
// is always neutral (contributes a factor of 1). This trades away
// length-normalization accuracy for not having to persist a per-doc length
// field anywhere in the posting-list format.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// QueryNatural bigrams the query text, loads each term's posting list, and
// scores every candidate document with BM25 over the corpus statistics.
// Results are sorted by descending score; documents scoring zero (no
// matching terms) are omitted.
func (idx *FtsIndex) QueryNatural(text string) ([]Result, error) {
	stats, err := idx.GetStats()
	if err != nil {
		return nil, err
	}
	avgDocLen := stats.AvgDocLen()

	bigrams := Tokenize(text)
	seenTerms := make(map[string]struct{})
	scores := make(map[uint64]float64)

	for _, bg := range bigrams {
		if _, ok := seenTerms[bg.Text]; ok {
			continue
		}
		seenTerms[bg.Text] = struct{}{}

		pl, err := idx.GetPostings(bg.Text)
		if err != nil {
			return nil, err
		}
		df := pl.DocFreq()
		if df == 0 {
			continue
		}
		idf := bm25IDF(stats.TotalDocs, uint64(df))

		for _, entry := range pl.Entries {
			tf := float64(len(entry.Positions))
			scores[entry.DocID] += bm25Term(idf, tf, avgDocLen)
		}
	}

	var results []Result
	for docID, score := range scores {
		if score > 0 {
			results = append(results, Result{DocID: docID, Score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	return results, nil
}

func bm25IDF(totalDocs, docFreq uint64) float64 {
	n := float64(totalDocs)
	df := float64(docFreq)
	// Standard BM25 IDF with a +1 inside the log to keep it non-negative
	// for common terms.
	x := (n-df+0.5)/(df+0.5) + 1
	return math.Log(x)
}

// bm25Term scores one term's contribution for a document with tf
// occurrences, given avgDocLen as a stand-in for the document's own length
// (see the package-level comment on bm25K1/bm25B).
func bm25Term(idf, tf, avgDocLen float64) float64 {
	docLen := avgDocLen
	if avgDocLen <= 0 {
		docLen = tf
		avgDocLen = tf
	}
	numerator := tf * (bm25K1 + 1)
	denominator := tf + bm25K1*(1-bm25B+bm25B*(docLen/avgDocLen))
	if denominator == 0 {
		return 0
	}
	return idf * (numerator / denominator)
}

// ───────────────────────────────────────────────────────────────────────────
// Boolean queries
// ───────────────────────────────────────────────────────────────────────────

// BooleanTermKind distinguishes how a parsed boolean query term constrains
// the result set.
type BooleanTermKind int

const (
	TermMust BooleanTermKind = iota
	TermMustNot
	TermPhrase
	TermShould
)

// BooleanTerm is one clause of a parsed boolean query.
type BooleanTerm struct {
	Kind BooleanTermKind
	Text string
}

// ParseBooleanQuery splits a raw boolean query into +must / -mustnot /
// "phrase" / bare-should clauses. Parsing is a simple character-state
// machine: '+' and '-' prefix the next whitespace-delimited token; '"'
// opens and closes a phrase that may itself contain whitespace.
func ParseBooleanQuery(query string) []BooleanTerm {
	var terms []BooleanTerm
	runes := []rune(query)
	i := 0
	for i < len(runes) {
		switch {
		case runes[i] == ' ' || runes[i] == '\t':
			i++
		case runes[i] == '+':
			i++
			start := i
			for i < len(runes) && runes[i] != ' ' && runes[i] != '\t' {
				i++
			}
			if i > start {
				terms = append(terms, BooleanTerm{Kind: TermMust, Text: string(runes[start:i])})
			}
		case runes[i] == '-':
			i++
			start := i
			for i < len(runes) && runes[i] != ' ' && runes[i] != '\t' {
				i++
			}
			if i > start {
				terms = append(terms, BooleanTerm{Kind: TermMustNot, Text: string(runes[start:i])})
			}
		case runes[i] == '"':
			i++
			start := i
			for i < len(runes) && runes[i] != '"' {
				i++
			}
			if i > start {
				terms = append(terms, BooleanTerm{Kind: TermPhrase, Text: string(runes[start:i])})
			}
			if i < len(runes) {
				i++ // consume closing quote
			}
		default:
			start := i
			for i < len(runes) && runes[i] != ' ' && runes[i] != '\t' {
				i++
			}
			if i > start {
				terms = append(terms, BooleanTerm{Kind: TermShould, Text: string(runes[start:i])})
			}
		}
	}
	return terms
}

// QueryBoolean evaluates a raw +/-/"phrase" query: the intersection of all
// Must and Phrase clauses, narrowed (when Should clauses are present) to
// documents matching at least one Should clause; with no Must or Phrase
// clause, the union of the Should clauses. MustNot clauses' documents are
// then removed. Boolean mode assigns a flat score of 1.0 to
// every surviving document — ranking is the natural-query path's job.
func (idx *FtsIndex) QueryBoolean(query string) ([]Result, error) {
	terms := ParseBooleanQuery(query)

	var mustSets []map[uint64]struct{}
	shouldSet := make(map[uint64]struct{})
	mustNotSet := make(map[uint64]struct{})
	hasShould := false

	for _, term := range terms {
		switch term.Kind {
		case TermMust:
			docs, err := idx.docsContainingTerm(term.Text)
			if err != nil {
				return nil, err
			}
			mustSets = append(mustSets, docs)
		case TermMustNot:
			docs, err := idx.docsContainingTerm(term.Text)
			if err != nil {
				return nil, err
			}
			for d := range docs {
				mustNotSet[d] = struct{}{}
			}
		case TermPhrase:
			docs, err := idx.docsMatchingPhrase(term.Text)
			if err != nil {
				return nil, err
			}
			mustSets = append(mustSets, docs)
		case TermShould:
			hasShould = true
			docs, err := idx.docsContainingTerm(term.Text)
			if err != nil {
				return nil, err
			}
			for d := range docs {
				shouldSet[d] = struct{}{}
			}
		}
	}

	var resultSet map[uint64]struct{}
	switch {
	case len(mustSets) > 0:
		resultSet = intersectSets(mustSets)
		if hasShould {
			for d := range resultSet {
				if _, ok := shouldSet[d]; !ok {
					delete(resultSet, d)
				}
			}
		}
	case hasShould:
		resultSet = shouldSet
	default:
		resultSet = map[uint64]struct{}{}
	}

	for d := range mustNotSet {
		delete(resultSet, d)
	}

	results := make([]Result, 0, len(resultSet))
	for d := range resultSet {
		results = append(results, Result{DocID: d, Score: 1.0})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].DocID < results[j].DocID })
	return results, nil
}

func (idx *FtsIndex) docsContainingTerm(text string) (map[uint64]struct{}, error) {
	bigrams := Tokenize(text)
	out := make(map[uint64]struct{})
	for _, bg := range bigrams {
		pl, err := idx.GetPostings(bg.Text)
		if err != nil {
			return nil, err
		}
		for _, e := range pl.Entries {
			out[e.DocID] = struct{}{}
		}
	}
	return out, nil
}

// docsMatchingPhrase returns the documents where phrase's bigrams occur at
// consecutive positions (i.e. the phrase itself occurs verbatim), not just
// where every bigram happens to appear somewhere in the document.
func (idx *FtsIndex) docsMatchingPhrase(phrase string) (map[uint64]struct{}, error) {
	bigrams := Tokenize(phrase)
	if len(bigrams) == 0 {
		return map[uint64]struct{}{}, nil
	}

	postingsByBigram := make([]*PostingList, len(bigrams))
	for i, bg := range bigrams {
		pl, err := idx.GetPostings(bg.Text)
		if err != nil {
			return nil, err
		}
		postingsByBigram[i] = pl
	}

	// Candidate docs: those containing every bigram in the phrase.
	candidateSets := make([]map[uint64]struct{}, len(postingsByBigram))
	for i, pl := range postingsByBigram {
		set := make(map[uint64]struct{}, pl.DocFreq())
		for _, e := range pl.Entries {
			set[e.DocID] = struct{}{}
		}
		candidateSets[i] = set
	}
	candidates := intersectSets(candidateSets)

	out := make(map[uint64]struct{})
	for docID := range candidates {
		if checkConsecutivePositions(postingsByBigram, docID) {
			out[docID] = struct{}{}
		}
	}
	return out, nil
}

// checkConsecutivePositions reports whether docID has a run of positions,
// one per bigram in order, each exactly one past the last — i.e. the
// phrase's bigrams actually occur back-to-back rather than scattered.
func checkConsecutivePositions(postingsByBigram []*PostingList, docID uint64) bool {
	firstPositions := positionsFor(postingsByBigram[0], docID)
	for _, start := range firstPositions {
		match := true
		for i := 1; i < len(postingsByBigram); i++ {
			want := start + uint32(i)
			if !containsPosition(postingsByBigram[i], docID, want) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func positionsFor(pl *PostingList, docID uint64) []uint32 {
	for _, e := range pl.Entries {
		if e.DocID == docID {
			return e.Positions
		}
	}
	return nil
}

func containsPosition(pl *PostingList, docID uint64, pos uint32) bool {
	positions := positionsFor(pl, docID)
	i := sort.Search(len(positions), func(i int) bool { return positions[i] >= pos })
	return i < len(positions) && positions[i] == pos
}

func intersectSets(sets []map[uint64]struct{}) map[uint64]struct{} {
	if len(sets) == 0 {
		return map[uint64]struct{}{}
	}
	smallest := sets[0]
	for _, s := range sets[1:] {
		if len(s) < len(smallest) {
			smallest = s
		}
	}
	out := make(map[uint64]struct{}, len(smallest))
	for d := range smallest {
		inAll := true
		for _, s := range sets {
			if _, ok := s[d]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out[d] = struct{}{}
		}
	}
	return out
}
