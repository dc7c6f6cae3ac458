package fts

import "testing"

func buildTokyoTowerCorpus(t *testing.T) *FtsIndex {
	t.Helper()
	docs := []Doc{
		{DocID: 1, Text: "東京タワーは東京の名所です"},
		{DocID: 2, Text: "京都の寺院が美しい"},
		{DocID: 3, Text: "東京スカイツリーも人気"},
	}
	p, root := buildIndex(t, docs)
	return Open(p, p.PageSize(), root, testTermKey)
}

func TestQueryNaturalRanksBestMatchFirst(t *testing.T) {
	idx := buildTokyoTowerCorpus(t)

	results, err := idx.QueryNatural("東京タワー")
	if err != nil {
		t.Fatalf("QueryNatural: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].DocID != 1 {
		t.Fatalf("top result = doc %d, want doc 1 (contains the full query phrase)", results[0].DocID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("results not sorted by descending score: %+v", results)
		}
	}
	if len(results) > 1 && results[0].Score <= results[1].Score {
		t.Errorf("doc 1 score %v should strictly exceed runner-up score %v", results[0].Score, results[1].Score)
	}
}

func TestQueryNaturalNoMatchReturnsEmpty(t *testing.T) {
	idx := buildTokyoTowerCorpus(t)
	results, err := idx.QueryNatural("横浜中華街")
	if err != nil {
		t.Fatalf("QueryNatural: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for an unrelated query, got %+v", results)
	}
}

func TestQueryBooleanMustNotExcludesDocuments(t *testing.T) {
	idx := buildTokyoTowerCorpus(t)

	results, err := idx.QueryBoolean("+東京 -名所")
	if err != nil {
		t.Fatalf("QueryBoolean: %v", err)
	}
	for _, r := range results {
		if r.DocID == 1 {
			t.Errorf("doc 1 contains the excluded term and should not appear: %+v", results)
		}
	}
	found3 := false
	for _, r := range results {
		if r.DocID == 3 {
			found3 = true
		}
	}
	if !found3 {
		t.Errorf("doc 3 (東京スカイツリー) should match +東京 -名所, got %+v", results)
	}
}

func TestQueryBooleanPhraseMatchesOnlyConsecutiveOccurrence(t *testing.T) {
	idx := buildTokyoTowerCorpus(t)

	results, err := idx.QueryBoolean(`"東京タワー"`)
	if err != nil {
		t.Fatalf("QueryBoolean: %v", err)
	}
	matched := map[uint64]bool{}
	for _, r := range results {
		matched[r.DocID] = true
	}
	if !matched[1] {
		t.Errorf("doc 1 contains the literal phrase 東京タワー and should match: %+v", results)
	}
	if matched[2] {
		t.Errorf("doc 2 never mentions 東京 or タワー and should not match: %+v", results)
	}
	if matched[3] {
		t.Errorf("doc 3 mentions 東京 but not as part of the phrase 東京タワー: %+v", results)
	}
}

func TestParseBooleanQuerySplitsClauses(t *testing.T) {
	terms := ParseBooleanQuery(`+must -not "a phrase" should`)
	if len(terms) != 4 {
		t.Fatalf("len(terms) = %d, want 4: %+v", len(terms), terms)
	}
	want := []BooleanTerm{
		{Kind: TermMust, Text: "must"},
		{Kind: TermMustNot, Text: "not"},
		{Kind: TermPhrase, Text: "a phrase"},
		{Kind: TermShould, Text: "should"},
	}
	for i, w := range want {
		if terms[i] != w {
			t.Errorf("terms[%d] = %+v, want %+v", i, terms[i], w)
		}
	}
}

func TestQueryBooleanEmptyQueryReturnsNoResults(t *testing.T) {
	idx := buildTokyoTowerCorpus(t)
	results, err := idx.QueryBoolean("")
	if err != nil {
		t.Fatalf("QueryBoolean: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty query should match nothing, got %+v", results)
	}
}
