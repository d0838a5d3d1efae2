package manager

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// SearchResult pairs a matched record with its fuzzy score. MatchedIndexes
// are rune positions into SearchText for highlighting.
type SearchResult struct {
	Record         ConnectionRecord
	Score          int
	MatchedIndexes []int
}

// SearchText is the haystack a record is matched against: full path,
// destination and tags, so a query can hit any of them.
func SearchText(r ConnectionRecord) string {
	parts := []string{r.PathKey(), r.Destination()}
	if len(r.Tags) > 0 {
		parts = append(parts, strings.Join(r.Tags, " "))
	}
	return strings.Join(parts, " ")
}

// recordSource implements fuzzy.Source over a record slice.
type recordSource []ConnectionRecord

func (s recordSource) String(i int) string { return SearchText(s[i]) }
func (s recordSource) Len() int            { return len(s) }

// Search fuzzy-matches query against the records and returns hits best
// score first. An empty query matches nothing.
func Search(records []ConnectionRecord, query string) []SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	matches := fuzzy.FindFrom(query, recordSource(records))
	out := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, SearchResult{
			Record:         records[m.Index],
			Score:          m.Score,
			MatchedIndexes: m.MatchedIndexes,
		})
	}
	return out
}
