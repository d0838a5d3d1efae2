package manager

import (
	"strings"
	"testing"
)

func searchFixture() []ConnectionRecord {
	return []ConnectionRecord{
		{Name: "web1", Host: "web1.prod.example.com", Auth: KeyFileAuth("~/.ssh/id"), GroupPath: []string{"prod", "web"}},
		{Name: "db1", Host: "10.0.0.5", Username: "postgres", Auth: KeyFileAuth("~/.ssh/id"), GroupPath: []string{"prod"}, Tags: []string{"database", "critical"}},
		{Name: "bastion", Host: "gw.example.com", Auth: KeyFileAuth("~/.ssh/id")},
	}
}

func TestSearch_MatchesNameHostAndTags(t *testing.T) {
	records := searchFixture()

	if got := Search(records, "web1"); !containsResult(got, "web1") {
		t.Fatalf("expected name match for web1, got %v", resultNames(got))
	}
	if got := Search(records, "10.0.0"); !containsResult(got, "db1") {
		t.Fatalf("expected host match for db1, got %v", resultNames(got))
	}
	if got := Search(records, "critical"); !containsResult(got, "db1") {
		t.Fatalf("expected tag match for db1, got %v", resultNames(got))
	}
	// Group segments are part of the searchable text via the path key.
	if got := Search(records, "prod/web"); !containsResult(got, "web1") {
		t.Fatalf("expected path match for web1, got %v", resultNames(got))
	}
}

func TestSearch_EmptyQueryReturnsNothing(t *testing.T) {
	records := searchFixture()
	if got := Search(records, ""); got != nil {
		t.Fatalf("expected nil for empty query, got %v", resultNames(got))
	}
	if got := Search(records, "   "); got != nil {
		t.Fatalf("expected nil for blank query, got %v", resultNames(got))
	}
}

func TestSearch_NoHitsForForeignQuery(t *testing.T) {
	if got := Search(searchFixture(), "zzzzqqqq"); len(got) != 0 {
		t.Fatalf("expected no results, got %v", resultNames(got))
	}
}

func TestSearch_ResultsCarryMatchPositions(t *testing.T) {
	got := Search(searchFixture(), "bastion")
	if !containsResult(got, "bastion") {
		t.Fatalf("expected bastion hit, got %v", resultNames(got))
	}
	for _, res := range got {
		if res.Record.Name != "bastion" {
			continue
		}
		if len(res.MatchedIndexes) == 0 {
			t.Fatalf("expected matched indexes for highlighting")
		}
		text := SearchText(res.Record)
		for _, idx := range res.MatchedIndexes {
			if idx < 0 || idx >= len(text) {
				t.Fatalf("matched index %d out of range for %q", idx, text)
			}
		}
	}
}

func TestSearchText_JoinsPathDestinationAndTags(t *testing.T) {
	rec := ConnectionRecord{
		Name:      "db1",
		Host:      "10.0.0.5",
		Username:  "postgres",
		GroupPath: []string{"prod"},
		Tags:      []string{"database"},
	}
	text := SearchText(rec)
	for _, part := range []string{"prod/db1", "postgres@10.0.0.5", "database"} {
		if !strings.Contains(text, part) {
			t.Fatalf("expected %q in search text %q", part, text)
		}
	}
}

func containsResult(results []SearchResult, name string) bool {
	for _, res := range results {
		if res.Record.Name == name {
			return true
		}
	}
	return false
}

func resultNames(results []SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, res := range results {
		out = append(out, res.Record.Name)
	}
	return out
}
