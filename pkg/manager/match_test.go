package manager

import (
	"errors"
	"strings"
	"testing"
)

func matchFixture() []ConnectionRecord {
	return []ConnectionRecord{
		{Name: "web1", Host: "h", Auth: KeyFileAuth("~/.ssh/id"), GroupPath: []string{"prod", "web"}},
		{Name: "web1", Host: "h", Auth: KeyFileAuth("~/.ssh/id"), GroupPath: []string{"staging"}},
		{Name: "db1", Host: "h", Auth: KeyFileAuth("~/.ssh/id"), GroupPath: []string{"prod"}},
		{Name: "bastion", Host: "h", Auth: KeyFileAuth("~/.ssh/id")},
	}
}

func TestMatchTarget_BareNameWhenUnique(t *testing.T) {
	rec, err := MatchTarget(matchFixture(), "db1")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if rec.PathKey() != "prod/db1" {
		t.Fatalf("expected prod/db1, got %q", rec.PathKey())
	}

	rec, err = MatchTarget(matchFixture(), "bastion")
	if err != nil {
		t.Fatalf("match root record: %v", err)
	}
	if rec.PathKey() != "bastion" {
		t.Fatalf("expected bastion, got %q", rec.PathKey())
	}
}

func TestMatchTarget_AmbiguousNameListsCandidates(t *testing.T) {
	_, err := MatchTarget(matchFixture(), "web1")
	if err == nil {
		t.Fatalf("expected ambiguity error")
	}
	if !strings.Contains(err.Error(), "ambiguous") {
		t.Fatalf("expected ambiguity hint, got: %v", err)
	}
	// Both full paths are spelled out so the caller can retry precisely.
	if !strings.Contains(err.Error(), "prod/web/web1") || !strings.Contains(err.Error(), "staging/web1") {
		t.Fatalf("expected both candidate paths, got: %v", err)
	}
}

func TestMatchTarget_FullPathDisambiguates(t *testing.T) {
	rec, err := MatchTarget(matchFixture(), "staging/web1")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if rec.PathKey() != "staging/web1" {
		t.Fatalf("expected staging/web1, got %q", rec.PathKey())
	}

	rec, err = MatchTarget(matchFixture(), "prod/web/web1")
	if err != nil {
		t.Fatalf("match deep path: %v", err)
	}
	if rec.PathKey() != "prod/web/web1" {
		t.Fatalf("expected prod/web/web1, got %q", rec.PathKey())
	}
}

func TestMatchTarget_MissingTargetFails(t *testing.T) {
	if _, err := MatchTarget(matchFixture(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for bare name, got: %v", err)
	}
	if _, err := MatchTarget(matchFixture(), "prod/nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for path, got: %v", err)
	}
	if _, err := MatchTarget(matchFixture(), "  "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank token, got: %v", err)
	}
}
