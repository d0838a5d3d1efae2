package manager

import (
	"fmt"
	"sort"
	"strings"
)

// MatchTarget resolves a command-line target token to a record.
//
// Matching rules, in order:
//   - a token containing '/' is an exact path: leading segments are the
//     group path, the final segment the record name
//   - otherwise the token is a bare record name matched across all groups;
//     it resolves only when exactly one record carries that name
//
// It intentionally does not attempt fuzzy, glob, or substring matching;
// that is what Search is for. An ambiguous bare name is an error that lists
// the candidate paths so the caller can re-run with one of them.
func MatchTarget(records []ConnectionRecord, token string) (ConnectionRecord, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ConnectionRecord{}, fmt.Errorf("match target: empty target: %w", ErrNotFound)
	}

	if strings.Contains(token, "/") {
		segs := SplitGroupPath(token)
		if len(segs) == 0 {
			return ConnectionRecord{}, fmt.Errorf("match target %q: %w", token, ErrNotFound)
		}
		name := segs[len(segs)-1]
		group := segs[:len(segs)-1]
		for _, rec := range records {
			if rec.Name == name && sameGroupPath(rec.GroupPath, group) {
				return rec, nil
			}
		}
		return ConnectionRecord{}, fmt.Errorf("match target %q: %w", token, ErrNotFound)
	}

	var hits []ConnectionRecord
	for _, rec := range records {
		if rec.Name == token {
			hits = append(hits, rec)
		}
	}
	switch len(hits) {
	case 1:
		return hits[0], nil
	case 0:
		return ConnectionRecord{}, fmt.Errorf("match target %q: %w", token, ErrNotFound)
	}

	paths := make([]string, 0, len(hits))
	for _, rec := range hits {
		paths = append(paths, rec.PathKey())
	}
	sort.Strings(paths)
	return ConnectionRecord{}, fmt.Errorf("target %q is ambiguous, use a full path: %s",
		token, strings.Join(paths, ", "))
}
