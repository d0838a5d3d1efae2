package manager

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"sshm/pkg/logging"
)

// SSHConfigHost is a single literal Host alias parsed from an OpenSSH client
// configuration file (e.g. ~/.ssh/config). Wildcard host patterns are
// skipped for conversion purposes.
type SSHConfigHost struct {
	// Alias is the Host alias used on the ssh command line.
	Alias string

	// Values parsed from the Host block (last-wins semantics; IdentityFile
	// accumulates).
	HostName      string
	User          string
	Port          int
	IdentityFiles []string

	// Source file path and starting line of the Host block (best-effort).
	Source    string
	StartLine int
}

// DefaultSSHConfigPath returns the primary OpenSSH client config path,
// ~/.ssh/config.
func DefaultSSHConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ssh", "config"), nil
}

// ParseSSHConfig parses one or more SSH config files into literal Host alias
// entries, processing Include directives (globs supported) recursively.
// Later files and later Host blocks win for the same alias. It does not
// evaluate Match conditions.
func ParseSSHConfig(paths ...string) ([]SSHConfigHost, error) {
	if len(paths) == 0 {
		return nil, errors.New("no ssh config paths provided")
	}

	visited := map[string]struct{}{}
	all := make([]SSHConfigHost, 0, 64)
	indexByAlias := map[string]int{}

	for _, p := range paths {
		p = expandPath(p)
		entries, err := parseSSHConfigFile(p, visited)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if prev, ok := indexByAlias[e.Alias]; ok {
				all[prev] = e
			} else {
				indexByAlias[e.Alias] = len(all)
				all = append(all, e)
			}
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Alias < all[j].Alias })
	return all, nil
}

// SSHImportReport summarizes an import-ssh-config run.
type SSHImportReport struct {
	Added   int
	Updated int

	// SkippedNoAuth lists aliases that carried no IdentityFile. A record
	// requires a concrete auth method and ssh config never holds passwords,
	// so these cannot be converted.
	SkippedNoAuth []string
}

// ImportSSHConfig parses the given config files (~/.ssh/config when none
// are given), converts literal Host entries into key-file records under
// groupPath, and merges them into the store in one save. Records imported
// this way are tagged "sshconfig".
func ImportSSHConfig(st *Store, groupPath []string, paths ...string) (SSHImportReport, error) {
	var report SSHImportReport

	if len(paths) == 0 {
		p, err := DefaultSSHConfigPath()
		if err != nil {
			return report, err
		}
		paths = []string{p}
	}
	entries, err := ParseSSHConfig(paths...)
	if err != nil {
		return report, err
	}

	groupPath = normalizeGroupPath(groupPath)
	merged := st.Records()
	index := make(map[string]int, len(merged))
	for i, rec := range merged {
		index[rec.PathKey()] = i
	}

	for _, e := range entries {
		rec, ok := e.ToRecord(groupPath)
		if !ok {
			report.SkippedNoAuth = append(report.SkippedNoAuth, e.Alias)
			continue
		}
		if err := rec.Validate(); err != nil {
			return SSHImportReport{}, fmt.Errorf("ssh config host %q: %w", e.Alias, err)
		}
		rec = rec.normalized()
		if j, hit := index[rec.PathKey()]; hit {
			merged[j] = rec
			report.Updated++
		} else {
			index[rec.PathKey()] = len(merged)
			merged = append(merged, rec)
			report.Added++
		}
	}

	if report.Added == 0 && report.Updated == 0 {
		return report, nil
	}
	if err := st.ReplaceAll(merged); err != nil {
		return SSHImportReport{}, err
	}
	logging.ForComponent(logging.CompImport).Debug("ssh config import",
		"files", len(paths), "added", report.Added, "updated", report.Updated,
		"skipped", len(report.SkippedNoAuth))
	return report, nil
}

// ToRecord converts the entry to a key-file record under groupPath. It
// reports false when the entry has no identity file: there is nothing to
// put in the auth field (ssh config never carries passwords).
func (e SSHConfigHost) ToRecord(groupPath []string) (ConnectionRecord, bool) {
	if len(e.IdentityFiles) == 0 {
		return ConnectionRecord{}, false
	}
	host := strings.TrimSpace(e.HostName)
	if host == "" {
		host = e.Alias
	}
	return ConnectionRecord{
		Name:      e.Alias,
		Host:      host,
		Port:      e.Port,
		Username:  e.User,
		Auth:      KeyFileAuth(e.IdentityFiles[0]),
		GroupPath: groupPath,
		Tags:      []string{"sshconfig"},
	}, true
}

// --------------------
// Parsing internals
// --------------------

type sshHostBlock struct {
	patterns  []string
	settings  map[string][]string
	source    string
	startLine int
}

func newSSHHostBlock(source string, startLine int) *sshHostBlock {
	return &sshHostBlock{
		settings:  map[string][]string{},
		source:    source,
		startLine: startLine,
	}
}

func (hb *sshHostBlock) set(key, value string) {
	k := strings.ToLower(strings.TrimSpace(key))
	v := strings.TrimSpace(value)
	if k == "" {
		return
	}
	// IdentityFile accumulates; everything else is last-wins.
	switch k {
	case "identityfile":
		hb.settings[k] = append(hb.settings[k], v)
	default:
		hb.settings[k] = []string{v}
	}
}

func (hb *sshHostBlock) toEntries() []SSHConfigHost {
	if len(hb.patterns) == 0 {
		return nil
	}

	getLast := func(k string) string {
		if vals, ok := hb.settings[k]; ok && len(vals) > 0 {
			return vals[len(vals)-1]
		}
		return ""
	}

	var idFiles []string
	if v, ok := hb.settings["identityfile"]; ok {
		for _, f := range v {
			if f = strings.TrimSpace(f); f != "" {
				idFiles = append(idFiles, f)
			}
		}
	}

	port := 0
	if ps := getLast("port"); ps != "" {
		if p, err := strconv.Atoi(ps); err == nil && p > 0 {
			port = p
		}
	}

	entries := make([]SSHConfigHost, 0, len(hb.patterns))
	for _, pat := range hb.patterns {
		pat = strings.TrimSpace(pat)
		if pat == "" || !isLiteralHostPattern(pat) {
			continue
		}
		entries = append(entries, SSHConfigHost{
			Alias:         pat,
			HostName:      getLast("hostname"),
			User:          getLast("user"),
			Port:          port,
			IdentityFiles: append([]string(nil), idFiles...),
			Source:        hb.source,
			StartLine:     hb.startLine,
		})
	}
	return entries
}

func parseSSHConfigFile(path string, visited map[string]struct{}) ([]SSHConfigHost, error) {
	var out []SSHConfigHost

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if _, ok := visited[abs]; ok {
		return out, nil
	}
	visited[abs] = struct{}{}

	f, err := os.Open(abs)
	if err != nil {
		// Include globs commonly reference absent files; skip them.
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("open ssh config %s: %w", abs, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var current *sshHostBlock
	lineNo := 0

	flush := func() {
		if current != nil {
			out = append(out, current.toEntries()...)
			current = nil
		}
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(stripSSHInlineComment(sc.Text()))
		if line == "" {
			continue
		}

		key, val, hasKey := splitSSHKeyVal(line)
		if !hasKey {
			continue
		}

		switch strings.ToLower(key) {
		case "host":
			flush()
			current = newSSHHostBlock(abs, lineNo)
			current.patterns = append(current.patterns, strings.Fields(val)...)
		case "include":
			// Process includes in place, flushing the open block so entry
			// order follows file order.
			flush()
			for _, inc := range expandIncludePatterns(abs, val) {
				children, err := parseSSHConfigFile(inc, visited)
				if err != nil {
					return nil, err
				}
				out = append(out, children...)
			}
		case "match":
			// Match conditions are not evaluated; settings that follow land
			// outside any Host block and are dropped.
			flush()
		default:
			if current == nil {
				continue
			}
			current.set(key, val)
		}
	}
	flush()

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan ssh config %s: %w", abs, err)
	}
	return out, nil
}

// stripSSHInlineComment removes a trailing # comment unless it sits inside
// single or double quotes. Best-effort, sufficient for common configs.
func stripSSHInlineComment(s string) string {
	var out strings.Builder
	inSingle := false
	inDouble := false
	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '#':
			if !inSingle && !inDouble {
				return strings.TrimRight(out.String(), " \t")
			}
		}
		out.WriteRune(r)
	}
	return out.String()
}

// splitSSHKeyVal accepts "Key Value" and "Key=Value" forms.
func splitSSHKeyVal(line string) (key, val string, ok bool) {
	if line == "" {
		return "", "", false
	}
	if i := strings.IndexAny(line, " \t="); i >= 0 {
		key = strings.TrimSpace(line[:i])
		val = strings.TrimSpace(line[i+1:])
		if key == "" {
			return "", "", false
		}
		return key, val, true
	}
	return "", "", false
}

func expandIncludePatterns(baseFile, pattern string) []string {
	pattern = expandPath(strings.TrimSpace(pattern))
	if pattern == "" {
		return nil
	}
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(filepath.Dir(baseFile), pattern)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && !fi.IsDir() {
			out = append(out, m)
		}
	}
	return out
}

// isLiteralHostPattern reports whether p is free of OpenSSH pattern
// metacharacters ('*', '?', '[]') and negation ('!').
func isLiteralHostPattern(p string) bool {
	if p == "" {
		return false
	}
	if strings.HasPrefix(p, "!") {
		return false
	}
	if strings.ContainsAny(p, "*?[]") {
		return false
	}
	if strings.IndexFunc(p, func(r rune) bool { return r == ' ' || r == '\t' }) >= 0 {
		return false
	}
	return true
}
