// Package manager contains the core of sshm: the encrypted connection store,
// the derived group tree, and the ssh/sftp launcher.
package manager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AuthMethod selects how a connection authenticates. Exactly one variant is
// populated per record; Validate rejects both-set and neither-set.
type AuthMethod string

const (
	// AuthPassword authenticates with a stored password (fed to the SSH
	// client via sshpass, never on the command line).
	AuthPassword AuthMethod = "password"
	// AuthKeyFile authenticates with a private key file path.
	AuthKeyFile AuthMethod = "keyfile"
)

// Auth holds the credential variant for a record.
type Auth struct {
	Method   AuthMethod
	Password Secret
	KeyFile  string
}

// PasswordAuth builds a password-variant Auth.
func PasswordAuth(secret Secret) Auth {
	return Auth{Method: AuthPassword, Password: secret}
}

// KeyFileAuth builds a key-file-variant Auth.
func KeyFileAuth(path string) Auth {
	return Auth{Method: AuthKeyFile, KeyFile: path}
}

// Validate checks the exactly-one-variant invariant.
func (a Auth) Validate() error {
	switch a.Method {
	case AuthPassword:
		if a.Password.IsZero() {
			return fmt.Errorf("auth method is password but no password is set: %w", ErrAuthConfigInvalid)
		}
		if strings.TrimSpace(a.KeyFile) != "" {
			return fmt.Errorf("auth method is password but key_file is also set: %w", ErrAuthConfigInvalid)
		}
	case AuthKeyFile:
		if strings.TrimSpace(a.KeyFile) == "" {
			return fmt.Errorf("auth method is keyfile but no key_file is set: %w", ErrAuthConfigInvalid)
		}
		if !a.Password.IsZero() {
			return fmt.Errorf("auth method is keyfile but a password is also set: %w", ErrAuthConfigInvalid)
		}
	default:
		return fmt.Errorf("unknown auth method %q (expected: password|keyfile): %w", a.Method, ErrAuthConfigInvalid)
	}
	return nil
}

// ConnectionRecord is a single stored SSH/SFTP connection definition.
type ConnectionRecord struct {
	// Name is the display identifier, unique within its parent group.
	Name string

	// Host is the hostname or IP to connect to.
	Host string

	// Port is the SSH port; 0 means the default (22).
	Port int

	// Username is optional. When empty the destination is the bare host and
	// the SSH client resolves the user itself.
	Username string

	// Auth holds the credential variant (password or key file).
	Auth Auth

	// GroupPath locates the record in the hierarchy; empty means root.
	// Segments never contain "/".
	GroupPath []string

	// Tags are optional labels, searchable and shown in listings.
	Tags []string
}

// EffectivePort returns Port with the default applied.
func (r ConnectionRecord) EffectivePort() int {
	if r.Port > 0 {
		return r.Port
	}
	return 22
}

// Destination returns the ssh/sftp destination token: "user@host" when a
// username is set, else just "host".
func (r ConnectionRecord) Destination() string {
	host := strings.TrimSpace(r.Host)
	if u := strings.TrimSpace(r.Username); u != "" {
		return u + "@" + host
	}
	return host
}

// PathKey returns the record's full path as a string ("group/sub/name"),
// used for favorites/recents and for display.
func (r ConnectionRecord) PathKey() string {
	return JoinGroupPath(append(append([]string{}, r.GroupPath...), r.Name))
}

// Validate performs field-level sanity checks. Records failing Validate never
// reach the store.
func (r ConnectionRecord) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if err := validSegment(name); err != nil {
		return fmt.Errorf("name %q: %v", r.Name, err)
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("record %q: host is required", name)
	}
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("record %q: port %d out of range", name, r.Port)
	}
	for i, seg := range r.GroupPath {
		if err := validSegment(seg); err != nil {
			return fmt.Errorf("record %q: group_path[%d]: %v", name, i, err)
		}
	}
	if err := r.Auth.Validate(); err != nil {
		return fmt.Errorf("record %q: %w", name, err)
	}
	return nil
}

// normalized returns a copy with surrounding whitespace trimmed from the
// identity fields and empty tags dropped. Stored records are always in
// normalized form so lookups compare cleanly.
func (r ConnectionRecord) normalized() ConnectionRecord {
	out := r
	out.Name = strings.TrimSpace(r.Name)
	out.Host = strings.TrimSpace(r.Host)
	out.Username = strings.TrimSpace(r.Username)
	out.Auth.KeyFile = strings.TrimSpace(r.Auth.KeyFile)
	out.GroupPath = normalizeGroupPath(r.GroupPath)
	if len(r.Tags) > 0 {
		tags := make([]string, 0, len(r.Tags))
		for _, t := range r.Tags {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		out.Tags = tags
	}
	return out
}

// validSegment rejects names unusable as path segments.
func validSegment(seg string) error {
	s := strings.TrimSpace(seg)
	if s == "" {
		return fmt.Errorf("empty segment")
	}
	if s != seg {
		return fmt.Errorf("leading or trailing whitespace")
	}
	if strings.ContainsRune(s, '/') {
		return fmt.Errorf("segment contains %q", "/")
	}
	if s == "." || s == ".." {
		return fmt.Errorf("segment %q is reserved", s)
	}
	return nil
}

func normalizeGroupPath(path []string) []string {
	if len(path) == 0 {
		return nil
	}
	out := make([]string, 0, len(path))
	for _, seg := range path {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// sameGroupPath reports whether two group paths are identical.
func sameGroupPath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// JoinGroupPath renders path segments as a slash-joined string; empty input
// yields "".
func JoinGroupPath(path []string) string {
	return strings.Join(path, "/")
}

// SplitGroupPath parses a slash-joined path into segments. Empty and
// whitespace-only input yields nil (the root). Blank segments from doubled
// slashes are dropped.
func SplitGroupPath(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// expandPath expands leading "~" and environment variables in a path.
// If the input is empty, returns "".
func expandPath(p string) string {
	if p == "" {
		return ""
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		home, _ := os.UserHomeDir()
		if home != "" {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
			// "~user" not handled to avoid userdb lookups.
		}
	}
	return p
}
