package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// Secret is a thin wrapper around sensitive bytes (a connection password).
// It implements redaction helpers so accidental formatting, JSON marshaling,
// or structured logging never reveal the material. The raw value is only
// reachable through Reveal, which callers use deliberately at the point the
// secret leaves the process (child env, export file).
type Secret []byte

// SecretFromString wraps a string as a Secret.
func SecretFromString(in string) Secret { return Secret([]byte(in)) }

// String redacts the secret for fmt.Print* convenience.
func (s Secret) String() string { return "[redacted]" }

// GoString redacts `%#v` output.
func (s Secret) GoString() string { return "[redacted]" }

// Format implements fmt.Formatter so `%v`, `%s`, `%q` and friends are redacted.
func (s Secret) Format(f fmt.State, c rune) {
	_, _ = io.WriteString(f, "[redacted]")
}

// LogValue implements slog.LogValuer; a Secret logged by mistake renders redacted.
func (s Secret) LogValue() slog.Value { return slog.StringValue("[redacted]") }

// MarshalJSON redacts secrets in JSON marshaling. Persistence and export go
// through dedicated wire structs that call Reveal instead.
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal("[redacted]") }

// MarshalText redacts secrets for text encoding.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[redacted]"), nil }

// Reveal returns the secret as a string. Call sites are the audit surface:
// the child process environment, the export writer, and nothing else.
func (s Secret) Reveal() string { return string(s) }

// IsZero reports whether no secret material is present.
func (s Secret) IsZero() bool { return len(s) == 0 }

// Zero overwrites the underlying bytes.
func (s *Secret) Zero() {
	if s == nil || *s == nil {
		return
	}
	for i := range *s {
		(*s)[i] = 0
	}
}
