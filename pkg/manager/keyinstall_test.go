package manager

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testPubKeyLine = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIMockmockmockmockmockmockmockmockmockmock test@host"

func TestReadLocalPublicKey_AcceptsSingleLineKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_ed25519.pub")
	if err := os.WriteFile(path, []byte(testPubKeyLine+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	key, err := ReadLocalPublicKey(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if key.Contents != testPubKeyLine {
		t.Fatalf("expected trimmed key line, got %q", key.Contents)
	}
	if key.Path != path {
		t.Fatalf("expected path recorded, got %q", key.Path)
	}
}

func TestReadLocalPublicKey_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pub")
	if err := os.WriteFile(path, []byte("just-one-token\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := ReadLocalPublicKey(path); err == nil || !strings.Contains(err.Error(), "no usable public key") {
		t.Fatalf("expected rejection, got: %v", err)
	}
}

func TestDetectLocalPublicKeys_PreferredOrderThenRest(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	write := func(name, typ string) {
		line := typ + " AAAAB3NzaC1mock " + name
		if err := os.WriteFile(filepath.Join(sshDir, name), []byte(line+"\n"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("aaa_custom.pub", "ssh-rsa")
	write("id_rsa.pub", "ssh-rsa")
	write("id_ed25519.pub", "ssh-ed25519")
	// A .pub file with junk content is skipped, not an error.
	if err := os.WriteFile(filepath.Join(sshDir, "broken.pub"), []byte("junk\n"), 0o600); err != nil {
		t.Fatalf("write broken: %v", err)
	}

	keys, err := DetectLocalPublicKeys()
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	var names []string
	for _, k := range keys {
		names = append(names, filepath.Base(k.Path))
	}
	want := []string{"id_ed25519.pub", "id_rsa.pub", "aaa_custom.pub"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, names)
	}
}

func TestBuildKeyInstallScript_EnsureMode(t *testing.T) {
	key := LocalPublicKey{Path: "/keys/id.pub", Contents: testPubKeyLine}
	script, err := BuildKeyInstallScript(key, KeyInstallEnsure)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// The key rides base64-encoded; the raw line never appears.
	if strings.Contains(script, testPubKeyLine) {
		t.Fatalf("expected key to be encoded, found raw line")
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(testPubKeyLine))
	if !strings.Contains(script, encoded) {
		t.Fatalf("expected encoded key in script")
	}
	for _, needle := range []string{"umask 077", "grep -qxF", "authorized_keys", `case "ensure"`} {
		if !strings.Contains(script, needle) {
			t.Fatalf("expected %q in script:\n%s", needle, script)
		}
	}
}

func TestBuildKeyInstallScript_ReplaceModeAndDefaults(t *testing.T) {
	key := LocalPublicKey{Contents: testPubKeyLine}

	script, err := BuildKeyInstallScript(key, KeyInstallReplace)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(script, `case "replace"`) || !strings.Contains(script, "$AUTH.bak.") {
		t.Fatalf("expected replace branch with backup, got:\n%s", script)
	}

	// Empty mode falls back to ensure.
	script, err = BuildKeyInstallScript(key, "")
	if err != nil {
		t.Fatalf("build default: %v", err)
	}
	if !strings.Contains(script, `case "ensure"`) {
		t.Fatalf("expected default ensure mode")
	}
}

func TestBuildKeyInstallScript_RejectsBadInput(t *testing.T) {
	if _, err := BuildKeyInstallScript(LocalPublicKey{}, KeyInstallEnsure); err == nil {
		t.Fatalf("expected error for empty key")
	}
	key := LocalPublicKey{Contents: testPubKeyLine}
	if _, err := BuildKeyInstallScript(key, "sideways"); err == nil || !strings.Contains(err.Error(), "unknown key install mode") {
		t.Fatalf("expected mode rejection, got: %v", err)
	}
}
