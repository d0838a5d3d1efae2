package manager

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyInstallMode controls how the remote ~/.ssh/authorized_keys is updated.
type KeyInstallMode string

const (
	// KeyInstallEnsure appends the key if missing (idempotent, the default).
	KeyInstallEnsure KeyInstallMode = "ensure"
	// KeyInstallReplace replaces authorized_keys with exactly this key.
	// Destructive; only on explicit request.
	KeyInstallReplace KeyInstallMode = "replace"
)

// LocalPublicKey is a local SSH public key file and its single-line contents.
type LocalPublicKey struct {
	Path     string
	Contents string
}

// DetectLocalPublicKeys finds public key files under ~/.ssh in a stable
// priority order: id_ed25519.pub, id_ecdsa.pub, id_rsa.pub, id_dsa.pub,
// then any other *.pub sorted by name. Files that do not look like a public
// key are skipped.
func DetectLocalPublicKeys() ([]LocalPublicKey, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	sshDir := filepath.Join(home, ".ssh")

	preferred := []string{
		filepath.Join(sshDir, "id_ed25519.pub"),
		filepath.Join(sshDir, "id_ecdsa.pub"),
		filepath.Join(sshDir, "id_rsa.pub"),
		filepath.Join(sshDir, "id_dsa.pub"),
	}

	seen := map[string]struct{}{}
	out := make([]LocalPublicKey, 0, 4)

	appendKey := func(p string) error {
		if _, ok := seen[p]; ok {
			return nil
		}
		k, ok, err := readPubKeyFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if ok {
			seen[p] = struct{}{}
			out = append(out, k)
		}
		return nil
	}

	for _, p := range preferred {
		if err := appendKey(p); err != nil {
			return nil, err
		}
	}
	matches, _ := filepath.Glob(filepath.Join(sshDir, "*.pub"))
	sort.Strings(matches)
	for _, p := range matches {
		if err := appendKey(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadLocalPublicKey reads a specific public key file.
func ReadLocalPublicKey(path string) (LocalPublicKey, error) {
	path = expandPath(path)
	k, ok, err := readPubKeyFile(path)
	if err != nil {
		return LocalPublicKey{}, err
	}
	if !ok {
		return LocalPublicKey{}, fmt.Errorf("no usable public key found in %s", path)
	}
	return k, nil
}

func readPubKeyFile(path string) (LocalPublicKey, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LocalPublicKey{}, false, err
	}
	// Take the first non-empty line; .pub files are single-line.
	line := ""
	for _, ln := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			line = ln
			break
		}
	}
	if line == "" || !looksLikeSSHPublicKey(line) {
		return LocalPublicKey{}, false, nil
	}
	return LocalPublicKey{Path: path, Contents: line}, true, nil
}

func looksLikeSSHPublicKey(line string) bool {
	prefixes := []string{
		"ssh-ed25519 ",
		"ssh-rsa ",
		"ecdsa-sha2-",
		"sk-ssh-ed25519 ",
		"sk-ecdsa-sha2-",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	// Permissive fallback: type + base64 at minimum.
	return len(strings.Fields(line)) >= 2
}

// BuildKeyInstallScript builds the remote sh script that updates
// ~/.ssh/authorized_keys on the target host. Run it through the regular
// connect path as a remote command (ssh DEST sh -lc SCRIPT) so password
// records get the same secret handling as an interactive session.
//
// The key is carried base64-encoded to sidestep quoting, and the script
// tries both GNU (base64 -d) and BSD (base64 -D) decoders.
func BuildKeyInstallScript(pubKey LocalPublicKey, mode KeyInstallMode) (string, error) {
	key := strings.TrimSpace(pubKey.Contents)
	if key == "" {
		return "", errors.New("empty public key contents")
	}

	m := strings.ToLower(strings.TrimSpace(string(mode)))
	if m == "" {
		m = string(KeyInstallEnsure)
	}
	if m != string(KeyInstallEnsure) && m != string(KeyInstallReplace) {
		return "", fmt.Errorf("unknown key install mode %q", mode)
	}

	keyB64 := base64.StdEncoding.EncodeToString([]byte(key))

	remote := fmt.Sprintf(`
set -e
umask 077

SSH_DIR="$HOME/.ssh"
AUTH="$SSH_DIR/authorized_keys"

decode_base64() {
  printf '%%s' "$1" | base64 -d 2>/dev/null && return 0
  printf '%%s' "$1" | base64 -D 2>/dev/null && return 0
  return 1
}

KEY_B64='%s'
KEY="$(decode_base64 "$KEY_B64" || true)"
if [ -z "$KEY" ]; then
  echo "sshm: failed to decode public key" >&2
  exit 1
fi

mkdir -p "$SSH_DIR"
chmod 700 "$SSH_DIR"
touch "$AUTH"
chmod 600 "$AUTH"

case "%s" in
  ensure)
    grep -qxF "$KEY" "$AUTH" 2>/dev/null || printf '%%s\n' "$KEY" >> "$AUTH"
    ;;
  replace)
    TS="$(date +%%s 2>/dev/null || echo 0)"
    cp "$AUTH" "$AUTH.bak.$TS" 2>/dev/null || true
    printf '%%s\n' "$KEY" > "$AUTH"
    ;;
esac

chmod 600 "$AUTH" 2>/dev/null || true
echo "sshm: authorized_keys updated (%s)"
`, keyB64, m, m)

	return remote, nil
}
