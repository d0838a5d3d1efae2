package manager

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// The blob in config.json is a single XChaCha20-Poly1305 envelope: a random
// 24-byte nonce followed by the ciphertext of the JSON payload. The key is
// raw 32-byte material in the .key file, created once at first run and never
// rotated implicitly.

const keyFileMode = os.FileMode(0o600)

// generateKey returns fresh random key material.
func generateKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// writeKeyFile creates the key file with owner-only permissions. It refuses
// to overwrite: an existing key is never replaced implicitly.
func writeKeyFile(path string, key []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFileMode)
	if err != nil {
		return fmt.Errorf("create key file %s: %w", path, err)
	}
	_, werr := f.Write(key)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("write key file %s: %w", path, werr)
	}
	if cerr != nil {
		return fmt.Errorf("close key file %s: %w", path, cerr)
	}
	return nil
}

// readKeyFile loads and sanity-checks key material.
func readKeyFile(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("key file %s: %d bytes, want %d: %w", path, len(key), chacha20poly1305.KeySize, ErrDecryptFailed)
	}
	return key, nil
}

// sealPayload encrypts plaintext into a nonce-prefixed envelope.
func sealPayload(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// openPayload decrypts a nonce-prefixed envelope. A structurally undersized
// blob is ErrCorrupt; an authentication failure is ErrDecryptFailed.
func openPayload(key, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(blob) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("blob too short (%d bytes): %w", len(blob), ErrCorrupt)
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", ErrDecryptFailed)
	}
	return plaintext, nil
}
