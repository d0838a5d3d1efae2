package manager

import "errors"

// Sentinel errors returned by the store, tree and launcher. Callers match
// with errors.Is; wrapped messages carry the record/path context.
var (
	// ErrCorrupt indicates the encrypted blob decrypted but its payload could
	// not be decoded, or the blob bytes are structurally invalid. The on-disk
	// file is never modified when this is returned; restore from a backup or
	// an export.
	ErrCorrupt = errors.New("store corrupted")

	// ErrKeyMissing indicates an encrypted blob exists but the key file does
	// not. Fatal for the session; the store cannot be opened without the key.
	ErrKeyMissing = errors.New("encryption key missing")

	// ErrDecryptFailed indicates the key file is unusable or does not match
	// the blob (wrong key, tampered ciphertext, malformed key material).
	ErrDecryptFailed = errors.New("decryption failed")

	// ErrDuplicateName is returned by Add (and by Update when the new identity
	// collides) if a record with the same name already exists in the group.
	ErrDuplicateName = errors.New("duplicate connection name in group")

	// ErrNotFound is returned when a record or group path does not exist.
	ErrNotFound = errors.New("not found")

	// ErrWriteFailed indicates the blob could not be rewritten. The in-memory
	// state is ahead of disk; a later Save retries the write.
	ErrWriteFailed = errors.New("store write failed")

	// ErrAuthConfigInvalid indicates a record's auth settings cannot be used
	// to connect (both or neither variant set, or the key file is absent at
	// invocation time).
	ErrAuthConfigInvalid = errors.New("invalid auth configuration")

	// ErrProcessSpawnFailed indicates the ssh/sftp (or sshpass) process could
	// not be started.
	ErrProcessSpawnFailed = errors.New("process spawn failed")
)
