package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sshm/pkg/logging"
)

// Persistent state for sshm. All connection records live in a single
// encrypted blob next to its key file:
//
//	~/.ssh-manager/config.json   encrypted envelope (opaque bytes)
//	~/.ssh-manager/.key          raw symmetric key, 0600
//
// $SSHM_HOME overrides the directory. The store is loaded fully into memory
// at open; every mutation re-encrypts and rewrites the blob atomically
// (write-temp-then-rename), so the prior version survives a crash or a
// failed write. Favorites and recents are part of the encrypted payload:
// they name records, and record names are not public.

const (
	defaultStoreDirName = ".ssh-manager"
	blobFilename        = "config.json"
	keyFilename         = ".key"

	payloadVersion = 1
	recentsLimit   = 100

	// EnvHome overrides the store directory.
	EnvHome = "SSHM_HOME"
)

// DefaultStoreDir returns the directory holding the blob, key, settings and
// logs. Precedence:
//  1. $SSHM_HOME
//  2. ~/.ssh-manager
func DefaultStoreDir() (string, error) {
	if env := strings.TrimSpace(os.Getenv(EnvHome)); env != "" {
		return expandPath(env), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, defaultStoreDirName), nil
}

// Store owns the persisted records. A single instance is passed to the
// presentation layer; the mutex is hygiene for callers sharing it across
// goroutines, not a multi-process guarantee.
type Store struct {
	dir string
	key []byte

	mu        sync.Mutex
	records   []ConnectionRecord
	favorites []string
	recents   []string

	log *slog.Logger
}

// payloadFile is the JSON shape inside the encrypted envelope.
type payloadFile struct {
	Version   int             `json:"version"`
	Records   []recordPayload `json:"records"`
	Favorites []string        `json:"favorites,omitempty"`
	Recents   []string        `json:"recents,omitempty"`
}

// recordPayload is the wire form of a ConnectionRecord. The password field
// is populated deliberately via Secret.Reveal; this struct exists only
// between Marshal and sealPayload (and the reverse).
type recordPayload struct {
	Name       string   `json:"name"`
	Host       string   `json:"host"`
	Port       int      `json:"port,omitempty"`
	Username   string   `json:"username,omitempty"`
	AuthMethod string   `json:"auth_method"`
	Password   string   `json:"password,omitempty"`
	KeyFile    string   `json:"key_file,omitempty"`
	GroupPath  []string `json:"group_path,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

func toPayload(r ConnectionRecord) recordPayload {
	return recordPayload{
		Name:       r.Name,
		Host:       r.Host,
		Port:       r.Port,
		Username:   r.Username,
		AuthMethod: string(r.Auth.Method),
		Password:   r.Auth.Password.Reveal(),
		KeyFile:    r.Auth.KeyFile,
		GroupPath:  r.GroupPath,
		Tags:       r.Tags,
	}
}

func fromPayload(p recordPayload) ConnectionRecord {
	return ConnectionRecord{
		Name:     p.Name,
		Host:     p.Host,
		Port:     p.Port,
		Username: p.Username,
		Auth: Auth{
			Method:   AuthMethod(p.AuthMethod),
			Password: SecretFromString(p.Password),
			KeyFile:  p.KeyFile,
		},
		GroupPath: p.GroupPath,
		Tags:      p.Tags,
	}
}

// Open loads the store from dir (or the default directory when dir is
// empty). A missing blob is an empty store. A missing key file is generated
// on first run only; if a blob already exists without its key, Open fails
// with ErrKeyMissing rather than silently starting over.
func Open(dir string) (*Store, error) {
	var err error
	if strings.TrimSpace(dir) == "" {
		dir, err = DefaultStoreDir()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", dir, err)
	}

	st := &Store{
		dir: dir,
		log: logging.ForComponent(logging.CompStore),
	}

	blob, blobErr := os.ReadFile(st.BlobPath())
	if blobErr != nil && !errors.Is(blobErr, os.ErrNotExist) {
		return nil, fmt.Errorf("read blob %s: %w", st.BlobPath(), blobErr)
	}
	blobExists := blobErr == nil

	key, keyErr := readKeyFile(st.KeyPath())
	switch {
	case keyErr == nil:
		st.key = key
	case errors.Is(keyErr, os.ErrNotExist):
		if blobExists {
			return nil, fmt.Errorf("blob exists but key file %s is absent: %w", st.KeyPath(), ErrKeyMissing)
		}
		key, err = generateKey()
		if err != nil {
			return nil, err
		}
		if err := writeKeyFile(st.KeyPath(), key); err != nil {
			return nil, err
		}
		st.key = key
		st.log.Debug("generated key file", "path", st.KeyPath())
	default:
		return nil, keyErr
	}

	if !blobExists {
		st.log.Debug("no blob found, starting empty", "dir", dir)
		return st, nil
	}

	plaintext, err := openPayload(st.key, blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", st.BlobPath(), err)
	}
	var pl payloadFile
	if err := json.Unmarshal(plaintext, &pl); err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", st.BlobPath(), err, ErrCorrupt)
	}
	if pl.Version > payloadVersion {
		return nil, fmt.Errorf("blob schema version %d is newer than supported %d: %w", pl.Version, payloadVersion, ErrCorrupt)
	}

	st.records = make([]ConnectionRecord, 0, len(pl.Records))
	for _, rp := range pl.Records {
		st.records = append(st.records, fromPayload(rp))
	}
	st.favorites = pl.Favorites
	st.recents = pl.Recents
	st.log.Debug("store loaded", "dir", dir, "records", len(st.records))
	return st, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// BlobPath returns the encrypted blob path.
func (s *Store) BlobPath() string { return filepath.Join(s.dir, blobFilename) }

// KeyPath returns the key file path.
func (s *Store) KeyPath() string { return filepath.Join(s.dir, keyFilename) }

// Records returns the record sequence in insertion order.
func (s *Store) Records() []ConnectionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConnectionRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Find returns the record with the given name and group path.
func (s *Store) Find(name string, groupPath []string) (ConnectionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(name, groupPath); i >= 0 {
		return s.records[i], true
	}
	return ConnectionRecord{}, false
}

// Add appends a record and saves. A record with the same name in the same
// group fails with ErrDuplicateName and leaves the store untouched.
func (s *Store) Add(rec ConnectionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec = rec.normalized()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(rec.Name, rec.GroupPath) >= 0 {
		return fmt.Errorf("add %q in group %q: %w", rec.Name, JoinGroupPath(rec.GroupPath), ErrDuplicateName)
	}
	s.records = append(s.records, rec)
	s.log.Debug("record added", "path", rec.PathKey())
	return s.saveLocked()
}

// Update replaces the record identified by oldName/oldGroupPath. Renaming or
// moving onto an existing record fails with ErrDuplicateName; a missing
// original fails with ErrNotFound. Favorites and recents follow the rename.
func (s *Store) Update(oldName string, oldGroupPath []string, rec ConnectionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec = rec.normalized()

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(oldName, oldGroupPath)
	if i < 0 {
		return fmt.Errorf("update %q in group %q: %w", oldName, JoinGroupPath(oldGroupPath), ErrNotFound)
	}
	if j := s.indexOf(rec.Name, rec.GroupPath); j >= 0 && j != i {
		return fmt.Errorf("update %q: target %q already exists in group %q: %w",
			oldName, rec.Name, JoinGroupPath(rec.GroupPath), ErrDuplicateName)
	}

	oldKey := s.records[i].PathKey()
	s.records[i] = rec
	if newKey := rec.PathKey(); newKey != oldKey {
		renameKey(s.favorites, oldKey, newKey)
		renameKey(s.recents, oldKey, newKey)
	}
	s.log.Debug("record updated", "path", rec.PathKey())
	return s.saveLocked()
}

// Remove deletes the record. Removing an absent record fails with
// ErrNotFound (a second removal is an error, not a no-op).
func (s *Store) Remove(name string, groupPath []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(name, groupPath)
	if i < 0 {
		return fmt.Errorf("remove %q in group %q: %w", name, JoinGroupPath(groupPath), ErrNotFound)
	}
	key := s.records[i].PathKey()
	s.records = append(s.records[:i], s.records[i+1:]...)
	s.favorites = dropKey(s.favorites, key)
	s.recents = dropKey(s.recents, key)
	s.log.Debug("record removed", "path", key)
	return s.saveLocked()
}

// ReplaceAll swaps the full record set (import -replace). The new set is
// validated as a whole before anything changes.
func (s *Store) ReplaceAll(records []ConnectionRecord) error {
	normalized := make([]ConnectionRecord, 0, len(records))
	seen := map[string]struct{}{}
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("records[%d]: %w", i, err)
		}
		rec = rec.normalized()
		key := rec.PathKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("records[%d]: %q: %w", i, key, ErrDuplicateName)
		}
		seen[key] = struct{}{}
		normalized = append(normalized, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = normalized
	s.favorites = keepKnownKeys(s.favorites, seen)
	s.recents = keepKnownKeys(s.recents, seen)
	return s.saveLocked()
}

// Save re-encrypts and rewrites the blob. Exposed so callers can retry after
// ErrWriteFailed; normal mutations save implicitly.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// MarkRecent moves the record to the front of the recents list and saves.
func (s *Store) MarkRecent(rec ConnectionRecord) error {
	key := rec.PathKey()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.recents)+1)
	out = append(out, key)
	for _, k := range s.recents {
		if k != key {
			out = append(out, k)
		}
	}
	if len(out) > recentsLimit {
		out = out[:recentsLimit]
	}
	s.recents = out
	return s.saveLocked()
}

// SetFavorite marks or unmarks a record as favorite. It reports whether the
// state changed; unchanged state is not re-saved.
func (s *Store) SetFavorite(rec ConnectionRecord, on bool) (bool, error) {
	key := rec.PathKey()
	s.mu.Lock()
	defer s.mu.Unlock()
	has := containsKey(s.favorites, key)
	switch {
	case on && !has:
		s.favorites = append(s.favorites, key)
	case !on && has:
		s.favorites = dropKey(s.favorites, key)
	default:
		return false, nil
	}
	return true, s.saveLocked()
}

// IsFavorite reports whether the record is marked favorite.
func (s *Store) IsFavorite(rec ConnectionRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return containsKey(s.favorites, rec.PathKey())
}

// Recents returns records in most-recent-first order. Keys no longer backed
// by a record are skipped.
func (s *Store) Recents() []ConnectionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordsForKeys(s.recents)
}

// Favorites returns favorite records in marking order.
func (s *Store) Favorites() []ConnectionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordsForKeys(s.favorites)
}

// indexOf finds a record by identity. Callers hold the lock.
func (s *Store) indexOf(name string, groupPath []string) int {
	name = strings.TrimSpace(name)
	groupPath = normalizeGroupPath(groupPath)
	for i := range s.records {
		if s.records[i].Name == name && sameGroupPath(s.records[i].GroupPath, groupPath) {
			return i
		}
	}
	return -1
}

func (s *Store) recordsForKeys(keys []string) []ConnectionRecord {
	byKey := make(map[string]int, len(s.records))
	for i := range s.records {
		byKey[s.records[i].PathKey()] = i
	}
	out := make([]ConnectionRecord, 0, len(keys))
	for _, k := range keys {
		if i, ok := byKey[k]; ok {
			out = append(out, s.records[i])
		}
	}
	return out
}

// saveLocked serializes, encrypts and atomically rewrites the blob. On
// failure the previous on-disk blob is left intact, the in-memory state is
// kept, and the error wraps ErrWriteFailed.
func (s *Store) saveLocked() error {
	pl := payloadFile{
		Version:   payloadVersion,
		Records:   make([]recordPayload, 0, len(s.records)),
		Favorites: s.favorites,
		Recents:   s.recents,
	}
	for _, rec := range s.records {
		pl.Records = append(pl.Records, toPayload(rec))
	}
	plaintext, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("encode payload: %v: %w", err, ErrWriteFailed)
	}
	blob, err := sealPayload(s.key, plaintext)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrWriteFailed)
	}

	path := s.BlobPath()
	tmp := path + fmt.Sprintf(".tmp-%d-%d", os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("write temp blob %s: %v: %w", tmp, err, ErrWriteFailed)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename to %s: %v: %w", path, err, ErrWriteFailed)
	}
	return nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func dropKey(keys []string, key string) []string {
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

func renameKey(keys []string, oldKey, newKey string) {
	for i, k := range keys {
		if k == oldKey {
			keys[i] = newKey
		}
	}
}

func keepKnownKeys(keys []string, known map[string]struct{}) []string {
	out := keys[:0]
	for _, k := range keys {
		if _, ok := known[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
