package manager

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func testRecord(name string, group ...string) ConnectionRecord {
	return ConnectionRecord{
		Name:      name,
		Host:      name + ".example.com",
		Username:  "deploy",
		Auth:      PasswordAuth(SecretFromString("pw-" + name)),
		GroupPath: group,
	}
}

func TestOpen_FreshDirCreatesKeyOnly(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(st.Records()) != 0 {
		t.Fatalf("expected empty store, got %d records", len(st.Records()))
	}

	fi, err := os.Stat(st.KeyPath())
	if err != nil {
		t.Fatalf("expected key file to exist: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("expected key mode 0600, got %v", fi.Mode().Perm())
	}
	if _, err := os.Stat(st.BlobPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no blob before first save, got: %v", err)
	}
}

func TestOpen_DefaultDirFromEnv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "custom-home")
	t.Setenv(EnvHome, dir)

	st, err := Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if st.Dir() != dir {
		t.Fatalf("expected store dir %q, got %q", dir, st.Dir())
	}
}

func TestStore_AddSaveReopenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	web1 := testRecord("web1", "prod", "web")
	db1 := ConnectionRecord{
		Name:      "db1",
		Host:      "10.0.0.5",
		Port:      2222,
		Username:  "postgres",
		Auth:      KeyFileAuth("~/.ssh/id_db"),
		GroupPath: []string{"prod"},
		Tags:      []string{"database"},
	}
	if err := st.Add(web1); err != nil {
		t.Fatalf("add web1: %v", err)
	}
	if err := st.Add(db1); err != nil {
		t.Fatalf("add db1: %v", err)
	}
	if err := st.MarkRecent(web1); err != nil {
		t.Fatalf("mark recent: %v", err)
	}
	if _, err := st.SetFavorite(db1, true); err != nil {
		t.Fatalf("set favorite: %v", err)
	}

	// The blob must not leak plaintext.
	blob, err := os.ReadFile(st.BlobPath())
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	for _, needle := range []string{"web1", "pw-web1", "postgres", "10.0.0.5"} {
		if strings.Contains(string(blob), needle) {
			t.Fatalf("blob contains plaintext %q", needle)
		}
	}

	st2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	records := st2.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records after reopen, got %d", len(records))
	}
	if records[0].Name != "web1" || records[1].Name != "db1" {
		t.Fatalf("expected insertion order preserved, got %q, %q", records[0].Name, records[1].Name)
	}
	got, ok := st2.Find("web1", []string{"prod", "web"})
	if !ok {
		t.Fatalf("expected to find web1")
	}
	if got.Auth.Password.Reveal() != "pw-web1" {
		t.Fatalf("password did not survive round trip")
	}
	if got.Username != "deploy" || got.EffectivePort() != 22 {
		t.Fatalf("fields did not survive round trip: %+v", got)
	}

	recents := st2.Recents()
	if len(recents) != 1 || recents[0].Name != "web1" {
		t.Fatalf("expected recents to survive reopen, got %v", recents)
	}
	if !st2.IsFavorite(db1) {
		t.Fatalf("expected favorite to survive reopen")
	}
}

func TestStore_AddDuplicateFailsAndLeavesStoreUnchanged(t *testing.T) {
	st := newTestStore(t)
	rec := testRecord("web1", "prod")
	if err := st.Add(rec); err != nil {
		t.Fatalf("add: %v", err)
	}

	dup := testRecord("web1", "prod")
	dup.Host = "other.example.com"
	err := st.Add(dup)
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got: %v", err)
	}

	records := st.Records()
	if len(records) != 1 {
		t.Fatalf("expected store unchanged, got %d records", len(records))
	}
	if records[0].Host != "web1.example.com" {
		t.Fatalf("expected original record untouched, got host %q", records[0].Host)
	}

	// Same name in a different group is fine.
	other := testRecord("web1", "staging")
	if err := st.Add(other); err != nil {
		t.Fatalf("expected same name in other group to succeed, got: %v", err)
	}
}

func TestStore_AddInvalidRecordRejected(t *testing.T) {
	st := newTestStore(t)
	bad := ConnectionRecord{Name: "web1", Host: "h", Auth: Auth{Method: AuthPassword}}
	if err := st.Add(bad); !errors.Is(err, ErrAuthConfigInvalid) {
		t.Fatalf("expected ErrAuthConfigInvalid, got: %v", err)
	}
	if len(st.Records()) != 0 {
		t.Fatalf("expected store unchanged after invalid add")
	}
}

func TestStore_UpdateRenameMovesFavoritesAndRecents(t *testing.T) {
	st := newTestStore(t)
	rec := testRecord("web1", "prod")
	if err := st.Add(rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := st.SetFavorite(rec, true); err != nil {
		t.Fatalf("favorite: %v", err)
	}
	if err := st.MarkRecent(rec); err != nil {
		t.Fatalf("recent: %v", err)
	}

	renamed := testRecord("web-primary", "prod", "web")
	if err := st.Update("web1", []string{"prod"}, renamed); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, ok := st.Find("web1", []string{"prod"}); ok {
		t.Fatalf("old identity still present after update")
	}
	got, ok := st.Find("web-primary", []string{"prod", "web"})
	if !ok {
		t.Fatalf("new identity missing after update")
	}
	if !st.IsFavorite(got) {
		t.Fatalf("favorite did not follow rename")
	}
	recents := st.Recents()
	if len(recents) != 1 || recents[0].Name != "web-primary" {
		t.Fatalf("recents did not follow rename: %v", recents)
	}
}

func TestStore_UpdateMissingAndCollision(t *testing.T) {
	st := newTestStore(t)
	if err := st.Add(testRecord("a", "g")); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := st.Add(testRecord("b", "g")); err != nil {
		t.Fatalf("add b: %v", err)
	}

	if err := st.Update("missing", []string{"g"}, testRecord("c", "g")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}

	// Renaming a onto b collides.
	clash := testRecord("b", "g")
	if err := st.Update("a", []string{"g"}, clash); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got: %v", err)
	}

	// Updating a record in place (same identity) is not a collision.
	same := testRecord("a", "g")
	same.Host = "new.example.com"
	if err := st.Update("a", []string{"g"}, same); err != nil {
		t.Fatalf("in-place update failed: %v", err)
	}
	got, _ := st.Find("a", []string{"g"})
	if got.Host != "new.example.com" {
		t.Fatalf("in-place update lost changes: %q", got.Host)
	}
}

func TestStore_RemoveTwiceFails(t *testing.T) {
	st := newTestStore(t)
	rec := testRecord("web1", "prod", "web")
	if err := st.Add(rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := st.Remove("web1", []string{"prod", "web"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := st.Remove("web1", []string{"prod", "web"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got: %v", err)
	}
}

func TestOpen_BlobWithoutKeyIsFatal(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Add(testRecord("web1")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := os.Remove(st.KeyPath()); err != nil {
		t.Fatalf("remove key: %v", err)
	}

	if _, err := Open(dir); !errors.Is(err, ErrKeyMissing) {
		t.Fatalf("expected ErrKeyMissing, got: %v", err)
	}
}

func TestOpen_TamperedBlobFailsDecrypt(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Add(testRecord("web1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	blob, err := os.ReadFile(st.BlobPath())
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	blob[len(blob)-1] ^= 0xff
	if err := os.WriteFile(st.BlobPath(), blob, 0o600); err != nil {
		t.Fatalf("write blob: %v", err)
	}

	if _, err := Open(dir); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got: %v", err)
	}
}

func TestOpen_UndecodablePayloadIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	key, err := readKeyFile(st.KeyPath())
	if err != nil {
		t.Fatalf("read key: %v", err)
	}
	blob, err := sealPayload(key, []byte("not json at all"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := os.WriteFile(st.BlobPath(), blob, 0o600); err != nil {
		t.Fatalf("write blob: %v", err)
	}

	if _, err := Open(dir); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got: %v", err)
	}
}

func TestStore_SaveFailureKeepsMemoryStateAndRetries(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Block the rename target with a directory so the atomic rename fails.
	if err := os.Mkdir(st.BlobPath(), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	rec := testRecord("web1")
	err = st.Add(rec)
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got: %v", err)
	}
	// In-memory state is ahead of disk, never silently dropped.
	if _, ok := st.Find("web1", nil); !ok {
		t.Fatalf("expected record kept in memory after write failure")
	}
	leftovers, err := filepath.Glob(st.BlobPath() + ".tmp-*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("expected temp file cleaned up, found %v", leftovers)
	}

	// Once the obstacle is gone an explicit Save lands the state.
	if err := os.Remove(st.BlobPath()); err != nil {
		t.Fatalf("rmdir: %v", err)
	}
	if err := st.Save(); err != nil {
		t.Fatalf("retry save: %v", err)
	}
	st2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := st2.Find("web1", nil); !ok {
		t.Fatalf("expected record on disk after retried save")
	}
}

func TestStore_FailedSaveLeavesPriorBlobIntact(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Add(testRecord("web1")); err != nil {
		t.Fatalf("add web1: %v", err)
	}
	before, err := os.ReadFile(st.BlobPath())
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}

	// Truncating the in-memory key makes the seal step fail before any file
	// is touched.
	goodKey := st.key
	st.key = goodKey[:16]
	err = st.Add(testRecord("db1"))
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got: %v", err)
	}

	after, err := os.ReadFile(st.BlobPath())
	if err != nil {
		t.Fatalf("read blob after failure: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("expected prior blob untouched after failed save")
	}
	prior, err := Open(dir)
	if err != nil {
		t.Fatalf("expected prior blob still decryptable: %v", err)
	}
	if _, ok := prior.Find("web1", nil); !ok {
		t.Fatalf("expected prior record present in untouched blob")
	}

	st.key = goodKey
	if err := st.Save(); err != nil {
		t.Fatalf("retry save: %v", err)
	}
	st2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := st2.Find("db1", nil); !ok {
		t.Fatalf("expected retried save to land the new record")
	}
}

func TestStore_MarkRecentIsMRUWithDedup(t *testing.T) {
	st := newTestStore(t)
	a := testRecord("a")
	b := testRecord("b")
	for _, rec := range []ConnectionRecord{a, b} {
		if err := st.Add(rec); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	for _, rec := range []ConnectionRecord{a, b, a} {
		if err := st.MarkRecent(rec); err != nil {
			t.Fatalf("mark recent: %v", err)
		}
	}
	recents := st.Recents()
	if len(recents) != 2 {
		t.Fatalf("expected deduped recents, got %d", len(recents))
	}
	if recents[0].Name != "a" || recents[1].Name != "b" {
		t.Fatalf("expected MRU order [a b], got [%s %s]", recents[0].Name, recents[1].Name)
	}
}

func TestStore_RecentsSkipStaleEntriesAfterRemove(t *testing.T) {
	st := newTestStore(t)
	rec := testRecord("gone")
	if err := st.Add(rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := st.MarkRecent(rec); err != nil {
		t.Fatalf("recent: %v", err)
	}
	if err := st.Remove("gone", nil); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := st.Recents(); len(got) != 0 {
		t.Fatalf("expected no recents after remove, got %v", got)
	}
}

func TestStore_SetFavoriteReportsChange(t *testing.T) {
	st := newTestStore(t)
	rec := testRecord("web1")
	if err := st.Add(rec); err != nil {
		t.Fatalf("add: %v", err)
	}

	changed, err := st.SetFavorite(rec, true)
	if err != nil || !changed {
		t.Fatalf("expected first favorite to change, got changed=%v err=%v", changed, err)
	}
	changed, err = st.SetFavorite(rec, true)
	if err != nil || changed {
		t.Fatalf("expected repeat favorite to be a no-op, got changed=%v err=%v", changed, err)
	}
	changed, err = st.SetFavorite(rec, false)
	if err != nil || !changed {
		t.Fatalf("expected unfavorite to change, got changed=%v err=%v", changed, err)
	}
}

func TestStore_ReplaceAllValidatesAndPrunes(t *testing.T) {
	st := newTestStore(t)
	old := testRecord("old")
	if err := st.Add(old); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := st.SetFavorite(old, true); err != nil {
		t.Fatalf("favorite: %v", err)
	}

	dup := []ConnectionRecord{testRecord("x", "g"), testRecord("x", "g")}
	if err := st.ReplaceAll(dup); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName for duplicate set, got: %v", err)
	}

	if err := st.ReplaceAll([]ConnectionRecord{testRecord("new")}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(st.Records()) != 1 || st.Records()[0].Name != "new" {
		t.Fatalf("expected replaced content, got %v", st.Records())
	}
	if len(st.Favorites()) != 0 {
		t.Fatalf("expected favorites pruned with their records")
	}
}
