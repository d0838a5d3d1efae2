package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"sshm/pkg/logging"
)

// Plaintext export for migration and backup. The file carries secrets in
// the clear so it can be moved between machines and re-imported without the
// key file; it must be handled like the store itself.

const exportVersion = 1

// ExportFile is the on-disk export shape.
type ExportFile struct {
	Version int             `json:"version"`
	Records []recordPayload `json:"records"`
}

// ImportMode selects how Import combines the file with the store.
type ImportMode int

const (
	// ImportMerge updates records that already exist (matched by group path
	// and name) and appends the rest.
	ImportMerge ImportMode = iota
	// ImportReplace swaps the store content for the file content.
	ImportReplace
)

// Export writes every record, secrets included, as indented JSON to path
// with owner-only permissions.
func Export(st *Store, path string) error {
	records := st.Records()
	out := ExportFile{
		Version: exportVersion,
		Records: make([]recordPayload, 0, len(records)),
	}
	for _, rec := range records {
		out.Records = append(out.Records, toPayload(rec))
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write export %s: %w", path, err)
	}
	return nil
}

// Import reads an export file and applies it to the store in one save. It
// returns how many records were added and how many existing ones updated
// (replace mode counts everything as added).
func Import(st *Store, path string, mode ImportMode) (added, updated int, err error) {
	log := logging.ForComponent(logging.CompImport)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read import %s: %w", path, err)
	}
	var in ExportFile
	if err := json.Unmarshal(data, &in); err != nil {
		return 0, 0, fmt.Errorf("parse import %s: %w", path, err)
	}
	if in.Version > exportVersion {
		return 0, 0, fmt.Errorf("import %s: version %d is newer than supported %d", path, in.Version, exportVersion)
	}

	incoming := make([]ConnectionRecord, 0, len(in.Records))
	for _, rp := range in.Records {
		incoming = append(incoming, fromPayload(rp))
	}

	if mode == ImportReplace {
		if len(incoming) == 0 {
			return 0, 0, fmt.Errorf("replace from %s: %w", path, ErrImportEmpty)
		}
		if err := st.ReplaceAll(incoming); err != nil {
			return 0, 0, err
		}
		log.Debug("import replaced store", "file", path, "records", len(incoming))
		return len(incoming), 0, nil
	}

	merged := st.Records()
	index := make(map[string]int, len(merged))
	for i, rec := range merged {
		index[rec.PathKey()] = i
	}
	for i, rec := range incoming {
		if err := rec.Validate(); err != nil {
			return 0, 0, fmt.Errorf("import records[%d]: %w", i, err)
		}
		rec = rec.normalized()
		if j, ok := index[rec.PathKey()]; ok {
			merged[j] = rec
			updated++
		} else {
			index[rec.PathKey()] = len(merged)
			merged = append(merged, rec)
			added++
		}
	}
	if err := st.ReplaceAll(merged); err != nil {
		return 0, 0, err
	}
	log.Debug("import merged", "file", path, "added", added, "updated", updated)
	return added, updated, nil
}

// ErrImportEmpty guards replace-mode imports: an empty file will not wipe
// the store.
var ErrImportEmpty = errors.New("import file has no records")
