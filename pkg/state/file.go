package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/vidbatch/vidbatch/pkg/batch"
)

// FileStore persists batch state as one pretty-printed JSON file per batch
// key, so progress is human-inspectable with any text tool. Writes go
// through a temp file and rename so a crash mid-write never corrupts the
// record.
type FileStore struct {
	dir    string
	logger zerolog.Logger
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string, logger zerolog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Path returns the state file path for a batch key.
func (fs *FileStore) Path(batchKey string) string {
	return filepath.Join(fs.dir, batchKey+".json")
}

// Load reads the state for a batch key. Returns ErrNotFound if absent.
func (fs *FileStore) Load(_ context.Context, batchKey string) (*batch.BatchState, error) {
	data, err := os.ReadFile(fs.Path(batchKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read batch state %s: %w", batchKey, err)
	}

	var st batch.BatchState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse batch state %s: %w", batchKey, err)
	}
	return &st, nil
}

// Save atomically writes the state record.
func (fs *FileStore) Save(_ context.Context, st *batch.BatchState) error {
	if st == nil || st.BatchKey == "" {
		return fmt.Errorf("batch state with a batch key is required")
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		stateSaveErrorsTotal.Inc()
		return fmt.Errorf("marshal batch state %s: %w", st.BatchKey, err)
	}
	data = append(data, '\n')

	if err := fs.writeAtomic(fs.Path(st.BatchKey), data); err != nil {
		stateSaveErrorsTotal.Inc()
		return err
	}

	stateSavesTotal.Inc()
	fs.logger.Debug().
		Str("batch_key", st.BatchKey).
		Int("completed", st.CompletedCount()).
		Int("total", len(st.Sources)).
		Msg("Batch state checkpointed")

	return nil
}

// Delete removes the state record for a batch key. Deleting a missing
// record is not an error.
func (fs *FileStore) Delete(_ context.Context, batchKey string) error {
	if err := os.Remove(fs.Path(batchKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete batch state %s: %w", batchKey, err)
	}
	return nil
}

// List returns the batch keys with persisted state, for the host's resume
// prompt.
func (fs *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("read state directory %s: %w", fs.dir, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		keys = append(keys, name[:len(name)-len(".json")])
	}
	return keys, nil
}

func (fs *FileStore) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(fs.dir, ".vidbatch-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}
