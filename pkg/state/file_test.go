package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vidbatch/vidbatch/pkg/batch"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return fs
}

func sampleState() *batch.BatchState {
	st := batch.NewBatchState(batch.Meta{
		Platform:    "youtube",
		ChannelName: "Test Channel",
		ChannelURL:  "https://youtube.com/@test",
	}, []string{"v1", "v2", "v3"})
	st.MarkComplete(batch.ItemResult{ID: "v1", Success: true, ArtifactPath: "/media/v1.mp4", Attempts: 1})
	st.MarkComplete(batch.ItemResult{ID: "v2", Success: false, Error: "unsupported format", Attempts: 1})
	return st
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	st := sampleState()
	if err := fs.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := fs.Load(ctx, st.BatchKey)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.BatchKey != st.BatchKey {
		t.Errorf("BatchKey = %s, want %s", loaded.BatchKey, st.BatchKey)
	}
	if loaded.Meta.ChannelName != "Test Channel" {
		t.Errorf("ChannelName = %s, want Test Channel", loaded.Meta.ChannelName)
	}
	if len(loaded.Sources) != 3 {
		t.Errorf("Sources = %d entries, want 3", len(loaded.Sources))
	}
	if loaded.CompletedCount() != 2 {
		t.Errorf("CompletedCount() = %d, want 2", loaded.CompletedCount())
	}

	res, ok := loaded.Completed["v2"]
	if !ok {
		t.Fatal("completed entry for v2 missing after round trip")
	}
	if res.Success || res.Error != "unsupported format" {
		t.Errorf("v2 result = %+v, want recorded failure", res)
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	fs := newTestFileStore(t)

	_, err := fs.Load(context.Background(), "no-such-batch")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	st := sampleState()
	if err := fs.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	st.MarkComplete(batch.ItemResult{ID: "v3", Success: true, ArtifactPath: "/media/v3.mp4", Attempts: 2})
	if err := fs.Save(ctx, st); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	loaded, err := fs.Load(ctx, st.BatchKey)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.CompletedCount() != 3 {
		t.Errorf("CompletedCount() = %d, want 3 after overwrite", loaded.CompletedCount())
	}
}

func TestFileStore_SaveRequiresBatchKey(t *testing.T) {
	fs := newTestFileStore(t)

	if err := fs.Save(context.Background(), &batch.BatchState{}); err == nil {
		t.Error("Save() with empty batch key expected error, got nil")
	}
	if err := fs.Save(context.Background(), nil); err == nil {
		t.Error("Save(nil) expected error, got nil")
	}
}

func TestFileStore_FileIsValidJSON(t *testing.T) {
	fs := newTestFileStore(t)

	st := sampleState()
	if err := fs.Save(context.Background(), st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(fs.Path(st.BatchKey))
	if err != nil {
		t.Fatalf("reading state file: %v", err)
	}
	if !json.Valid(data) {
		t.Error("state file is not valid JSON")
	}
	if data[len(data)-1] != '\n' {
		t.Error("state file missing trailing newline")
	}
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	fs := newTestFileStore(t)

	st := sampleState()
	for i := 0; i < 5; i++ {
		if err := fs.Save(context.Background(), st); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		t.Fatalf("reading state directory: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			t.Errorf("unexpected file in state directory: %s", e.Name())
		}
	}
}

func TestFileStore_Delete(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	st := sampleState()
	if err := fs.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := fs.Delete(ctx, st.BatchKey); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := fs.Load(ctx, st.BatchKey); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Delete() error = %v, want ErrNotFound", err)
	}

	// Deleting a missing record is not an error.
	if err := fs.Delete(ctx, st.BatchKey); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestFileStore_List(t *testing.T) {
	fs := newTestFileStore(t)
	ctx := context.Background()

	keys, err := fs.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("List() on empty store = %v, want empty", keys)
	}

	a := batch.NewBatchState(batch.Meta{}, []string{"x"})
	b := batch.NewBatchState(batch.Meta{}, []string{"y"})
	for _, st := range []*batch.BatchState{a, b} {
		if err := fs.Save(ctx, st); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	keys, err = fs.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{a.BatchKey, b.BatchKey}
	sort.Strings(keys)
	sort.Strings(want)
	if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("List() = %v, want %v", keys, want)
	}
}
