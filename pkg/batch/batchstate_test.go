package batch

import (
	"errors"
	"testing"
	"time"
)

func TestNewBatchState(t *testing.T) {
	meta := Meta{Platform: "youtube", ChannelName: "Test Channel"}
	st := NewBatchState(meta, []string{"a", "b"})

	if st.BatchKey == "" {
		t.Error("BatchKey is empty, want generated key")
	}
	if st.Meta.ChannelName != "Test Channel" {
		t.Errorf("ChannelName = %s, want Test Channel", st.Meta.ChannelName)
	}
	if len(st.Sources) != 2 {
		t.Errorf("Sources = %d entries, want 2", len(st.Sources))
	}
	if st.Completed == nil {
		t.Error("Completed map is nil")
	}
	if st.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}

	other := NewBatchState(meta, nil)
	if other.BatchKey == st.BatchKey {
		t.Error("two batches share a batch key")
	}
}

func TestBatchState_MarkComplete(t *testing.T) {
	st := NewBatchState(Meta{}, []string{"a", "b"})

	if !st.MarkComplete(ItemResult{ID: "a", Success: true, Attempts: 1}) {
		t.Error("first MarkComplete() = false, want true")
	}
	if !st.IsComplete("a") {
		t.Error("IsComplete(a) = false after MarkComplete")
	}

	// At most one terminal outcome per item.
	if st.MarkComplete(ItemResult{ID: "a", Success: false, Attempts: 3}) {
		t.Error("duplicate MarkComplete() = true, want false")
	}
	if res := st.Completed["a"]; !res.Success {
		t.Error("duplicate MarkComplete overwrote the recorded result")
	}
}

func TestBatchState_MarkCompleteUpdatesTimestamp(t *testing.T) {
	st := NewBatchState(Meta{}, []string{"a"})
	st.UpdatedAt = time.Time{}

	st.MarkComplete(ItemResult{ID: "a", Success: true, Attempts: 1})
	if st.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set by MarkComplete")
	}
}

func TestBatchState_Counts(t *testing.T) {
	st := NewBatchState(Meta{}, []string{"a", "b", "c"})

	if st.Finished() {
		t.Error("Finished() = true for fresh batch")
	}

	st.MarkComplete(ItemResult{ID: "a", Success: true, Attempts: 1})
	st.MarkComplete(ItemResult{ID: "b", Success: false, Error: "unsupported format", Attempts: 1})

	if got := st.CompletedCount(); got != 2 {
		t.Errorf("CompletedCount() = %d, want 2", got)
	}
	if got := st.SuccessCount(); got != 1 {
		t.Errorf("SuccessCount() = %d, want 1", got)
	}
	if st.Finished() {
		t.Error("Finished() = true with one item pending")
	}

	st.MarkComplete(ItemResult{ID: "c", Success: true, Attempts: 2})
	if !st.Finished() {
		t.Error("Finished() = false with all items resolved")
	}
}

func TestAttemptOutcome_Success(t *testing.T) {
	ok := AttemptOutcome{ArtifactPath: "/tmp/a.mp4"}
	if !ok.Success() {
		t.Error("outcome without error reports failure")
	}

	bad := AttemptOutcome{Err: errors.New("timeout")}
	if bad.Success() {
		t.Error("outcome with error reports success")
	}
}
