package batch

import (
	"time"

	"github.com/google/uuid"
)

// BatchState is the persisted progress record for one batch: the source item
// identifiers, the terminal results recorded so far, and timestamps.
// Completed is append-only and an item identifier appears at most once.
type BatchState struct {
	BatchKey  string                `json:"batch_key"`
	Meta      Meta                  `json:"meta"`
	Sources   []string              `json:"sources"`
	Completed map[string]ItemResult `json:"completed"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// NewBatchState creates the state record for a fresh batch over the given
// source item identifiers.
func NewBatchState(meta Meta, sources []string) *BatchState {
	now := time.Now().UTC()
	return &BatchState{
		BatchKey:  uuid.NewString(),
		Meta:      meta,
		Sources:   append([]string(nil), sources...),
		Completed: make(map[string]ItemResult),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsComplete reports whether the item already has a terminal result.
func (s *BatchState) IsComplete(itemID string) bool {
	_, ok := s.Completed[itemID]
	return ok
}

// MarkComplete records an item's terminal result. Returns false without
// modifying the state if the item is already recorded.
func (s *BatchState) MarkComplete(res ItemResult) bool {
	if s.Completed == nil {
		s.Completed = make(map[string]ItemResult)
	}
	if _, ok := s.Completed[res.ID]; ok {
		return false
	}
	s.Completed[res.ID] = res
	s.UpdatedAt = time.Now().UTC()
	return true
}

// CompletedCount returns how many items have a terminal result.
func (s *BatchState) CompletedCount() int {
	return len(s.Completed)
}

// SuccessCount returns how many completed items succeeded.
func (s *BatchState) SuccessCount() int {
	n := 0
	for _, res := range s.Completed {
		if res.Success {
			n++
		}
	}
	return n
}

// Finished reports whether every source item has a terminal result.
func (s *BatchState) Finished() bool {
	for _, id := range s.Sources {
		if !s.IsComplete(id) {
			return false
		}
	}
	return true
}
