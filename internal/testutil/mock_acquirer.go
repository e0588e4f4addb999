// Package testutil provides testing utilities for the batch orchestrator.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vidbatch/vidbatch/pkg/batch"
)

// ScriptedAcquirer is a configurable mock Acquirer. Each item can be given a
// script of outcomes consumed one per attempt; the last entry repeats once
// the script runs out. Items without a script succeed immediately.
type ScriptedAcquirer struct {
	mu      sync.Mutex
	scripts map[string][]batch.AttemptOutcome
	cursor  map[string]int

	// Delay is applied before every attempt resolves, to simulate
	// network-bound work.
	Delay time.Duration

	// Tracking
	attempts       map[string]int
	totalAttempts  int
	inFlight       int
	maxInFlight    int
	cancelledCalls int
}

// NewScriptedAcquirer creates an empty scripted acquirer.
func NewScriptedAcquirer() *ScriptedAcquirer {
	return &ScriptedAcquirer{
		scripts:  make(map[string][]batch.AttemptOutcome),
		cursor:   make(map[string]int),
		attempts: make(map[string]int),
	}
}

// Script sets the outcome sequence for an item.
func (a *ScriptedAcquirer) Script(itemID string, outcomes ...batch.AttemptOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[itemID] = outcomes
}

// FailThenSucceed scripts n failures with the given error followed by
// success at the given artifact path.
func (a *ScriptedAcquirer) FailThenSucceed(itemID string, n int, err error, artifactPath string) {
	outcomes := make([]batch.AttemptOutcome, 0, n+1)
	for i := 0; i < n; i++ {
		outcomes = append(outcomes, batch.AttemptOutcome{Err: err})
	}
	outcomes = append(outcomes, batch.AttemptOutcome{ArtifactPath: artifactPath})
	a.Script(itemID, outcomes...)
}

// AlwaysFail scripts an unconditional failure for an item.
func (a *ScriptedAcquirer) AlwaysFail(itemID string, err error) {
	a.Script(itemID, batch.AttemptOutcome{Err: err})
}

// Attempt implements batch.Acquirer.
func (a *ScriptedAcquirer) Attempt(ctx context.Context, item batch.ItemDescriptor) batch.AttemptOutcome {
	a.mu.Lock()
	a.inFlight++
	if a.inFlight > a.maxInFlight {
		a.maxInFlight = a.inFlight
	}
	a.attempts[item.ID]++
	a.totalAttempts++
	delay := a.Delay
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inFlight--
		a.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-ctx.Done():
			a.mu.Lock()
			a.cancelledCalls++
			a.mu.Unlock()
			return batch.AttemptOutcome{Err: ctx.Err()}
		case <-time.After(delay):
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	script, ok := a.scripts[item.ID]
	if !ok || len(script) == 0 {
		return batch.AttemptOutcome{ArtifactPath: "/tmp/" + item.ID + ".mp4"}
	}

	idx := a.cursor[item.ID]
	if idx >= len(script) {
		idx = len(script) - 1
	}
	a.cursor[item.ID]++
	return script[idx]
}

// Attempts returns how many attempts were made for an item.
func (a *ScriptedAcquirer) Attempts(itemID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts[itemID]
}

// TotalAttempts returns the total attempt count across all items.
func (a *ScriptedAcquirer) TotalAttempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalAttempts
}

// MaxInFlight returns the high-water mark of concurrent attempts.
func (a *ScriptedAcquirer) MaxInFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxInFlight
}

// CancelledCalls returns how many attempts were cut short by cancellation.
func (a *ScriptedAcquirer) CancelledCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelledCalls
}

// FlakyStore wraps a batch.StateStore and fails after a set number of
// successful saves.
type FlakyStore struct {
	mu        sync.Mutex
	inner     batch.StateStore
	saves     int
	failAfter int
}

// ErrDiskFull is the error injected by FlakyStore.
var ErrDiskFull = errors.New("no space left on device")

// NewFlakyStore creates a store that fails every Save after the first
// failAfter calls succeed.
func NewFlakyStore(inner batch.StateStore, failAfter int) *FlakyStore {
	return &FlakyStore{inner: inner, failAfter: failAfter}
}

// Save implements batch.StateStore.
func (f *FlakyStore) Save(ctx context.Context, st *batch.BatchState) error {
	f.mu.Lock()
	f.saves++
	fail := f.saves > f.failAfter
	f.mu.Unlock()

	if fail {
		return ErrDiskFull
	}
	return f.inner.Save(ctx, st)
}

// MemoryStore is an in-memory batch.StateStore that snapshots every save,
// for asserting checkpoint contents without touching disk.
type MemoryStore struct {
	mu        sync.Mutex
	saveCount int
	last      *batch.BatchState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements batch.StateStore by deep-copying the state.
func (m *MemoryStore) Save(_ context.Context, st *batch.BatchState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := *st
	snapshot.Completed = make(map[string]batch.ItemResult, len(st.Completed))
	for id, res := range st.Completed {
		snapshot.Completed[id] = res
	}
	snapshot.Sources = append([]string(nil), st.Sources...)

	m.saveCount++
	m.last = &snapshot
	return nil
}

// SaveCount returns how many checkpoints were written.
func (m *MemoryStore) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCount
}

// Last returns the most recent checkpoint, or nil.
func (m *MemoryStore) Last() *batch.BatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
