// Package state persists batch progress so an interrupted batch can resume
// without re-acquiring completed items. Stores are passive persistence
// layers: whether to resume is the host's decision.
package state

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vidbatch/vidbatch/pkg/batch"
)

// Prometheus metrics for state persistence.
var (
	stateSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidbatch_state_saves_total",
		Help: "Total number of batch state checkpoints written",
	})

	stateSaveErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidbatch_state_save_errors_total",
		Help: "Total number of failed batch state writes",
	})
)

// ErrNotFound is returned by Load when no state exists for the batch key.
var ErrNotFound = errors.New("batch state not found")

// Store persists and reloads batch progress. Save must be atomic: a partial
// write must never leave a corrupt record observable to a subsequent Load.
// Save is called from a single writer (the orchestrator's collector); Load
// and Delete are host-side operations around a run.
type Store interface {
	Load(ctx context.Context, batchKey string) (*batch.BatchState, error)
	Save(ctx context.Context, st *batch.BatchState) error
	Delete(ctx context.Context, batchKey string) error
}
