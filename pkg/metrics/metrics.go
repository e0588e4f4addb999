// Package metrics provides the centralized Prometheus metrics registry for
// the batch orchestrator. All metrics are defined in their respective
// packages (batch, ratelimit, state) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the orchestrator.
// All metrics are automatically registered via promauto in their respective
// packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Orchestration Metrics (pkg/batch):
//   - vidbatch_attempts_total{outcome} (Counter): Acquisition attempts by outcome (success, failure)
//   - vidbatch_retries_total (Counter): Retry attempts across all items
//   - vidbatch_retry_exhausted_total (Counter): Items that exhausted their attempt budget
//   - vidbatch_items_total{status} (Counter): Items reaching a terminal state (success, failed, skipped)
//   - vidbatch_item_duration_seconds (Histogram): Wall time from first attempt to terminal outcome
//
// Pacing Metrics (pkg/ratelimit):
//   - vidbatch_pacing_delay_seconds (Gauge): Current adaptive inter-attempt delay
//   - vidbatch_pacing_waits_total (Counter): Pacing waits served
//   - vidbatch_pacing_degraded_total (Counter): Degradation notices (consecutive failure streaks)
//
// State Metrics (pkg/state):
//   - vidbatch_state_saves_total (Counter): Successful batch state checkpoints
//   - vidbatch_state_save_errors_total (Counter): Failed checkpoint writes
//
// Example Prometheus Queries:
//
//   # Attempt Success Rate
//   sum(rate(vidbatch_attempts_total{outcome="success"}[5m])) /
//   sum(rate(vidbatch_attempts_total[5m]))
//
//   # Current Pacing Delay
//   vidbatch_pacing_delay_seconds
//
//   # Retry Pressure
//   rate(vidbatch_retries_total[5m])
//
//   # P95 Item Duration
//   histogram_quantile(0.95, rate(vidbatch_item_duration_seconds_bucket[5m]))
//
//   # Checkpoint Failures (should be zero)
//   rate(vidbatch_state_save_errors_total[5m])
