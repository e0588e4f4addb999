package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/vidbatch/vidbatch/pkg/ratelimit"
	"github.com/vidbatch/vidbatch/pkg/retry"
)

// Prometheus metrics for batch orchestration.
var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidbatch_attempts_total",
		Help: "Total acquisition attempts by outcome",
	}, []string{"outcome"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidbatch_retries_total",
		Help: "Total number of retry attempts",
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidbatch_retry_exhausted_total",
		Help: "Total number of items that exhausted their attempt budget",
	})

	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidbatch_items_total",
		Help: "Total items reaching a terminal state by status",
	}, []string{"status"})

	itemDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vidbatch_item_duration_seconds",
		Help:    "Wall time from first attempt to terminal outcome per item",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
	})
)

// ErrStoreFailure wraps a state persistence failure. The batch aborts on it
// because crash-safety can no longer be guaranteed.
var ErrStoreFailure = errors.New("batch state persistence failed")

// StateStore is the checkpointing capability the controller needs. Only the
// controller's collector goroutine calls Save; workers hand results to it.
type StateStore interface {
	Save(ctx context.Context, st *BatchState) error
}

// Config holds the controller configuration for one batch run.
type Config struct {
	// Parallelism is the worker count N. At no instant are more than N
	// acquisition attempts in flight.
	Parallelism int

	// AttemptTimeout bounds a single Acquirer attempt. A timeout counts as
	// a retryable failure.
	AttemptTimeout time.Duration

	// Acquirer performs individual acquisition attempts.
	Acquirer Acquirer

	// Policy classifies failures and spaces retries of the same item.
	Policy retry.Policy

	// Limiter paces all attempts across workers.
	Limiter *ratelimit.Limiter

	// Store receives a checkpoint after every terminal outcome.
	Store StateStore

	// Logger for batch lifecycle events.
	Logger zerolog.Logger

	// OnProgress, if set, is called after each terminal outcome with the
	// number of resolved items and the batch total. Eventually consistent,
	// display only.
	OnProgress func(done, total int)
}

// Controller drives a batch of items through rate-limited, retried
// acquisition on a bounded worker pool.
type Controller struct {
	cfg Config
}

// NewController validates the configuration and creates a controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Parallelism < 1 {
		return nil, fmt.Errorf("parallelism must be >= 1 (got %d)", cfg.Parallelism)
	}
	if cfg.Acquirer == nil {
		return nil, fmt.Errorf("acquirer is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if cfg.Policy.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry policy must allow at least one attempt")
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Minute
	}

	return &Controller{cfg: cfg}, nil
}

// Run acquires every item not already completed in st. It returns one
// ItemResult per input item, ordered by when each item reached its terminal
// outcome (state-loaded results first); callers needing input order must
// re-sort by identifier.
//
// A single item's failure never aborts the batch. Run returns a non-nil
// error only when the batch is cancelled (the context's error) or when a
// state checkpoint fails (wrapping ErrStoreFailure); in both cases the
// results recorded so far are returned and remain persisted.
func (c *Controller) Run(ctx context.Context, st *BatchState, items []ItemDescriptor) ([]ItemResult, error) {
	start := time.Now()
	total := len(items)
	results := make([]ItemResult, 0, total)

	// Items completed in a previous run are skipped without consuming a
	// worker slot or contacting the acquirer.
	pending := make([]ItemDescriptor, 0, total)
	for _, item := range items {
		if res, ok := st.Completed[item.ID]; ok {
			results = append(results, res)
			itemsTotal.WithLabelValues("skipped").Inc()
			c.cfg.Logger.Debug().
				Str("batch_key", st.BatchKey).
				Str("item_id", item.ID).
				Msg("Item already completed, skipping")
			continue
		}
		pending = append(pending, item)
	}

	c.cfg.Logger.Info().
		Str("batch_key", st.BatchKey).
		Int("total", total).
		Int("pending", len(pending)).
		Int("resumed", len(results)).
		Int("parallelism", c.cfg.Parallelism).
		Msg("Starting batch acquisition")

	if len(pending) == 0 {
		return results, nil
	}

	// runCtx lets a persistence failure stop dispatch without waiting for
	// the caller to cancel.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan ItemDescriptor)
	outcomes := make(chan ItemResult)

	go func() {
		defer close(work)
		for _, item := range pending {
			select {
			case work <- item:
			case <-runCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Parallelism; i++ {
		wg.Add(1)
		go c.worker(runCtx, work, outcomes, &wg, i)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Single-writer discipline: only this loop mutates the batch state and
	// calls Save.
	var fatal error
	for res := range outcomes {
		if !st.MarkComplete(res) {
			// A duplicate terminal outcome for an item would be a
			// bookkeeping bug upstream; never record it twice.
			c.cfg.Logger.Warn().
				Str("batch_key", st.BatchKey).
				Str("item_id", res.ID).
				Msg("Duplicate terminal outcome ignored")
			continue
		}
		results = append(results, res)

		if fatal == nil {
			if err := c.cfg.Store.Save(ctx, st); err != nil {
				fatal = fmt.Errorf("%w: %v", ErrStoreFailure, err)
				c.cfg.Logger.Error().
					Err(err).
					Str("batch_key", st.BatchKey).
					Msg("State checkpoint failed - aborting batch")
				cancel()
			}
		}

		if c.cfg.OnProgress != nil {
			c.cfg.OnProgress(len(results), total)
		}
	}

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}

	c.cfg.Logger.Info().
		Str("batch_key", st.BatchKey).
		Int("total", total).
		Int("resolved", len(results)).
		Int("succeeded", succeeded).
		Int("failed", len(results)-succeeded).
		Dur("duration", time.Since(start)).
		Msg("Batch acquisition finished")

	if fatal != nil {
		return results, fatal
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// worker consumes items from the queue and resolves each to a terminal
// outcome. Retries of the same item run strictly sequentially in this
// goroutine.
func (c *Controller) worker(ctx context.Context, work <-chan ItemDescriptor, outcomes chan<- ItemResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for item := range work {
		select {
		case <-ctx.Done():
			c.cfg.Logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		res, ok := c.acquireItem(ctx, item, workerID)
		if !ok {
			// Cancelled mid-item: the attempt never reached a terminal
			// outcome, so nothing is recorded.
			return
		}

		select {
		case outcomes <- res:
		case <-ctx.Done():
			return
		}
	}
}

// acquireItem drives one item through paced, retried acquisition. The second
// return value is false when the batch was cancelled before the item reached
// a terminal outcome.
func (c *Controller) acquireItem(ctx context.Context, item ItemDescriptor, workerID int) (ItemResult, bool) {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= c.cfg.Policy.MaxAttempts; attempt++ {
		// Pacing applies to every attempt; retries never bypass it.
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return ItemResult{}, false
		}

		attemptCtx, cancelAttempt := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		outcome := c.cfg.Acquirer.Attempt(attemptCtx, item)
		timedOut := attemptCtx.Err() == context.DeadlineExceeded
		cancelAttempt()

		if outcome.Success() {
			attemptsTotal.WithLabelValues("success").Inc()
			c.cfg.Limiter.RecordSuccess()
			itemsTotal.WithLabelValues("success").Inc()
			itemDurationSeconds.Observe(time.Since(start).Seconds())

			if attempt > 1 {
				c.cfg.Logger.Info().
					Str("item_id", item.ID).
					Int("attempt", attempt).
					Msg("Acquisition succeeded after retry")
			}

			return ItemResult{
				ID:           item.ID,
				Success:      true,
				ArtifactPath: outcome.ArtifactPath,
				Attempts:     attempt,
			}, true
		}

		attemptsTotal.WithLabelValues("failure").Inc()
		lastErr = outcome.Err
		if timedOut && ctx.Err() == nil {
			// Per-attempt deadline hit; keep "timeout" in the text so the
			// policy classifies it as retryable.
			lastErr = fmt.Errorf("attempt timeout after %s: %w", c.cfg.AttemptTimeout, outcome.Err)
		}

		if ctx.Err() != nil {
			return ItemResult{}, false
		}

		c.cfg.Limiter.RecordFailure(c.cfg.Policy.IsRateLimitSignal(lastErr))

		if c.cfg.Policy.Classify(lastErr) == retry.Terminal {
			c.cfg.Logger.Error().
				Str("item_id", item.ID).
				Int("attempt", attempt).
				Str("error", lastErr.Error()).
				Msg("Terminal acquisition failure")
			itemsTotal.WithLabelValues("failed").Inc()
			itemDurationSeconds.Observe(time.Since(start).Seconds())

			return ItemResult{
				ID:       item.ID,
				Success:  false,
				Error:    lastErr.Error(),
				Attempts: attempt,
			}, true
		}

		if attempt >= c.cfg.Policy.MaxAttempts {
			break
		}

		retriesTotal.Inc()
		backoff := c.cfg.Policy.Backoff(attempt - 1)
		c.cfg.Logger.Warn().
			Str("item_id", item.ID).
			Int("worker_id", workerID).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Str("error", lastErr.Error()).
			Msg("Retryable failure, backing off")

		select {
		case <-ctx.Done():
			return ItemResult{}, false
		case <-time.After(backoff):
		}
	}

	// Attempt budget exhausted; the last error is preserved verbatim.
	retryExhaustedTotal.Inc()
	itemsTotal.WithLabelValues("failed").Inc()
	itemDurationSeconds.Observe(time.Since(start).Seconds())
	c.cfg.Logger.Warn().
		Str("item_id", item.ID).
		Int("max_attempts", c.cfg.Policy.MaxAttempts).
		Str("error", lastErr.Error()).
		Msg("Retry attempts exhausted")

	return ItemResult{
		ID:       item.ID,
		Success:  false,
		Error:    lastErr.Error(),
		Attempts: c.cfg.Policy.MaxAttempts,
	}, true
}
