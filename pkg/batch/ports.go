package batch

import "context"

// Acquirer performs one attempt to fetch and materialize an item. It is
// network-bound and potentially slow; implementations must be safe to call
// concurrently from independent workers with no shared mutable state
// between calls. The context carries the per-attempt timeout.
type Acquirer interface {
	Attempt(ctx context.Context, item ItemDescriptor) AttemptOutcome
}

// Reporter consumes the final result set after a batch run. It is called
// exactly once per run and never mutates orchestrator state.
type Reporter interface {
	Summarize(meta Meta, items []ItemDescriptor, results []ItemResult) error
}

// AcquirerFunc adapts a function to the Acquirer interface.
type AcquirerFunc func(ctx context.Context, item ItemDescriptor) AttemptOutcome

// Attempt implements Acquirer.
func (f AcquirerFunc) Attempt(ctx context.Context, item ItemDescriptor) AttemptOutcome {
	return f(ctx, item)
}
