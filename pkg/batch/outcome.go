package batch

// AttemptOutcome is the result of one acquisition attempt. Success is
// signalled by a nil Err; the retryable/terminal split for failures is the
// retry policy's call, made by the orchestrator. Nothing outside the
// orchestrator and the policy ever inspects an AttemptOutcome.
type AttemptOutcome struct {
	// ArtifactPath is the materialized file for a successful attempt.
	ArtifactPath string

	// Err is the failure, nil on success. Its text is preserved verbatim
	// in the item's final result.
	Err error
}

// Success reports whether the attempt produced an artifact.
func (o AttemptOutcome) Success() bool {
	return o.Err == nil
}

// ItemResult is the final per-item record, created once when the item's
// outcome is terminal (success or exhausted retries) and immutable after.
type ItemResult struct {
	// ID is the item identifier.
	ID string `json:"id"`

	// Success reports whether an artifact was materialized.
	Success bool `json:"success"`

	// ArtifactPath is the materialized file path, empty on failure.
	ArtifactPath string `json:"artifact_path,omitempty"`

	// Error is the final attempt's error text, verbatim, empty on success.
	Error string `json:"error,omitempty"`

	// Attempts is how many acquisition attempts the item consumed.
	Attempts int `json:"attempts"`
}
