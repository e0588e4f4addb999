package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidbatch/vidbatch/pkg/batch"
)

// SummaryReporter logs aggregate statistics for a finished batch and writes
// a failed.log with per-item failure details when anything failed.
type SummaryReporter struct {
	dir    string
	logger zerolog.Logger
}

// NewSummaryReporter creates a summary reporter writing failure logs into dir.
func NewSummaryReporter(dir string, logger zerolog.Logger) (*SummaryReporter, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return &SummaryReporter{dir: dir, logger: logger}, nil
}

// FailedLogPath returns where failure details are written.
func (r *SummaryReporter) FailedLogPath() string {
	return filepath.Join(r.dir, "failed.log")
}

// Summarize implements batch.Reporter.
func (r *SummaryReporter) Summarize(meta batch.Meta, items []batch.ItemDescriptor, results []batch.ItemResult) error {
	byID := make(map[string]batch.ItemDescriptor, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	succeeded := 0
	var failed []batch.ItemResult
	var totalSize int64
	for _, res := range results {
		if res.Success {
			succeeded++
			if res.ArtifactPath != "" {
				if info, err := os.Stat(res.ArtifactPath); err == nil {
					totalSize += info.Size()
				}
			}
			continue
		}
		failed = append(failed, res)
	}

	var totalViews, totalLikes, totalComments int64
	var totalDuration int
	for _, item := range items {
		totalViews += item.ViewCount
		totalLikes += item.LikeCount
		totalComments += item.CommentCount
		totalDuration += item.DurationSec
	}

	ev := r.logger.Info().
		Str("platform", meta.Platform).
		Str("channel", meta.ChannelName).
		Int("total", len(items)).
		Int("succeeded", succeeded).
		Int("failed", len(failed)).
		Str("total_size", fmt.Sprintf("%.2fMB", float64(totalSize)/1024/1024)).
		Int64("total_views", totalViews).
		Int64("total_likes", totalLikes).
		Int64("total_comments", totalComments)
	if len(items) > 0 {
		ev = ev.Int("avg_duration_sec", totalDuration/len(items))
	}
	ev.Msg("Batch summary")

	if len(failed) == 0 {
		return nil
	}
	return r.writeFailedLog(byID, failed)
}

func (r *SummaryReporter) writeFailedLog(items map[string]batch.ItemDescriptor, failed []batch.ItemResult) error {
	path := r.FailedLogPath()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create failure log %s: %w", path, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "Failed downloads - %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(f, "%s\n", "============================================================")
	for _, res := range failed {
		url := res.ID
		if item, ok := items[res.ID]; ok && item.URL != "" {
			url = item.URL
		}
		fmt.Fprintf(f, "URL: %s\nError: %s\nAttempts: %d\n\n", url, res.Error, res.Attempts)
	}

	r.logger.Warn().
		Str("path", path).
		Int("failed", len(failed)).
		Msg("Failure log written")

	return nil
}

// MultiReporter fans a result set out to several reporters in order,
// stopping at the first error.
type MultiReporter []batch.Reporter

// Summarize implements batch.Reporter.
func (m MultiReporter) Summarize(meta batch.Meta, items []batch.ItemDescriptor, results []batch.ItemResult) error {
	for _, r := range m {
		if err := r.Summarize(meta, items, results); err != nil {
			return err
		}
	}
	return nil
}
