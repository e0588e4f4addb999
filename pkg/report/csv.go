// Package report renders batch results for humans: a per-item CSV export,
// a structured end-of-run summary, and a failure log.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidbatch/vidbatch/pkg/batch"
)

// csvHeader is the column layout of the export. Stable so downstream
// spreadsheets and scripts can rely on it.
var csvHeader = []string{
	"platform", "item_id", "title", "url", "duration_sec", "upload_date",
	"view_count", "like_count", "comment_count", "thumbnail",
	"export_date", "file_size", "status", "attempts",
}

// CSVReporter writes one row per batch item with its metadata and terminal
// status. Items with no result (interrupted batch) are exported as pending.
type CSVReporter struct {
	dir    string
	logger zerolog.Logger
}

// NewCSVReporter creates a reporter writing into dir.
func NewCSVReporter(dir string, logger zerolog.Logger) (*CSVReporter, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return &CSVReporter{dir: dir, logger: logger}, nil
}

// Path returns the export file path for a channel name.
func (r *CSVReporter) Path(channelName string) string {
	if channelName == "" {
		channelName = "batch"
	}
	return filepath.Join(r.dir, channelName+"_videos.csv")
}

// Summarize implements batch.Reporter.
func (r *CSVReporter) Summarize(meta batch.Meta, items []batch.ItemDescriptor, results []batch.ItemResult) error {
	path := r.Path(meta.ChannelName)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv export %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	byID := make(map[string]batch.ItemResult, len(results))
	for _, res := range results {
		byID[res.ID] = res
	}

	exportDate := time.Now().Format("2006-01-02")
	for _, item := range items {
		status := "pending"
		attempts := 0
		fileSize := "N/A"

		if res, ok := byID[item.ID]; ok {
			attempts = res.Attempts
			if res.Success {
				status = "success"
				fileSize = artifactSize(res.ArtifactPath)
			} else {
				status = "failed"
			}
		}

		row := []string{
			meta.Platform,
			item.ID,
			item.Title,
			item.URL,
			strconv.Itoa(item.DurationSec),
			item.UploadDate,
			strconv.FormatInt(item.ViewCount, 10),
			strconv.FormatInt(item.LikeCount, 10),
			strconv.FormatInt(item.CommentCount, 10),
			item.Thumbnail,
			exportDate,
			fileSize,
			status,
			strconv.Itoa(attempts),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row for %s: %w", item.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv export %s: %w", path, err)
	}

	r.logger.Info().
		Str("path", path).
		Int("rows", len(items)).
		Msg("CSV export written")

	return nil
}

// artifactSize reports the artifact size as "12.34MB", or "N/A" when the
// file is gone.
func artifactSize(path string) string {
	if path == "" {
		return "N/A"
	}
	info, err := os.Stat(path)
	if err != nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2fMB", float64(info.Size())/1024/1024)
}
