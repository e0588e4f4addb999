// Package ytdlp adapts the yt-dlp command line tool to the orchestrator's
// Acquirer port. Each attempt runs one yt-dlp process bounded by the attempt
// context; stderr is surfaced verbatim so failure classification can act on
// the tool's own wording (timeouts, HTTP 429, unsupported formats).
package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidbatch/vidbatch/pkg/batch"
)

// Options configures the yt-dlp invocation shared by all attempts.
type Options struct {
	// OutputDir receives the downloaded artifacts. Required.
	OutputDir string

	// Quality caps the stream height, e.g. "1080p". Empty means best.
	Quality string

	// AudioOnly extracts audio as mp3 instead of downloading video.
	AudioOnly bool

	// EmbedSubs downloads and embeds subtitles when available.
	EmbedSubs bool

	// CookiesFile is a Netscape cookie file for sites requiring login.
	CookiesFile string

	// CookiesFromBrowser pulls cookies from a local browser profile
	// (chrome, firefox, safari, ...). Ignored when CookiesFile is set.
	CookiesFromBrowser string

	// RateLimitMBps caps the transfer rate per process. Zero is unlimited.
	RateLimitMBps float64

	Logger zerolog.Logger
}

// Acquirer runs yt-dlp once per attempt. Safe for concurrent use; every
// attempt is an independent process.
type Acquirer struct {
	opts Options
}

// New validates the options and creates an acquirer.
func New(opts Options) (*Acquirer, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", opts.OutputDir, err)
	}
	return &Acquirer{opts: opts}, nil
}

// CheckDependencies verifies yt-dlp and ffmpeg are on PATH. Call once at
// startup; a missing tool fails every attempt with the same error otherwise.
func CheckDependencies() error {
	if _, err := exec.LookPath("yt-dlp"); err != nil {
		return fmt.Errorf("missing dependency: yt-dlp is not installed or not on PATH")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("missing dependency: ffmpeg is required for format merging and was not found on PATH")
	}
	return nil
}

// Attempt implements batch.Acquirer.
func (a *Acquirer) Attempt(ctx context.Context, item batch.ItemDescriptor) batch.AttemptOutcome {
	if item.URL == "" {
		return batch.AttemptOutcome{Err: fmt.Errorf("item %s has no URL", item.ID)}
	}

	args, artifactPath := a.buildArgs(item)

	a.opts.Logger.Debug().
		Str("item_id", item.ID).
		Str("url", item.URL).
		Msg("Starting yt-dlp")

	start := time.Now()
	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	var stderr bytes.Buffer
	cmd.Stdout = nil
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return batch.AttemptOutcome{Err: ctx.Err()}
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return batch.AttemptOutcome{Err: fmt.Errorf("yt-dlp failed: %s", lastLine(detail))}
	}

	if _, err := os.Stat(artifactPath); err != nil {
		// yt-dlp exited 0 but the expected artifact is absent, usually a
		// title mismatch between metadata fetch and download.
		found, ferr := a.findArtifact(item)
		if ferr != nil {
			return batch.AttemptOutcome{Err: fmt.Errorf("download finished but artifact not found: %v", ferr)}
		}
		artifactPath = found
	}

	a.opts.Logger.Info().
		Str("item_id", item.ID).
		Str("artifact", artifactPath).
		Dur("duration", time.Since(start)).
		Msg("Download complete")

	return batch.AttemptOutcome{ArtifactPath: artifactPath}
}

// buildArgs assembles the yt-dlp argument list and the expected artifact
// path for one item.
func (a *Acquirer) buildArgs(item batch.ItemDescriptor) ([]string, string) {
	ext := "mp4"
	name := SanitizeFilename(item.Title)
	if name == "" {
		name = SanitizeFilename(item.ID)
	}

	args := []string{
		"--no-playlist",
		"--newline",
		"-f", formatString(a.opts.Quality),
	}

	if a.opts.AudioOnly {
		ext = "mp3"
		args = append(args, "-x", "--audio-format", "mp3")
	} else {
		args = append(args, "--merge-output-format", "mp4")
	}

	if a.opts.EmbedSubs {
		args = append(args, "--write-subs", "--embed-subs")
	}

	if a.opts.CookiesFile != "" {
		args = append(args, "--cookies", a.opts.CookiesFile)
	} else if a.opts.CookiesFromBrowser != "" {
		args = append(args, "--cookies-from-browser", a.opts.CookiesFromBrowser)
	}

	if a.opts.RateLimitMBps > 0 {
		args = append(args, "--limit-rate", fmt.Sprintf("%gM", a.opts.RateLimitMBps))
	}

	artifactPath := filepath.Join(a.opts.OutputDir, name+"."+ext)
	outputTemplate := filepath.Join(a.opts.OutputDir, name+".%(ext)s")
	args = append(args, "-o", outputTemplate, item.URL)

	return args, artifactPath
}

// findArtifact scans the output directory for a file tagged with the item's
// identifier, the fallback when the title-derived path misses.
func (a *Acquirer) findArtifact(item batch.ItemDescriptor) (string, error) {
	entries, err := os.ReadDir(a.opts.OutputDir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.Contains(e.Name(), item.ID) {
			return filepath.Join(a.opts.OutputDir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no file matching item %s in %s", item.ID, a.opts.OutputDir)
}

// formatString maps a quality label to a yt-dlp format selector.
func formatString(quality string) string {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "", "best":
		return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	case "1080p", "1080":
		return "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[height<=1080][ext=mp4]/best[height<=1080]"
	case "720p", "720":
		return "bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/best[height<=720][ext=mp4]/best[height<=720]"
	case "480p", "480":
		return "bestvideo[height<=480][ext=mp4]+bestaudio[ext=m4a]/best[height<=480][ext=mp4]/best[height<=480]"
	default:
		return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	}
}

// lastLine keeps error text short: yt-dlp's final stderr line carries the
// actual failure reason.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return s
}
