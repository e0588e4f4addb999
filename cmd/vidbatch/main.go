// Command vidbatch downloads a batch of videos described by a JSON manifest,
// with bounded parallelism, adaptive pacing, and crash-safe resume.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidbatch/vidbatch/internal/ytdlp"
	"github.com/vidbatch/vidbatch/pkg/batch"
	"github.com/vidbatch/vidbatch/pkg/logging"
	"github.com/vidbatch/vidbatch/pkg/ratelimit"
	"github.com/vidbatch/vidbatch/pkg/report"
	"github.com/vidbatch/vidbatch/pkg/retry"
	"github.com/vidbatch/vidbatch/pkg/state"
)

// manifest is the input file format: channel metadata plus the items to
// acquire.
type manifest struct {
	Platform    string                 `json:"platform"`
	ChannelName string                 `json:"channel_name"`
	ChannelURL  string                 `json:"channel_url"`
	Items       []batch.ItemDescriptor `json:"items"`
}

func main() {
	var (
		manifestPath = flag.String("manifest", "", "path to the batch manifest JSON (required)")
		outputDir    = flag.String("output", "./downloads", "directory for downloaded artifacts and reports")
		stateDir     = flag.String("state-dir", "", "directory for batch state files (default: <output>/.vidbatch)")
		redisAddr    = flag.String("redis", "", "redis address for batch state instead of local files")
		parallelism  = flag.Int("parallelism", 3, "number of concurrent downloads")
		quality      = flag.String("quality", "", "quality cap, e.g. 1080p (default: best)")
		audioOnly    = flag.Bool("audio-only", false, "extract audio as mp3")
		embedSubs    = flag.Bool("embed-subs", false, "download and embed subtitles")
		cookiesFile  = flag.String("cookies", getEnv("VIDBATCH_COOKIES", ""), "path to a cookies file for authenticated sites")
		cookiesFrom  = flag.String("cookies-from-browser", "", "browser to pull cookies from (chrome, firefox, ...)")
		rateLimit    = flag.Float64("rate-limit", 0, "per-download transfer cap in MB/s (0 = unlimited)")
		fresh        = flag.Bool("fresh", false, "ignore persisted state and start the batch over")
		logLevel     = flag.String("log-level", getEnv("VIDBATCH_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
		pretty       = flag.Bool("pretty", true, "human-readable console output instead of JSON")
	)
	flag.Parse()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(*logLevel),
		Pretty: *pretty,
		Output: os.Stderr,
	})

	if *manifestPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := ytdlp.CheckDependencies(); err != nil {
		logger.Fatal().Err(err).Msg("Dependency check failed")
	}

	m, err := loadManifest(*manifestPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load manifest")
	}
	if len(m.Items) == 0 {
		logger.Fatal().Str("manifest", *manifestPath).Msg("Manifest contains no items")
	}

	// Ctrl-C cancels the batch; completed items stay checkpointed so the
	// next run resumes.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, *redisAddr, *stateDir, *outputDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up state store")
	}

	batchKey := batchKeyFor(m)
	st, resumed, err := loadOrCreateState(ctx, store, batchKey, m, *fresh)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load batch state")
	}
	if resumed {
		logger.Info().
			Str("batch_key", st.BatchKey).
			Int("completed", st.CompletedCount()).
			Int("total", len(m.Items)).
			Msg("Resuming interrupted batch")
	}

	acquirer, err := ytdlp.New(ytdlp.Options{
		OutputDir:          *outputDir,
		Quality:            *quality,
		AudioOnly:          *audioOnly,
		EmbedSubs:          *embedSubs,
		CookiesFile:        *cookiesFile,
		CookiesFromBrowser: *cookiesFrom,
		RateLimitMBps:      *rateLimit,
		Logger:             logging.NewLogger("ytdlp"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up downloader")
	}

	limiter := ratelimit.New(ratelimit.DefaultConfig(), logging.NewLogger("pacing"))

	ctrl, err := batch.NewController(batch.Config{
		Parallelism: *parallelism,
		Acquirer:    acquirer,
		Policy:      retry.DefaultPolicy(),
		Limiter:     limiter,
		Store:       store,
		Logger:      logging.NewLogger("batch"),
		OnProgress: func(done, total int) {
			logger.Info().Int("done", done).Int("total", total).Msg("Progress")
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	results, runErr := ctrl.Run(ctx, st, m.Items)

	if err := writeReports(*outputDir, m, results); err != nil {
		logger.Error().Err(err).Msg("Failed to write reports")
	}

	switch {
	case runErr == nil:
		// Full success removes the state record; a batch with failures
		// keeps it so a rerun can retry the failed items after the
		// operator clears the cause.
		if st.Finished() && st.SuccessCount() == len(st.Sources) {
			if err := store.Delete(context.Background(), st.BatchKey); err != nil {
				logger.Warn().Err(err).Msg("Failed to remove finished batch state")
			}
		}
	case errors.Is(runErr, context.Canceled):
		logger.Warn().
			Int("completed", len(results)).
			Int("total", len(m.Items)).
			Msg("Batch interrupted, progress saved. Rerun to resume")
		os.Exit(130)
	default:
		logger.Error().Err(runErr).Msg("Batch aborted")
		os.Exit(1)
	}
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	for i, item := range m.Items {
		if item.ID == "" || item.URL == "" {
			return nil, fmt.Errorf("manifest item %d is missing id or url", i)
		}
	}
	return &m, nil
}

// buildStore selects Redis when an address is given, local files otherwise.
func buildStore(ctx context.Context, redisAddr, stateDir, outputDir string) (state.Store, error) {
	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", redisAddr, err)
		}
		return state.NewRedisStore(client, 0, logging.NewLogger("state"))
	}

	if stateDir == "" {
		stateDir = filepath.Join(outputDir, ".vidbatch")
	}
	return state.NewFileStore(stateDir, logging.NewLogger("state"))
}

// batchKeyFor derives a stable key so reruns of the same manifest find their
// previous state.
func batchKeyFor(m *manifest) string {
	name := ytdlp.SanitizeFilename(m.ChannelName)
	if name == "" {
		name = "batch"
	}
	return name
}

func loadOrCreateState(ctx context.Context, store state.Store, key string, m *manifest, fresh bool) (*batch.BatchState, bool, error) {
	if fresh {
		if err := store.Delete(ctx, key); err != nil {
			return nil, false, err
		}
	} else {
		st, err := store.Load(ctx, key)
		switch {
		case err == nil:
			return st, st.CompletedCount() > 0, nil
		case !errors.Is(err, state.ErrNotFound):
			return nil, false, err
		}
	}

	sources := make([]string, 0, len(m.Items))
	for _, item := range m.Items {
		sources = append(sources, item.ID)
	}
	st := batch.NewBatchState(batch.Meta{
		Platform:    m.Platform,
		ChannelName: m.ChannelName,
		ChannelURL:  m.ChannelURL,
	}, sources)
	st.BatchKey = key
	return st, false, nil
}

func writeReports(outputDir string, m *manifest, results []batch.ItemResult) error {
	meta := batch.Meta{Platform: m.Platform, ChannelName: m.ChannelName, ChannelURL: m.ChannelURL}

	csvReporter, err := report.NewCSVReporter(outputDir, logging.NewLogger("report"))
	if err != nil {
		return err
	}
	summaryReporter, err := report.NewSummaryReporter(outputDir, logging.NewLogger("report"))
	if err != nil {
		return err
	}

	reporters := report.MultiReporter{summaryReporter, csvReporter}
	return reporters.Summarize(meta, m.Items, results)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
