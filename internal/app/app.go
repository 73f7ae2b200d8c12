package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spot-rate-alerts/internal/alerting"
	"spot-rate-alerts/internal/config"
	"spot-rate-alerts/internal/metrics"
	"spot-rate-alerts/internal/scheduler"
	"spot-rate-alerts/internal/service"
	"spot-rate-alerts/internal/storage"
	"spot-rate-alerts/internal/tracker"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	RunID  uuid.UUID
	// Out receives human-readable command output.
	Out io.Writer
}

// NewApp constructs a new application handle with a fresh run ID.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	runID := uuid.New()
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Str("run_id", runID.String()).Logger(),
		RunID:  runID,
		Out:    os.Stdout,
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) newTracker(emitter tracker.Emitter) (*tracker.Tracker, error) {
	return tracker.New(tracker.Options{
		WindowSize: a.Config.Tracker.WindowSize,
		Threshold:  a.Config.Tracker.Threshold,
		Ordering:   a.Config.Ordering(),
	}, emitter, a.Logger)
}

// newRouter assembles the alert fan-out. The returned cleanup releases
// whatever secondary resources were opened.
func (a *App) newRouter(ctx context.Context, primary tracker.Emitter, m *metrics.Metrics) (*service.Router, func(), error) {
	var (
		alertStore storage.AlertStore
		cleanups   []func()
	)

	store, closeStore, err := a.openStore(ctx)
	switch {
	case err != nil:
		a.Logger.Error().Err(err).Msg("database unavailable; alert persistence disabled")
	case store == nil:
		a.Logger.Debug().Msg("database.dsn not configured; persistence disabled")
	default:
		alertStore = store
		cleanups = append(cleanups, closeStore)
	}

	notifier := a.newNotifier()
	var cooldown *alerting.Cooldown
	if notifier != nil {
		cooldown, err = alerting.NewCooldown(a.Config.Alerting.Cooldown, 0)
		if err != nil {
			for _, fn := range cleanups {
				fn()
			}
			return nil, nil, err
		}
		cleanups = append(cleanups, cooldown.Close)
	}

	router := service.NewRouter(service.RouterOptions{
		Primary:    primary,
		Store:      alertStore,
		Notifier:   notifier,
		Cooldown:   cooldown,
		Metrics:    m,
		RunID:      a.RunID,
		Threshold:  a.Config.Tracker.Threshold,
		WindowSize: a.Config.Tracker.WindowSize,
	}, a.Logger)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	return router, cleanup, nil
}

// RunOptions configure a processing run.
type RunOptions struct {
	Input string
}

// Run processes one input file, writing alerts to the configured output.
func (a *App) Run(ctx context.Context, opts RunOptions) (summary service.Summary, err error) {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	writer, err := alerting.OpenWriter(a.Config.Output.Path, alerting.WriterOptions{
		Verbose: a.Config.Output.Verbose,
		Sync:    a.Config.Output.Sync,
	}, a.Logger)
	if err != nil {
		return summary, err
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	m := metrics.New(a.Config.Metrics.Namespace)
	router, cleanup, err := a.newRouter(ctx, writer, m)
	if err != nil {
		return summary, err
	}
	defer cleanup()

	t, err := a.newTracker(router)
	if err != nil {
		return summary, err
	}

	pipeline := service.New(t, service.Options{
		MaxLineBytes: a.Config.Input.MaxLineBytes,
		Metrics:      m,
	}, a.Logger)

	stopFlusher, err := a.startMetricsFlusher(ctx, m)
	if err != nil {
		return summary, err
	}

	summary, err = pipeline.Run(ctx, opts.Input)
	if err != nil && errors.Is(err, context.Canceled) {
		a.Logger.Warn().Int("processed", summary.Processed).Msg("run interrupted")
	}
	if err == nil {
		a.Logger.Info().Str("output", writer.Path()).Int("alerts", summary.Alerts).Msg("alerts written")
	}

	m.MarkRunComplete(time.Now())
	if stopFlusher != nil {
		stopFlusher()
	} else {
		a.flushMetrics(m)
	}
	return summary, err
}

// startMetricsFlusher rewrites the metrics textfile on a schedule while the
// run is in progress. The returned stop function blocks until the flusher has
// written the textfile one last time and exited. It is nil when periodic
// flushing is disabled.
func (a *App) startMetricsFlusher(ctx context.Context, m *metrics.Metrics) (func(), error) {
	interval := a.Config.Metrics.FlushInterval
	if a.Config.Metrics.Textfile == "" || interval <= 0 {
		return nil, nil
	}

	sched, err := scheduler.New(scheduler.Options{Interval: interval, FinalTick: true}, a.Logger)
	if err != nil {
		return nil, err
	}

	// Only stop ends the flusher, so its final write sees the completed run.
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx, func(context.Context, time.Time) error {
			return m.WriteTextfile(a.Config.Metrics.Textfile)
		})
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func (a *App) flushMetrics(m *metrics.Metrics) {
	path := a.Config.Metrics.Textfile
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		a.Logger.Error().Err(err).Str("path", path).Msg("failed to write metrics textfile")
	}
}

// ExportOptions hold parameters for exporting a pair's moving average history.
type ExportOptions struct {
	Input     string
	Pair      string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// PruneOptions configure the prune command.
type PruneOptions struct {
	OlderThan time.Duration
}
