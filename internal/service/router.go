package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spot-rate-alerts/internal/alerting"
	"spot-rate-alerts/internal/metrics"
	"spot-rate-alerts/internal/storage"
	"spot-rate-alerts/internal/tracker"
)

// RouterOptions wire the secondary alert channels. Every field except Primary is optional.
type RouterOptions struct {
	Primary    tracker.Emitter
	Store      storage.AlertStore
	Notifier   alerting.Notifier
	Cooldown   *alerting.Cooldown
	Metrics    *metrics.Metrics
	RunID      uuid.UUID
	Threshold  float64
	WindowSize int
}

// Router fans an alert out: the primary sink must accept it, the audit store
// and the notifier are best effort.
type Router struct {
	primary    tracker.Emitter
	store      storage.AlertStore
	notifier   alerting.Notifier
	cooldown   *alerting.Cooldown
	metrics    *metrics.Metrics
	runID      uuid.UUID
	threshold  float64
	windowSize int
	logger     zerolog.Logger
}

// NewRouter builds a Router.
func NewRouter(opts RouterOptions, logger zerolog.Logger) *Router {
	return &Router{
		primary:    opts.Primary,
		store:      opts.Store,
		notifier:   opts.Notifier,
		cooldown:   opts.Cooldown,
		metrics:    opts.Metrics,
		runID:      opts.RunID,
		threshold:  opts.Threshold,
		windowSize: opts.WindowSize,
		logger:     logger.With().Str("component", "alert_router").Logger(),
	}
}

// Ready reports whether the primary sink accepts alerts.
func (r *Router) Ready() error {
	if r == nil || r.primary == nil {
		return alerting.ErrSinkNotReady
	}
	if rd, ok := r.primary.(interface{ Ready() error }); ok {
		return rd.Ready()
	}
	return nil
}

// Emit writes the alert to the primary sink, then forwards it to the optional channels.
func (r *Router) Emit(ctx context.Context, a alerting.Alert) error {
	if err := r.Ready(); err != nil {
		return err
	}
	if err := r.primary.Emit(ctx, a); err != nil {
		return err
	}
	r.metrics.RecordAlert(a.Rate.CurrencyPair)

	note := alerting.NewNotification(a, r.threshold, r.windowSize)

	if r.store != nil {
		_, err := r.store.InsertAlert(ctx, storage.AlertRecord{
			RunID:        r.runID,
			Pair:         note.Pair,
			ObservedAt:   note.ObservedAt,
			SpotRate:     note.SpotRate,
			AverageRate:  note.AverageRate,
			ChangePct:    note.ChangePct,
			ThresholdPct: note.ThresholdPct,
			WindowSize:   note.WindowSize,
		})
		r.metrics.RecordDelivery("postgres", err)
		if err != nil {
			r.logger.Error().Err(err).Str("pair", note.Pair).Msg("failed to persist alert record")
		}
	}

	if r.notifier != nil {
		if !r.cooldown.Allow(note.Pair) {
			r.logger.Debug().Str("pair", note.Pair).Msg("notification suppressed by cooldown")
			return nil
		}
		err := r.notifier.Notify(ctx, note)
		r.metrics.RecordDelivery("telegram", err)
		if err != nil {
			r.logger.Error().Err(fmt.Errorf("notify: %w", err)).Str("pair", note.Pair).Msg("failed to dispatch alert")
		}
	}
	return nil
}

var _ tracker.Emitter = (*Router)(nil)
