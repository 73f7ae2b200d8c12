// Package tracker maintains per-pair moving averages of spot rates and decides,
// for each new observation, whether it deviates enough to raise an alert.
//
// Processing a record is atomic per pair: the average is read, the alert
// decision is made and emitted, and only then is the record admitted to the
// pair's window. A record therefore never influences its own decision.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spot-rate-alerts/internal/alerting"
	"spot-rate-alerts/internal/rate"
	"spot-rate-alerts/internal/window"
)

// Emitter receives alert decisions.
type Emitter interface {
	Emit(ctx context.Context, a alerting.Alert) error
}

// readiness is implemented by emitters that can be used before they are opened.
type readiness interface {
	Ready() error
}

// Options configure a Tracker.
type Options struct {
	WindowSize int
	Threshold  float64
	Ordering   window.Ordering
}

// Decision describes what Process did with a record.
type Decision struct {
	// Seeded is set on the first observation of a pair; no alert is possible then.
	Seeded        bool
	// Degenerate is set when the average before admission was zero and the
	// alert check was skipped.
	Degenerate    bool
	Alerted       bool
	AverageBefore float64
	PctChange     float64
}

// Tracker is the moving-average engine. Construct one per run and pass it to
// its collaborators; it is safe for concurrent use across pairs.
type Tracker struct {
	store     *window.Store
	threshold float64
	emitter   Emitter
	logger    zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds a Tracker that reports alerts to emitter.
func New(opts Options, emitter Emitter, logger zerolog.Logger) (*Tracker, error) {
	if opts.Threshold < 0 {
		return nil, fmt.Errorf("threshold cannot be negative, got %v", opts.Threshold)
	}
	store, err := window.NewStore(opts.WindowSize, opts.Ordering)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		store:     store,
		threshold: opts.Threshold,
		emitter:   emitter,
		logger:    logger.With().Str("component", "tracker").Logger(),
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

// Threshold returns the fractional change that triggers an alert.
func (t *Tracker) Threshold() float64 { return t.threshold }

// WindowSize returns the per-pair sample bound.
func (t *Tracker) WindowSize() int { return t.store.Capacity() }

// Ordering returns the eviction policy in use.
func (t *Tracker) Ordering() window.Ordering { return t.store.Ordering() }

// Process runs the decide, emit, admit sequence for one record.
//
// If the emitter is missing or not ready, Process fails with
// alerting.ErrSinkNotReady before touching any state. If emission fails the
// record is still admitted and the error is returned.
func (t *Tracker) Process(ctx context.Context, r rate.ConversionRate) (Decision, error) {
	if err := t.sinkReady(); err != nil {
		return Decision{}, err
	}

	mu := t.lockFor(r.CurrencyPair)
	mu.Lock()
	defer mu.Unlock()

	entry := window.Entry{Timestamp: r.Timestamp, Rate: r.Rate}

	if !t.store.Known(r.CurrencyPair) {
		if err := t.store.Seed(r.CurrencyPair, entry); err != nil {
			return Decision{}, err
		}
		t.logger.Debug().Str("pair", r.CurrencyPair).Float64("rate", r.Rate).Msg("new currency pair seeded")
		return Decision{Seeded: true, AverageBefore: r.Rate}, nil
	}

	avg, err := t.store.Average(r.CurrencyPair)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{AverageBefore: avg}

	var emitErr error
	if avg == 0 {
		d.Degenerate = true
		t.logger.Warn().Str("pair", r.CurrencyPair).Float64("rate", r.Rate).
			Msg("moving average is zero; skipping alert check")
	} else {
		d.PctChange = (r.Rate - avg) / avg
		if d.PctChange >= t.threshold {
			d.Alerted = true
			emitErr = t.emit(ctx, r, avg, d.PctChange)
		}
	}

	if _, _, err := t.store.Admit(r.CurrencyPair, entry); err != nil {
		return d, errors.Join(emitErr, err)
	}
	return d, emitErr
}

func (t *Tracker) emit(ctx context.Context, r rate.ConversionRate, avg, pct float64) error {
	alert := alerting.Alert{Rate: r, AverageRate: avg, PctChange: pct}
	if err := t.emitter.Emit(ctx, alert); err != nil {
		t.logger.Error().Err(err).Str("pair", r.CurrencyPair).Msg("failed to emit alert")
		return fmt.Errorf("emit alert for %s: %w", r.CurrencyPair, err)
	}

	t.logger.Info().
		Str("pair", r.CurrencyPair).
		Str("average_rate", decimal.NewFromFloat(avg).StringFixed(6)).
		Str("spot_rate", decimal.NewFromFloat(r.Rate).StringFixed(6)).
		Str("pct_change", decimal.NewFromFloat(pct*100).StringFixed(2)+"%").
		Str("threshold", decimal.NewFromFloat(t.threshold).String()).
		Msg("significant rate change recorded")
	return nil
}

func (t *Tracker) sinkReady() error {
	if t.emitter == nil {
		return alerting.ErrSinkNotReady
	}
	if r, ok := t.emitter.(readiness); ok {
		return r.Ready()
	}
	return nil
}

func (t *Tracker) lockFor(pair string) *sync.Mutex {
	t.locksMu.Lock()
	defer t.locksMu.Unlock()

	mu, ok := t.locks[pair]
	if !ok {
		mu = &sync.Mutex{}
		t.locks[pair] = mu
	}
	return mu
}

// Average returns the pair's current moving average, or window.ErrUnknownPair.
func (t *Tracker) Average(pair string) (float64, error) {
	return t.store.Average(pair)
}

// Size returns how many samples the pair's window holds, or window.ErrUnknownPair.
func (t *Tracker) Size(pair string) (int, error) {
	return t.store.Size(pair)
}

// Snapshot returns the pair's samples in eviction order, or window.ErrUnknownPair.
func (t *Tracker) Snapshot(pair string) ([]window.Entry, error) {
	return t.store.Entries(pair)
}

// Pairs lists every pair observed so far, sorted.
func (t *Tracker) Pairs() []string {
	return t.store.Pairs()
}

// Known reports whether the pair has been observed.
func (t *Tracker) Known(pair string) bool {
	return t.store.Known(pair)
}
