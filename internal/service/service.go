package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"spot-rate-alerts/internal/metrics"
	"spot-rate-alerts/internal/rate"
	"spot-rate-alerts/internal/reader"
	"spot-rate-alerts/internal/tracker"
)

// Summary describes a completed run.
type Summary struct {
	// Processed counts valid records fed to the tracker.
	Processed int
	Rejected  int
	Alerts    int
	Pairs     int
	Elapsed   time.Duration
}

// Observer sees every tracked record together with the decision made for it.
type Observer func(r rate.ConversionRate, d tracker.Decision)

// Options tune a Pipeline.
type Options struct {
	MaxLineBytes int
	Metrics      *metrics.Metrics
	Observer     Observer
}

// Pipeline reads an input file and feeds valid records to the tracker in order.
type Pipeline struct {
	tracker      *tracker.Tracker
	metrics      *metrics.Metrics
	observer     Observer
	maxLineBytes int
	logger       zerolog.Logger
}

// New constructs a Pipeline around an existing tracker.
func New(t *tracker.Tracker, opts Options, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		tracker:      t,
		metrics:      opts.Metrics,
		observer:     opts.Observer,
		maxLineBytes: opts.MaxLineBytes,
		logger:       logger.With().Str("component", "service").Logger(),
	}
}

// Run processes path to the end. Records that fail validation are logged and
// skipped; broken JSON, a missing file, or a sink failure stop the run. The
// summary reflects the work done up to the point of return.
func (p *Pipeline) Run(ctx context.Context, path string) (summary Summary, err error) {
	started := time.Now()
	finish := func() {
		summary.Pairs = len(p.tracker.Pairs())
		summary.Elapsed = time.Since(started)
		p.metrics.SetTrackedPairs(summary.Pairs)
	}
	defer finish()

	src, err := reader.Open(path, p.maxLineBytes)
	if err != nil {
		p.logger.Error().Err(err).Str("input", path).Msg("cannot open input")
		return summary, err
	}
	defer src.Close()

	p.logger.Info().Str("input", path).
		Int("window_size", p.tracker.WindowSize()).
		Float64("threshold", p.tracker.Threshold()).
		Str("ordering", string(p.tracker.Ordering())).
		Msg("processing started")

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		line, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var malformed *reader.MalformedStreamError
			if errors.As(err, &malformed) {
				p.logger.Error().Err(err).Int("line", malformed.Line).Msg("input line is not valid JSON; stopping")
			} else {
				p.logger.Error().Err(err).Msg("failed to read input")
			}
			return summary, err
		}

		record, err := rate.Parse(line.Raw)
		if err != nil {
			summary.Rejected++
			p.metrics.RecordRejected(firstField(err))
			p.logger.Warn().Err(err).Int("line", line.Number).
				RawJSON("payload", line.Raw).
				Msg("invalid record skipped")
			continue
		}

		begin := time.Now()
		decision, err := p.tracker.Process(ctx, record)
		if err != nil {
			p.logger.Error().Err(err).Int("line", line.Number).
				Str("pair", record.CurrencyPair).
				Msg("failed to process record")
			return summary, fmt.Errorf("line %d: %w", line.Number, err)
		}
		p.metrics.RecordProcessed(time.Since(begin))

		summary.Processed++
		if decision.Alerted {
			summary.Alerts++
		}
		if p.observer != nil {
			p.observer(record, decision)
		}
	}

	finish()
	p.logger.Info().
		Int("processed", summary.Processed).
		Int("rejected", summary.Rejected).
		Int("alerts", summary.Alerts).
		Int("pairs", summary.Pairs).
		Dur("elapsed", summary.Elapsed).
		Msg("processing finished")
	return summary, nil
}

func firstField(err error) string {
	var verr *rate.ValidationError
	if errors.As(err, &verr) && len(verr.Problems) > 0 {
		return verr.Problems[0].Field
	}
	return ""
}
