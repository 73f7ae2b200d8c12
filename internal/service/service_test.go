package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"spot-rate-alerts/internal/alerting"
	"spot-rate-alerts/internal/metrics"
	"spot-rate-alerts/internal/rate"
	"spot-rate-alerts/internal/reader"
	"spot-rate-alerts/internal/storage"
	"spot-rate-alerts/internal/tracker"
	"spot-rate-alerts/internal/window"
)

const sampleInput = `{"timestamp": 1554933784.023, "currencyPair": "CNYAUD", "rate": 0.39281}
{"timestamp": 1554933784.023, "currencyPair": "AUDUSD", "rate": 0.71}
{"timestamp": 1554933785.023, "currencyPair": "CNYAUD"}
{"timestamp": "yesterday", "currencyPair": "CNYAUD", "rate": 0.4}

{"timestamp": 1554933794.023, "currencyPair": "CNYAUD", "rate": 0.5}
{"timestamp": 1554933795.023, "currencyPair": "AUDUSD", "rate": 0.7101}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, scanner.Err())
	return out
}

func newPipeline(t *testing.T, emitter tracker.Emitter, opts Options) (*Pipeline, *tracker.Tracker) {
	t.Helper()
	tr, err := tracker.New(tracker.Options{WindowSize: 300, Threshold: 0.1, Ordering: window.Timestamp}, emitter, zerolog.Nop())
	require.NoError(t, err)
	return New(tr, opts, zerolog.Nop()), tr
}

func TestPipelineRunWritesAlerts(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output", "output.jsonl")
	w, err := alerting.OpenWriter(out, alerting.WriterOptions{}, zerolog.Nop())
	require.NoError(t, err)

	m := metrics.New("test")
	router := NewRouter(RouterOptions{Primary: w, Metrics: m, Threshold: 0.1, WindowSize: 300}, zerolog.Nop())
	p, tr := newPipeline(t, router, Options{Metrics: m})

	summary, err := p.Run(context.Background(), writeFile(t, "input.jsonl", sampleInput))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.Equal(t, 4, summary.Processed)
	require.Equal(t, 2, summary.Rejected)
	require.Equal(t, 1, summary.Alerts)
	require.Equal(t, 2, summary.Pairs)
	require.Positive(t, summary.Elapsed)

	lines := readLines(t, out)
	require.Len(t, lines, 1)
	require.Equal(t, map[string]any{
		"timestamp":    1554933794.023,
		"currencyPair": "CNYAUD",
		"alert":        "spotChange",
	}, lines[0])

	size, err := tr.Size("CNYAUD")
	require.NoError(t, err)
	require.Equal(t, 2, size)

	require.Equal(t, 4.0, testutil.ToFloat64(m.RecordsProcessed))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RecordsRejected.WithLabelValues("rate")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RecordsRejected.WithLabelValues("timestamp")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AlertsEmitted.WithLabelValues("CNYAUD")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.TrackedPairs))
}

func TestPipelineRunVerbose(t *testing.T) {
	out := filepath.Join(t.TempDir(), "verbose.jsonl")
	w, err := alerting.OpenWriter(out, alerting.WriterOptions{Verbose: true}, zerolog.Nop())
	require.NoError(t, err)

	p, _ := newPipeline(t, w, Options{})
	_, err = p.Run(context.Background(), writeFile(t, "input.jsonl", sampleInput))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	lines := readLines(t, out)
	require.Len(t, lines, 1)
	require.Equal(t, 0.5, lines[0]["rate"])
	require.InDelta(t, 0.39281, lines[0]["average_rate"], 1e-12)
	require.InDelta(t, 0.2729, lines[0]["pct_change"], 1e-4)
}

func TestPipelineMissingInput(t *testing.T) {
	p, _ := newPipeline(t, alerting.Discard, Options{})
	_, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "absent.jsonl"))
	require.ErrorIs(t, err, reader.ErrSourceNotFound)
}

func TestPipelineMalformedLineIsFatal(t *testing.T) {
	input := `{"timestamp": 1, "currencyPair": "CNYAUD", "rate": 0.39}
{"timestamp": 2, "currencyPair": "CNYAUD", "rate":
{"timestamp": 3, "currencyPair": "CNYAUD", "rate": 0.39}
`
	p, tr := newPipeline(t, alerting.Discard, Options{})
	summary, err := p.Run(context.Background(), writeFile(t, "input.jsonl", input))

	var malformed *reader.MalformedStreamError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, 2, malformed.Line)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Pairs)

	size, err := tr.Size("CNYAUD")
	require.NoError(t, err)
	require.Equal(t, 1, size)
}

func TestPipelineSinkNotReady(t *testing.T) {
	p, tr := newPipeline(t, &alerting.Writer{}, Options{})
	_, err := p.Run(context.Background(), writeFile(t, "input.jsonl", sampleInput))
	require.ErrorIs(t, err, alerting.ErrSinkNotReady)
	require.Empty(t, tr.Pairs())
}

func TestPipelineObserverAndCancel(t *testing.T) {
	var seen []rate.ConversionRate
	p, _ := newPipeline(t, alerting.Discard, Options{Observer: func(r rate.ConversionRate, d tracker.Decision) {
		seen = append(seen, r)
	}})
	_, err := p.Run(context.Background(), writeFile(t, "input.jsonl", sampleInput))
	require.NoError(t, err)
	require.Len(t, seen, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, _ = newPipeline(t, alerting.Discard, Options{})
	_, err = p.Run(ctx, writeFile(t, "input.jsonl", sampleInput))
	require.ErrorIs(t, err, context.Canceled)
}

type fakeStore struct {
	mu      sync.Mutex
	records []storage.AlertRecord
	err     error
}

func (s *fakeStore) InsertAlert(_ context.Context, a storage.AlertRecord) (storage.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return storage.AlertRecord{}, s.err
	}
	a.ID = int64(len(s.records) + 1)
	s.records = append(s.records, a)
	return a, nil
}

func (s *fakeStore) ListRecentAlerts(context.Context, int) ([]storage.AlertRecord, error) {
	return s.records, nil
}

func (s *fakeStore) CountAlerts(context.Context) (int64, error) {
	return int64(len(s.records)), nil
}

func (s *fakeStore) DeleteAlertsBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeNotifier struct {
	notes []alerting.Notification
	err   error
}

func (n *fakeNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return n.err
}

type memorySink struct {
	alerts []alerting.Alert
	err    error
}

func (s *memorySink) Emit(_ context.Context, a alerting.Alert) error {
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, a)
	return nil
}

func sampleAlert(pair string) alerting.Alert {
	return alerting.Alert{
		Rate:        rate.ConversionRate{Timestamp: 1554933794.023, CurrencyPair: pair, Rate: 0.5},
		AverageRate: 0.39281,
		PctChange:   (0.5 - 0.39281) / 0.39281,
	}
}

func TestRouterFansOut(t *testing.T) {
	sink := &memorySink{}
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	cooldown, err := alerting.NewCooldown(time.Hour, 16)
	require.NoError(t, err)
	defer cooldown.Close()

	runID := uuid.New()
	router := NewRouter(RouterOptions{
		Primary:    sink,
		Store:      store,
		Notifier:   notifier,
		Cooldown:   cooldown,
		RunID:      runID,
		Threshold:  0.1,
		WindowSize: 300,
	}, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, router.Emit(ctx, sampleAlert("CNYAUD")))
	require.NoError(t, router.Emit(ctx, sampleAlert("CNYAUD")))

	require.Len(t, sink.alerts, 2)
	require.Len(t, store.records, 2)
	require.Equal(t, runID, store.records[0].RunID)
	require.Equal(t, "27.29", store.records[0].ChangePct.StringFixed(2))
	require.Equal(t, 300, store.records[0].WindowSize)
	// The second notification falls inside the cooldown window.
	require.Len(t, notifier.notes, 1)
}

func TestRouterSecondaryFailuresAreNotFatal(t *testing.T) {
	sink := &memorySink{}
	m := metrics.New("test")
	router := NewRouter(RouterOptions{
		Primary:  sink,
		Store:    &fakeStore{err: errors.New("connection refused")},
		Notifier: &fakeNotifier{err: errors.New("telegram down")},
		Metrics:  m,
	}, zerolog.Nop())

	require.NoError(t, router.Emit(context.Background(), sampleAlert("AUDUSD")))
	require.Len(t, sink.alerts, 1)
	require.Equal(t, 1.0, testutil.ToFloat64(m.AlertDeliveries.WithLabelValues("postgres", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AlertDeliveries.WithLabelValues("telegram", "error")))
}

func TestRouterPrimaryFailureStopsFanOut(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	router := NewRouter(RouterOptions{
		Primary:  &memorySink{err: alerting.ErrSinkClosed},
		Store:    store,
		Notifier: notifier,
	}, zerolog.Nop())

	err := router.Emit(context.Background(), sampleAlert("AUDUSD"))
	require.ErrorIs(t, err, alerting.ErrSinkClosed)
	require.Empty(t, store.records)
	require.Empty(t, notifier.notes)
}

func TestRouterNotReady(t *testing.T) {
	router := NewRouter(RouterOptions{}, zerolog.Nop())
	require.ErrorIs(t, router.Ready(), alerting.ErrSinkNotReady)

	router = NewRouter(RouterOptions{Primary: &alerting.Writer{}}, zerolog.Nop())
	require.ErrorIs(t, router.Ready(), alerting.ErrSinkNotReady)
	require.True(t, strings.Contains(router.Emit(context.Background(), sampleAlert("X")).Error(), "not initialized"))
}
