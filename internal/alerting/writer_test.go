package alerting

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"spot-rate-alerts/internal/rate"
)

func sampleAlert() Alert {
	return Alert{
		Rate:        rate.ConversionRate{Timestamp: 1554933794.023, CurrencyPair: "CNYAUD", Rate: 0.5},
		AverageRate: 0.39281,
		PctChange:   (0.5 - 0.39281) / 0.39281,
	}
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestWriter_TerseLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "output.jsonl")
	w, err := OpenWriter(path, WriterOptions{}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, path, w.Path())

	require.NoError(t, w.Emit(context.Background(), sampleAlert()))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"timestamp":1554933794.023,"currencyPair":"CNYAUD","alert":"spotChange"}`+"\n", string(raw))
}

func TestWriter_VerboseLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.jsonl")
	w, err := OpenWriter(path, WriterOptions{Verbose: true, Sync: true}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, w.Emit(context.Background(), sampleAlert()))
	require.NoError(t, w.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	require.ElementsMatch(t,
		[]string{"timestamp", "currencyPair", "rate", "average_rate", "pct_change", "alert"},
		keys(lines[0]))
	require.Equal(t, "spotChange", lines[0]["alert"])
	require.InDelta(t, 0.39281, lines[0]["average_rate"], 1e-12)
	require.InDelta(t, 0.2729, lines[0]["pct_change"], 1e-4)
}

func TestWriter_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.jsonl")

	for i := 0; i < 2; i++ {
		w, err := OpenWriter(path, WriterOptions{}, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, w.Emit(context.Background(), sampleAlert()))
		require.NoError(t, w.Close())
	}

	require.Len(t, readLines(t, path), 2)
}

func TestWriter_NotReady(t *testing.T) {
	var w *Writer
	require.ErrorIs(t, w.Emit(context.Background(), sampleAlert()), ErrSinkNotReady)
	require.ErrorIs(t, w.Ready(), ErrSinkNotReady)

	var zero Writer
	require.ErrorIs(t, zero.Emit(context.Background(), sampleAlert()), ErrSinkNotReady)
	require.ErrorIs(t, zero.Close(), ErrSinkNotReady)
}

func TestWriter_EmitAfterClose(t *testing.T) {
	w, err := OpenWriter(filepath.Join(t.TempDir(), "output.jsonl"), WriterOptions{}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Ready())
	require.NoError(t, w.Close())

	require.ErrorIs(t, w.Emit(context.Background(), sampleAlert()), ErrSinkClosed)
	require.ErrorIs(t, w.Ready(), ErrSinkClosed)
	require.NoError(t, w.Close())
}

func TestWriter_RemovedBeforeClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.jsonl")
	w, err := OpenWriter(path, WriterOptions{}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Emit(context.Background(), sampleAlert()))

	require.NoError(t, os.Remove(path))

	err = w.Close()
	require.ErrorIs(t, err, ErrSinkRemoved)
	require.Contains(t, err.Error(), "output path: "+path)
}

func TestWriter_ReplacedBeforeClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.jsonl")
	w, err := OpenWriter(path, WriterOptions{}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	require.ErrorIs(t, w.Close(), ErrSinkRemoved)
}

func TestOpenWriter_RequiresPath(t *testing.T) {
	_, err := OpenWriter("", WriterOptions{}, zerolog.Nop())
	require.Error(t, err)
}
