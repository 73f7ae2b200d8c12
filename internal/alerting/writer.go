package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrSinkNotReady is returned when writing through a writer that was never opened.
	ErrSinkNotReady = errors.New("alert writer not initialized")
	// ErrSinkClosed is returned when writing after Close.
	ErrSinkClosed = errors.New("alert writer closed")
	// ErrSinkRemoved is returned by Close when the output file vanished while open.
	ErrSinkRemoved = errors.New("output file has been removed before closing")
)

// WriterOptions tune the JSON-lines alert writer.
type WriterOptions struct {
	// Verbose adds rate, average_rate and pct_change to each line.
	Verbose bool
	// Sync fsyncs the file after every line.
	Sync bool
}

// Writer appends alerts as JSON lines to a file. Safe for concurrent use.
// The zero value is not ready; use OpenWriter.
type Writer struct {
	mu     sync.Mutex
	path   string
	opts   WriterOptions
	file   *os.File
	info   os.FileInfo
	closed bool
	logger zerolog.Logger
}

type terseLine struct {
	Timestamp    float64 `json:"timestamp"`
	CurrencyPair string  `json:"currencyPair"`
	Alert        string  `json:"alert"`
}

type verboseLine struct {
	Timestamp    float64 `json:"timestamp"`
	CurrencyPair string  `json:"currencyPair"`
	Rate         float64 `json:"rate"`
	AverageRate  float64 `json:"average_rate"`
	PctChange    float64 `json:"pct_change"`
	Alert        string  `json:"alert"`
}

// OpenWriter opens path for appending, creating it and its parent directories when needed.
func OpenWriter(path string, opts WriterOptions, logger zerolog.Logger) (*Writer, error) {
	if path == "" {
		return nil, errors.New("alert output path is required")
	}
	logger = logger.With().Str("component", "alert_writer").Str("path", path).Logger()

	if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logger.Info().Msg("output file does not exist; creating it")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open alert output: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat alert output: %w", err)
	}

	logger.Info().Bool("verbose", opts.Verbose).Msg("alert writer opened")
	return &Writer{path: path, opts: opts, file: file, info: info, logger: logger}, nil
}

// Path returns the output file location.
func (w *Writer) Path() string {
	if w == nil {
		return ""
	}
	return w.path
}

// Ready reports whether Emit would be accepted.
func (w *Writer) Ready() error {
	if w == nil {
		return ErrSinkNotReady
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readyLocked()
}

func (w *Writer) readyLocked() error {
	if w.closed {
		return fmt.Errorf("%w (output path: %s)", ErrSinkClosed, w.path)
	}
	if w.file == nil {
		return ErrSinkNotReady
	}
	return nil
}

// Emit appends one alert line. The line is handed to the OS before returning.
func (w *Writer) Emit(_ context.Context, a Alert) error {
	if w == nil {
		return ErrSinkNotReady
	}

	payload, err := json.Marshal(w.line(a))
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	payload = append(payload, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.readyLocked(); err != nil {
		return err
	}
	if _, err := w.file.Write(payload); err != nil {
		return fmt.Errorf("write alert: %w", err)
	}
	if w.opts.Sync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("sync alert output: %w", err)
		}
	}
	return nil
}

func (w *Writer) line(a Alert) any {
	if w.opts.Verbose {
		return verboseLine{
			Timestamp:    a.Rate.Timestamp,
			CurrencyPair: a.Rate.CurrencyPair,
			Rate:         a.Rate.Rate,
			AverageRate:  a.AverageRate,
			PctChange:    a.PctChange,
			Alert:        Tag,
		}
	}
	return terseLine{
		Timestamp:    a.Rate.Timestamp,
		CurrencyPair: a.Rate.CurrencyPair,
		Alert:        Tag,
	}
}

// Close releases the file. It fails with ErrSinkRemoved when the output path no
// longer refers to the file that was opened. Closing twice is a no-op.
func (w *Writer) Close() error {
	if w == nil {
		return ErrSinkNotReady
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if w.file == nil {
		return ErrSinkNotReady
	}
	w.closed = true

	var removed error
	current, err := os.Stat(w.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		removed = fmt.Errorf("%w (output path: %s)", ErrSinkRemoved, w.path)
	case err != nil:
		removed = fmt.Errorf("stat alert output: %w", err)
	case !os.SameFile(w.info, current):
		removed = fmt.Errorf("%w (output path: %s)", ErrSinkRemoved, w.path)
	}

	closeErr := w.file.Close()
	w.file = nil
	if err := errors.Join(removed, closeErr); err != nil {
		w.logger.Error().Err(err).Msg("alert writer closed with error")
		return err
	}

	w.logger.Info().Msg("alert writer closed; output saved")
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
