// Package reader streams raw records from a line-delimited JSON file.
package reader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// DefaultMaxLineBytes bounds a single input line.
const DefaultMaxLineBytes = 1 << 20

// ErrSourceNotFound is returned when the input path does not exist.
var ErrSourceNotFound = errors.New("input source not found")

// MalformedStreamError reports a line that is not valid JSON at all. It stops
// the stream, unlike a well-formed record with bad fields.
type MalformedStreamError struct {
	Line int
	Err  error
}

func (e *MalformedStreamError) Error() string {
	return fmt.Sprintf("malformed input at line %d: %v", e.Line, e.Err)
}

func (e *MalformedStreamError) Unwrap() error { return e.Err }

// Line is one non-blank input line.
type Line struct {
	Number int
	Raw    json.RawMessage
}

// Source reads Lines in file order. It is not safe for concurrent use.
type Source struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// Open prepares path for reading. maxLineBytes <= 0 selects DefaultMaxLineBytes.
func Open(path string, maxLineBytes int) (*Source, error) {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("input %s is a directory", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	scanner := bufio.NewScanner(file)
	initial := 64 * 1024
	if initial > maxLineBytes {
		initial = maxLineBytes
	}
	scanner.Buffer(make([]byte, initial), maxLineBytes)

	return &Source{path: path, file: file, scanner: scanner}, nil
}

// Path returns the input location.
func (s *Source) Path() string { return s.path }

// Next returns the next non-blank line, or io.EOF when the input is exhausted.
// Syntactically broken JSON yields a *MalformedStreamError.
func (s *Source) Next() (Line, error) {
	for s.scanner.Scan() {
		s.line++
		text := bytes.TrimSpace(s.scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		var raw json.RawMessage
		if err := json.Unmarshal(text, &raw); err != nil {
			return Line{}, &MalformedStreamError{Line: s.line, Err: err}
		}
		return Line{Number: s.line, Raw: raw}, nil
	}

	if err := s.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return Line{}, &MalformedStreamError{Line: s.line + 1, Err: err}
		}
		return Line{}, fmt.Errorf("read input: %w", err)
	}
	return Line{}, io.EOF
}

// Close releases the file.
func (s *Source) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
