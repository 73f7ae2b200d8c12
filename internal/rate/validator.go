package rate

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
)

const (
	fieldTimestamp    = "timestamp"
	fieldCurrencyPair = "currencyPair"
	fieldRate         = "rate"

	reasonRequired = "field required"
)

// ErrInvalidRecord is matched by every ValidationError.
var ErrInvalidRecord = errors.New("invalid conversion rate record")

// FieldError describes a single rejected field.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError reports why a raw record could not become a ConversionRate.
type ValidationError struct {
	Problems []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p.Field == "" {
			parts = append(parts, p.Reason)
			continue
		}
		parts = append(parts, p.Field+": "+p.Reason)
	}
	return "invalid record: " + strings.Join(parts, "; ")
}

// Is lets callers use errors.Is(err, ErrInvalidRecord).
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRecord
}

func (e *ValidationError) add(field, reason string) {
	e.Problems = append(e.Problems, FieldError{Field: field, Reason: reason})
}

// Parse validates a raw JSON object and builds a ConversionRate.
// Every problem found is reported, not only the first one.
func Parse(raw json.RawMessage) (ConversionRate, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		verr := &ValidationError{}
		verr.add("", "record must be a JSON object")
		return ConversionRate{}, verr
	}

	verr := &ValidationError{}
	var rec ConversionRate

	if ts, ok := number(verr, fields, fieldTimestamp); ok {
		if err := CheckTimestamp(ts); err != nil {
			verr.add(fieldTimestamp, err.Error())
		} else {
			rec.Timestamp = ts
		}
	}

	if pair, ok := text(verr, fields, fieldCurrencyPair); ok {
		rec.CurrencyPair = pair
	}

	if r, ok := number(verr, fields, fieldRate); ok {
		rec.Rate = r
	}

	if len(verr.Problems) > 0 {
		return ConversionRate{}, verr
	}
	return rec, nil
}

// New builds a ConversionRate from already typed values, applying the same checks as Parse.
func New(timestamp float64, pair string, value float64) (ConversionRate, error) {
	verr := &ValidationError{}
	if err := CheckTimestamp(timestamp); err != nil {
		verr.add(fieldTimestamp, err.Error())
	}
	if strings.TrimSpace(pair) == "" {
		verr.add(fieldCurrencyPair, "must not be empty")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		verr.add(fieldRate, "must be a finite number")
	}
	if len(verr.Problems) > 0 {
		return ConversionRate{}, verr
	}
	return ConversionRate{Timestamp: timestamp, CurrencyPair: pair, Rate: value}, nil
}

// CheckTimestamp rejects values that do not map to a representable calendar instant.
func CheckTimestamp(ts float64) error {
	if math.IsNaN(ts) || math.IsInf(ts, 0) || ts < MinUnixTimestamp || ts >= MaxUnixTimestamp+1 {
		return errors.New("timestamp must be Unix Timestamp")
	}
	return nil
}

func number(verr *ValidationError, fields map[string]json.RawMessage, name string) (float64, bool) {
	raw, ok := present(fields, name)
	if !ok {
		verr.add(name, reasonRequired)
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		verr.add(name, "value is not a valid number")
		return 0, false
	}
	return v, true
}

func text(verr *ValidationError, fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := present(fields, name)
	if !ok {
		verr.add(name, reasonRequired)
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		verr.add(name, "value is not a valid string")
		return "", false
	}
	if strings.TrimSpace(v) == "" {
		verr.add(name, "must not be empty")
		return "", false
	}
	return v, true
}

func present(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}
