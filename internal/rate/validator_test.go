package rate

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	rec, err := Parse(json.RawMessage(`{"timestamp": 1554933784.023, "currencyPair": "CNYAUD", "rate": 0.39281}`))
	require.NoError(t, err)
	require.Equal(t, "CNYAUD", rec.CurrencyPair)
	require.InDelta(t, 0.39281, rec.Rate, 1e-12)
	require.InDelta(t, 1554933784.023, rec.Timestamp, 1e-9)

	want := time.Date(2019, 4, 10, 22, 3, 4, 23_000_000, time.UTC)
	require.WithinDuration(t, want, rec.Time(), time.Microsecond)
}

func TestParse_IntegerTimestamp(t *testing.T) {
	rec, err := Parse(json.RawMessage(`{"timestamp": 1626594160, "currencyPair": "AUDUSD", "rate": 0.74}`))
	require.NoError(t, err)
	require.Equal(t, time.Date(2021, 7, 18, 7, 42, 40, 0, time.UTC), rec.Time())
}

func TestParse_MissingRate(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"timestamp": 1554933784.023, "currencyPair": "CNYAUD"}`))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidRecord))
	require.Contains(t, err.Error(), "rate: field required")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 1)
	require.Equal(t, "rate", verr.Problems[0].Field)
}

func TestParse_InvalidTimestamp(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"timestamp": 999999999999999, "currencyPair": "CNYAUD", "rate": 0.39281}`))
	require.ErrorIs(t, err, ErrInvalidRecord)
	require.Contains(t, err.Error(), "timestamp must be Unix Timestamp")
}

func TestParse_WrongTypes(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"timestamp": "yesterday", "currencyPair": 42, "rate": null}`))
	require.ErrorIs(t, err, ErrInvalidRecord)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.ElementsMatch(t, []FieldError{
		{Field: "timestamp", Reason: "value is not a valid number"},
		{Field: "currencyPair", Reason: "value is not a valid string"},
		{Field: "rate", Reason: "field required"},
	}, verr.Problems)
}

func TestParse_EmptyPair(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"timestamp": 1, "currencyPair": "  ", "rate": 1}`))
	require.ErrorIs(t, err, ErrInvalidRecord)
	require.Contains(t, err.Error(), "currencyPair: must not be empty")
}

func TestParse_NotAnObject(t *testing.T) {
	for _, raw := range []string{`[1,2,3]`, `"CNYAUD"`, `null`, `12`} {
		_, err := Parse(json.RawMessage(raw))
		require.ErrorIs(t, err, ErrInvalidRecord, raw)
	}
}

func TestCheckTimestamp_Bounds(t *testing.T) {
	require.NoError(t, CheckTimestamp(MinUnixTimestamp))
	require.NoError(t, CheckTimestamp(MaxUnixTimestamp))
	require.NoError(t, CheckTimestamp(0))
	require.NoError(t, CheckTimestamp(MaxUnixTimestamp+0.5))
	require.NoError(t, CheckTimestamp(MaxUnixTimestamp+0.999999))
	require.Error(t, CheckTimestamp(MaxUnixTimestamp+1))
	require.Error(t, CheckTimestamp(MinUnixTimestamp-1))
	require.Error(t, CheckTimestamp(MinUnixTimestamp-0.5))
}

func TestTime_FractionalLastSecond(t *testing.T) {
	r := ConversionRate{Timestamp: MaxUnixTimestamp + 0.5}
	require.Equal(t, time.Date(9999, 12, 31, 23, 59, 59, 500_000_000, time.UTC), r.Time())
}

func TestNew(t *testing.T) {
	rec, err := New(1554933784.023, "CNYAUD", 0.5)
	require.NoError(t, err)
	require.Equal(t, ConversionRate{Timestamp: 1554933784.023, CurrencyPair: "CNYAUD", Rate: 0.5}, rec)

	_, err = New(1e20, "", 0.5)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 2)
}
