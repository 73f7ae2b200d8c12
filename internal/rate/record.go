package rate

import (
	"math"
	"time"
)

// Whole-second calendar bounds (0001-01-01T00:00:00Z .. 9999-12-31T23:59:59Z).
// Fractions past MaxUnixTimestamp are valid up to the end of that second.
const (
	MinUnixTimestamp = -62135596800
	MaxUnixTimestamp = 253402300799
)

// ConversionRate is a single validated spot-rate observation.
type ConversionRate struct {
	Timestamp    float64
	CurrencyPair string
	Rate         float64
}

// Time converts the Unix timestamp into a UTC instant.
func (c ConversionRate) Time() time.Time {
	return unixToTime(c.Timestamp)
}

func unixToTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
