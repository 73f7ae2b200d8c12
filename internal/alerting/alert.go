package alerting

import (
	"context"

	"spot-rate-alerts/internal/rate"
)

// Tag is the value of the "alert" field on every emitted record.
const Tag = "spotChange"

// Alert is a spot rate that moved away from its pair's moving average.
type Alert struct {
	Rate        rate.ConversionRate
	AverageRate float64
	PctChange   float64
}

// Discard accepts alerts and drops them. Used when only the decisions matter.
var Discard = discard{}

type discard struct{}

func (discard) Emit(context.Context, Alert) error { return nil }
