package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AlertRecord is one spot change alert kept for auditing.
type AlertRecord struct {
	ID           int64
	RunID        uuid.UUID
	Pair         string
	ObservedAt   time.Time
	SpotRate     decimal.Decimal
	AverageRate  decimal.Decimal
	ChangePct    decimal.Decimal
	ThresholdPct decimal.Decimal
	WindowSize   int
	CreatedAt    time.Time
}
