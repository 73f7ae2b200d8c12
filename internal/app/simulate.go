package app

import (
	"context"
	"errors"
	"time"

	"spot-rate-alerts/internal/alerting"
	"spot-rate-alerts/internal/rate"
)

// SimulateOptions describe a synthetic alert.
type SimulateOptions struct {
	Pair    string
	Average float64
	Spot    float64
}

// SimulateAlert pushes one synthetic alert through the secondary channels
// (database and Telegram) without touching the alert output file.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if a.Config.Database.DSN == "" && !a.Config.Alerting.Telegram.Enabled {
		return errors.New("no alert channel configured; set database.dsn or enable telegram")
	}
	if opts.Average == 0 {
		return errors.New("average must not be zero")
	}

	record, err := rate.New(float64(time.Now().UnixMilli())/1000, opts.Pair, opts.Spot)
	if err != nil {
		return err
	}

	router, cleanup, err := a.newRouter(ctx, alerting.Discard, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	alert := alerting.Alert{
		Rate:        record,
		AverageRate: opts.Average,
		PctChange:   (opts.Spot - opts.Average) / opts.Average,
	}
	a.Logger.Info().Str("pair", opts.Pair).Float64("pct_change", alert.PctChange).Msg("simulating alert")
	return router.Emit(ctx, alert)
}
