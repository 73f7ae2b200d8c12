package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"
)

// Show prints recently persisted alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show alerts")
	}
	if closeStore != nil {
		defer closeStore()
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no alerts found")
		return nil
	}

	total, err := store.CountAlerts(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tPair\tSpot\tAverage\tChange%\tThreshold%\tWindow\tRun")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			alert.ObservedAt.UTC().Format(time.RFC3339),
			alert.Pair,
			alert.SpotRate.StringFixed(6),
			alert.AverageRate.StringFixed(6),
			alert.ChangePct.StringFixed(2),
			alert.ThresholdPct.StringFixed(2),
			alert.WindowSize,
			alert.RunID.String()[:8],
		)
	}

	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "showing %d of %d stored alerts\n", len(alerts), total)
	return nil
}

// Prune deletes persisted alerts older than opts.OlderThan.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	if opts.OlderThan <= 0 {
		return errors.New("--older-than must be greater than zero")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; nothing to prune")
	}
	if closeStore != nil {
		defer closeStore()
	}

	cutoff := time.Now().UTC().Add(-opts.OlderThan)
	deleted, err := store.DeleteAlertsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	a.Logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("pruned stored alerts")
	fmt.Fprintf(a.Out, "deleted %d alerts recorded before %s\n", deleted, cutoff.Format(time.RFC3339))
	return nil
}
