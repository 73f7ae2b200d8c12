package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"spot-rate-alerts/internal/alerting"
	"spot-rate-alerts/internal/rate"
	"spot-rate-alerts/internal/service"
	"spot-rate-alerts/internal/tracker"
)

// Point is one record of the exported pair with the decision inputs.
type Point struct {
	Timestamp float64
	Rate      float64
	Average   float64
	PctChange float64
	Alerted   bool
}

// Export replays an input file and renders one pair's rate against its
// moving average as CSV and/or PNG. Nothing is written to the alert output.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Pair == "" {
		return errors.New("--pair is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	points, err := a.replay(ctx, opts.Input, opts.Pair)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Str("pair", opts.Pair).Msg("no records found for pair")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting points")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, opts.Pair, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) replay(ctx context.Context, input, pair string) ([]Point, error) {
	t, err := a.newTracker(alerting.Discard)
	if err != nil {
		return nil, err
	}

	var points []Point
	pipeline := service.New(t, service.Options{
		MaxLineBytes: a.Config.Input.MaxLineBytes,
		Observer: func(r rate.ConversionRate, d tracker.Decision) {
			if r.CurrencyPair != pair {
				return
			}
			points = append(points, Point{
				Timestamp: r.Timestamp,
				Rate:      r.Rate,
				Average:   d.AverageBefore,
				PctChange: d.PctChange,
				Alerted:   d.Alerted,
			})
		},
	}, a.Logger)

	if _, err := pipeline.Run(ctx, input); err != nil {
		return nil, err
	}
	return points, nil
}

func downsamplePoints(points []Point, max int) []Point {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]Point, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, points []Point) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"observed_at", "timestamp", "rate", "average_rate", "pct_change", "alert"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			rate.ConversionRate{Timestamp: p.Timestamp}.Time().Format(time.RFC3339Nano),
			strconv.FormatFloat(p.Timestamp, 'f', -1, 64),
			formatFloat(p.Rate, 6),
			formatFloat(p.Average, 6),
			formatFloat(p.PctChange*100, 4),
			strconv.FormatBool(p.Alerted),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePointsPNG(path, pair string, points []Point) error {
	if len(points) < 2 {
		return fmt.Errorf("need at least two points to chart, have %d", len(points))
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	spot := make([]float64, len(points))
	average := make([]float64, len(points))
	change := make([]float64, len(points))

	for i, p := range points {
		x[i] = rate.ConversionRate{Timestamp: p.Timestamp}.Time()
		spot[i] = p.Rate
		average[i] = p.Average
		change[i] = p.PctChange * 100
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.5f")
	}
	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  pair,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Rate",
			ValueFormatter: rateFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Change vs average (%)",
			ValueFormatter: pctFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Spot",
				XValues: x,
				YValues: spot,
			},
			chart.TimeSeries{
				Name:    "Moving average",
				XValues: x,
				YValues: average,
			},
			chart.TimeSeries{
				Name:    "Change %",
				XValues: x,
				YValues: change,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatFloat(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
