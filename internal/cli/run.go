package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"spot-rate-alerts/internal/app"
	"spot-rate-alerts/internal/config"
	"spot-rate-alerts/internal/window"
)

var (
	runWindow    int
	runThreshold float64
	runVerbose   bool
	runOutput    string
	runOrdering  string
)

var runCmd = &cobra.Command{
	Use:   "run <input>",
	Short: "Process a JSON-lines file of spot rates and write alerts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := getApp().Run(cmd.Context(), app.RunOptions{Input: args[0]})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d data points processed in %.2f seconds\n",
			summary.Processed, summary.Elapsed.Seconds())
		return nil
	},
}

func init() {
	runCmd.Flags().IntVarP(&runWindow, "window", "w", 0, "Samples kept per currency pair (defaults to config)")
	runCmd.Flags().Float64VarP(&runThreshold, "threshold", "t", 0, "Fractional change that triggers an alert, e.g. 0.1 for 10%")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Include rate, average_rate and pct_change in alert lines")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Alert output file (defaults to config)")
	runCmd.Flags().StringVar(&runOrdering, "ordering", "", "Eviction ordering: arrival or timestamp")
}

// applyRunOverrides copies explicitly set run flags over the loaded config.
func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Lookup("window") == nil {
		return nil
	}
	if flags.Changed("window") {
		cfg.Tracker.WindowSize = runWindow
	}
	if flags.Changed("threshold") {
		cfg.Tracker.Threshold = runThreshold
	}
	if flags.Changed("verbose") {
		cfg.Output.Verbose = runVerbose
	}
	if flags.Changed("output") {
		cfg.Output.Path = runOutput
	}
	if flags.Changed("ordering") {
		o, err := window.ParseOrdering(runOrdering)
		if err != nil {
			return err
		}
		cfg.Tracker.Ordering = string(o)
	}
	return cfg.Validate()
}
