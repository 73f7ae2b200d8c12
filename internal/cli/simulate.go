package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"spot-rate-alerts/internal/app"
)

var (
	simulatePair    string
	simulateAverage float64
	simulateSpot    float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic alert through the database and Telegram channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePair == "" {
			return errors.New("--pair is required")
		}
		if simulateAverage <= 0 || simulateSpot <= 0 {
			return errors.New("--average and --spot must be greater than zero")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Pair:    simulatePair,
			Average: simulateAverage,
			Spot:    simulateSpot,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePair, "pair", "CNYAUD", "Currency pair")
	simulateCmd.Flags().Float64Var(&simulateAverage, "average", 0, "Moving average to compare against")
	simulateCmd.Flags().Float64Var(&simulateSpot, "spot", 0, "Spot rate")
}
