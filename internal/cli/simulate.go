package cli

import (
	"github.com/spf13/cobra"

	"pricefeed/internal/app"
)

var (
	simulateToken   string
	simulateMessage string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Run a failing cycle for a token to exercise the alert channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Token:   simulateToken,
			Message: simulateMessage,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateToken, "token", "", "Token symbol")
	simulateCmd.Flags().StringVar(&simulateMessage, "message", "", "Error text carried by the simulated failure")
	_ = simulateCmd.MarkFlagRequired("token")
}
