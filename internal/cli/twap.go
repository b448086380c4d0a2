package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pricefeed/internal/app"
	"pricefeed/internal/config"
)

var (
	twapFile     string
	twapWindow   time.Duration
	twapDecimals int32
)

var twapCmd = &cobra.Command{
	Use:         "twap",
	Short:       "Compute the TWAP and normalized price of a history JSON file",
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if twapWindow < time.Second {
			return fmt.Errorf("--window must be at least one second")
		}
		if twapDecimals < 0 {
			return fmt.Errorf("--decimals cannot be negative")
		}
		return app.WriteTwapReport(cmd.OutOrStdout(), app.TwapOptions{
			File:     twapFile,
			Window:   twapWindow,
			Decimals: twapDecimals,
		})
	},
}

func init() {
	twapCmd.Flags().StringVar(&twapFile, "file", "", "Path to a history JSON array of {timestamp, price}")
	twapCmd.Flags().DurationVar(&twapWindow, "window", config.DefaultWindow, "Averaging window")
	twapCmd.Flags().Int32Var(&twapDecimals, "decimals", config.DefaultDecimals, "Fixed-point precision of the normalized price")
	_ = twapCmd.MarkFlagRequired("file")
}
