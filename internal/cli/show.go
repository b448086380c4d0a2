package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pricefeed/internal/app"
)

var (
	showToken string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the stored price and recent samples of a token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Token: showToken,
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showToken, "token", "", "Token symbol")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of samples to display")
	_ = showCmd.MarkFlagRequired("token")
}
