package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/paddock-labs/raceday-cli/pkg/twocaptcha"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the captcha provider account balance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.TwoCaptcha.Key == "" {
			return eris.New("twocaptcha key is required (RACEDAY_TWOCAPTCHA_KEY)")
		}

		gate := twocaptcha.NewClient(cfg.TwoCaptcha.Key, twocaptcha.WithBaseURL(cfg.TwoCaptcha.BaseURL))
		bal, err := gate.Balance(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "fetch balance")
		}

		fmt.Printf("$%.2f\n", bal)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
