package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newThrottleCmd(opts *rootOptions) *cobra.Command {
	var action string

	cmd := &cobra.Command{
		Use:   "throttle <id>",
		Short: "Consume one request from an identity's rate-limit bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.engine.Credentials().FindActiveByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			decision, err := a.engine.Throttle(cmd.Context(), rec, action)
			fmt.Fprintf(cmd.OutOrStdout(), "allowed=%t remaining=%d retry_after=%d\n",
				decision.Allowed, decision.Remaining, decision.RetryAfter)
			return err
		},
	}

	cmd.Flags().StringVar(&action, "action", "api", "action name passed to the quota policy")
	return cmd
}
