package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetTokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-token",
		Short: "Issue, check and consume password reset tokens",
	}
	cmd.AddCommand(
		newResetIssueCmd(opts),
		newResetCheckCmd(opts),
		newResetConsumeCmd(opts),
	)
	return cmd
}

func newResetIssueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "issue <username>",
		Short: "Issue a reset token, replacing any pending one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := a.engine.RequestPasswordReset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func newResetCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <token>",
		Short: "Report whether a reset token is still usable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.ValidatePasswordResetToken(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
}

func newResetConsumeCmd(opts *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "consume <token>",
		Short: "Set a new password with a reset token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := passwordArg(cmd, password, "New password: ")
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.ResetPassword(cmd.Context(), args[0], pwd); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "password updated")
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "new password (prompted when omitted)")
	return cmd
}
