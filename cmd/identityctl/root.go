package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrEthical07/goIdentity/internal/appconfig"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFile    string

	cfg    appconfig.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "identityctl",
		Short:         "Manage goIdentity identities, reset tokens and rate limits",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := appconfig.LoadDotEnv(opts.envFile); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = newLogger(cmd, cfg.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newRegisterCmd(opts),
		newAuthenticateCmd(opts),
		newDeleteCmd(opts),
		newResetTokenCmd(opts),
		newThrottleCmd(opts),
		newLoadtestCmd(opts),
	)
	return cmd
}

func newLogger(cmd *cobra.Command, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
}
