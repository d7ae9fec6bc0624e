package main

import (
	"fmt"
	"os"

	"portal/internal/config"
	"portal/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	EnvFiles []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "portal",
		Short:         "University request portal: approval workflow and equipment reservations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", []string{"configs/.env", ".env"}, "dotenv files to load before reading the environment")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}

// bootstrap loads configuration and builds the process logger.
func bootstrap(opts *rootOptions) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(opts.EnvFiles...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat), nil
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
