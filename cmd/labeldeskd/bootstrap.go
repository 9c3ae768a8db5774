package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"labeldesk/internal/config"
	"labeldesk/internal/daemonrun"
)

// newDaemonCommand builds the service entry point used by process managers.
// It carries only what a unit file needs; interactive control lives in the
// labeldesk CLI.
func newDaemonCommand() *cobra.Command {
	var configPath string
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:           "labeldeskd",
		Short:         "labeldesk dispatch daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&opts.SkipPreflight, "skip-preflight", false, "Start even when a readiness check fails")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
