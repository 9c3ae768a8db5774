package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"labeldesk/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the labeldesk daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Enable development logging")
	cmd.Flags().BoolVar(&opts.SkipPreflight, "skip-preflight", false, "Start even when a readiness check fails")
	return cmd
}
