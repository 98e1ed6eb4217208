package main

import (
	"github.com/spf13/cobra"

	"upscaler/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upscaler daemon in the foreground",
		Long: "Run the HTTP API and the enhancement pipeline until interrupted.\n" +
			"Jobs still running at shutdown are given a grace period, then their\n" +
			"external processes are killed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.Bind, "bind", "", "Override paths.api_bind (host:port)")
	return cmd
}
