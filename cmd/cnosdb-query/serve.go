package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/g302ge/cnosdb/internal/app"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP SQL endpoint and the gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := a.Start(ctx); err != nil {
				return err
			}
			return a.WaitForShutdown(ctx)
		},
	}
}
