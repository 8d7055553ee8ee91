/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/twelves/apiserver/internal/server"
)

const shutdownTimeout = 15 * time.Second

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the twelves backend server",
	Long: `Starts the twelves backend server. Usage:

	twelves server
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadRuntime()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to start server", "error", err)
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				logger.Error("server error", "error", err)
			}
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
