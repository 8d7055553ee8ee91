/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/twelves/apiserver/internal/analytics"
	"github.com/twelves/apiserver/internal/mq"
)

// analyticsCmd represents the analytics command
var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Work with funnel analytics events",
}

var analyticsConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume analytics events from the configured broker and log them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadRuntime()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := mq.NewFromConfig(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("connect mq: %w", err)
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer broker.Close()

		tally := analytics.NewTally()
		logger.Info("consuming analytics events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.AnalyticsChannel)

		err = broker.Subscribe(ctx, cfg.MQ.AnalyticsChannel, analytics.Handler(func(ctx context.Context, evt analytics.Event) error {
			n := tally.Record(evt)
			logger.InfoContext(ctx, "analytics event",
				"event", evt.Name,
				"entity_id", evt.EntityID,
				"occurred_at", evt.OccurredAt,
				"payload", evt.Payload,
				"seen", n,
			)
			return nil
		}))
		logger.Info("analytics consumer stopped", "counts", tally.Snapshot())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
	analyticsCmd.AddCommand(analyticsConsumeCmd)
}
