/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twelves/apiserver/internal/analytics"
	"github.com/twelves/apiserver/internal/auth"
	"github.com/twelves/apiserver/internal/db"
	"github.com/twelves/apiserver/internal/services"
	"github.com/twelves/apiserver/internal/storage"
	"github.com/twelves/apiserver/internal/store"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export and inspect conversion reports",
}

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Compute the conversion report and upload it to object storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadRuntime()
		ctx := cmd.Context()

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer dbConn.Close()

		backend, err := storage.NewFromConfig(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer backend.Close()
		if err := backend.EnsureBucket(ctx); err != nil {
			return err
		}

		leads := services.NewLeadService(
			store.NewLeadRepository(dbConn),
			auth.NewBcryptHasher(cfg.Auth.BcryptCost),
			auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, cfg.Auth.LeadTokenTTL),
			analytics.NewSink(nil, cfg.MQ.AnalyticsChannel, logger),
		)
		key, report, err := services.NewReportExporter(leads, backend, cfg.Storage.ReportPrefix).Export(ctx)
		if err != nil {
			logger.Error("report export failed", "error", err)
			return err
		}
		logger.Info("report exported",
			"bucket", backend.Bucket(),
			"key", key,
			"total_records", report.Summary.TotalRecords,
			"conversion_rate", report.Summary.ConversionRate,
		)
		return nil
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print a previously exported report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _ := loadRuntime()
		ctx := cmd.Context()

		backend, err := storage.NewFromConfig(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer backend.Close()

		// Fetch only reads from storage and never touches the lead store.
		report, err := services.NewReportExporter(nil, backend, cfg.Storage.ReportPrefix).Fetch(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportExportCmd, reportShowCmd)
}
