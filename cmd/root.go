/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/twelves/apiserver/config"
	"github.com/twelves/apiserver/internal/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "twelves",
	Short: "12S registration, authentication and lead funnel backend",
	Long: `twelves runs the 12S account backend: registration, cookie sessions,
the progressive lead capture funnel and its conversion analytics.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func loadRuntime() (config.Config, *slog.Logger) {
	cfg := config.LoadConfig()
	return cfg, logging.New(cfg.Environment, os.Stderr)
}
