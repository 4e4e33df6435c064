package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"socialpub/internal/config"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "socialpub",
		Short: "Publish short-form content through the platform's web front end",
		Long: `socialpub drives a remote-controlled browser session to publish single
posts, threads, quote posts, and posts with media onto a platform that has
no stable posting API. The browser must already be running with remote
debugging enabled and logged in to the platform.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(runCmd, checkCmd, historyCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the socialpub version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("socialpub 0.3.1")
	},
}

// loadConfig loads config and builds the logger in one place so every
// subcommand starts the same way.
func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return cfg, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil && cfg.Level != "" {
		return nil, fmt.Errorf("invalid log level %q", cfg.Level)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.File != "" {
		zcfg.OutputPaths = []string{cfg.File}
		zcfg.ErrorOutputPaths = []string{cfg.File}
	} else {
		zcfg.OutputPaths = []string{"stderr"}
		zcfg.ErrorOutputPaths = []string{"stderr"}
	}
	return zcfg.Build()
}
