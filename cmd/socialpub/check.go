package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"socialpub/internal/engine"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config and probe the browser debugger endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		fmt.Printf("config ok (endpoint %s)\n", cfg.Browser.DebuggerURL)

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		// Single attempt with short backoff; check should fail fast.
		connector := engine.NewConnector(cfg.Browser.DebuggerURL, 1, time.Second, logger)
		sess, err := connector.Connect(ctx)
		if err != nil {
			return fmt.Errorf("browser probe failed: %w", err)
		}
		sess.Release()
		fmt.Println("browser endpoint reachable")
		return nil
	},
}
