package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/google/uuid"

	"socialpub/internal/config"
	"socialpub/internal/engine"
	"socialpub/internal/history"
	"socialpub/internal/trace"
)

var (
	dryRun bool

	runCmd = &cobra.Command{
		Use:   "run <batch-file>",
		Short: "Publish a batch of posts from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
)

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the batch without touching the browser")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	reqs, err := loadBatch(args[0])
	if err != nil {
		return err
	}
	logger.Info("batch loaded", zap.Int("posts", len(reqs)))

	if dryRun {
		fmt.Printf("batch ok: %d posts validated\n", len(reqs))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	var recorder *trace.Recorder
	if cfg.Engine.TraceDir != "" {
		recorder, err = trace.Start(cfg.Engine.TraceDir, uuid.NewString()[:8])
		if err != nil {
			logger.Warn("flight recorder unavailable", zap.Error(err))
		}
		defer recorder.Close()
	}

	eng := engine.New(engineOptions(cfg), logger)
	orch := engine.NewRetryOrchestrator(eng, retryConfig(cfg), logger)

	// Progress events are observational; print and move on.
	go func() {
		for ev := range eng.Progress() {
			fmt.Printf("  thread entry %d/%d: %s\n", ev.Index+1, ev.Total, ev.Phase)
			recorder.Log(trace.EventProgress, "", ev)
		}
	}()

	failed := 0
	for i, req := range reqs {
		recorder.Log(trace.EventRequestStart, req.ID, map[string]interface{}{
			"mode": req.Mode, "entries": len(req.Entries), "tags": req.Tags,
		})
		out := orch.PublishPaced(ctx, req)
		recorder.Log(trace.EventOutcome, req.ID, out)
		printOutcome(i, req, out)
		if store != nil {
			if err := store.Append(req, out); err != nil {
				logger.Warn("recording publish history", zap.Error(err))
			}
		}
		if out.Kind == engine.OutcomeFailure || out.Kind == engine.OutcomeSessionExpired {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d posts failed", failed, len(reqs))
	}
	return nil
}

func printOutcome(i int, req *engine.PublishRequest, out engine.Outcome) {
	status := string(out.Kind)
	if out.Err != "" {
		status += " (" + out.Err + ")"
	}
	fmt.Printf("[%d] %s: %s\n", i+1, req.Mode, status)
	if out.Kind == engine.OutcomeSessionExpired {
		fmt.Fprintln(os.Stderr, "session expired: log in to the platform in the controlled browser and re-run")
	}
}

func engineOptions(cfg config.Config) engine.Options {
	return engine.Options{
		Endpoint:        cfg.Browser.DebuggerURL,
		ConnectAttempts: cfg.Browser.ConnectAttempts,
		ConnectBackoff:  cfg.Browser.ConnectBackoffDuration(),
		Tabs: engine.TabConfig{
			HomeURL:    cfg.Platform.HomeURL,
			Host:       cfg.Platform.Host,
			DenyPaths:  cfg.Platform.DenyPaths,
			MaxTabs:    cfg.Engine.MaxTabs,
			NavTimeout: cfg.Browser.NavigationTimeoutDuration(),
		},
		Pace: engine.DefaultPace(),
		Verify: engine.VerifyConfig{
			EnableTimeout: engine.DefaultVerifyConfig().EnableTimeout,
			EnablePoll:    engine.DefaultVerifyConfig().EnablePoll,
			SettleDelay:   engine.DefaultVerifyConfig().SettleDelay,
			SecondClick:   cfg.Engine.UseSecondPublishClick(),
		},
		Media: engine.MediaConfig{
			ImageSettle: cfg.Engine.ImageSettleDuration(),
			VideoSettle: cfg.Engine.VideoSettleDuration(),
		},
	}
}

func retryConfig(cfg config.Config) engine.RetryConfig {
	rc := engine.DefaultRetryConfig()
	rc.MaxRetries = cfg.Engine.MaxRetries
	rc.RetryDelay = cfg.Engine.RetryDelayDuration()
	rc.PostDelay = cfg.Engine.PostDelayDuration()
	rc.ThreadDelay = cfg.Engine.ThreadDelayDuration()
	rc.DuplicateCooldown = cfg.Engine.DuplicateCooldownDuration()
	return rc
}
