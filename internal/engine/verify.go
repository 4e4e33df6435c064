package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ComposerSurface is the verifier's view of an open composer. Implemented
// by ComposerController; faked in tests.
type ComposerSurface interface {
	PublishEnabled(ctx context.Context) (bool, error)
	ClickPublish(ctx context.Context) error
	DuplicateWarningShown(ctx context.Context) (bool, error)
	IsOpen(ctx context.Context) (bool, error)
	Dismiss(ctx context.Context) error
}

// VerifyConfig tunes the publish/classify loop.
type VerifyConfig struct {
	// How long to poll for the publish control to become enabled.
	// Enablement can lag text-commit by up to ~3s.
	EnableTimeout time.Duration
	EnablePoll    time.Duration
	// How long to let the UI settle after a click before classifying.
	SettleDelay time.Duration
	// SecondClick covers a platform quirk where the first publish click
	// does not register. Whether that quirk still exists is undocumented,
	// so it stays a flag; exercising it is logged.
	SecondClick bool
}

func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{
		EnableTimeout: 3 * time.Second,
		EnablePoll:    200 * time.Millisecond,
		SettleDelay:   1500 * time.Millisecond,
		SecondClick:   true,
	}
}

// PublishVerifier triggers the publish control and classifies the result.
// The classification is deliberately conservative: an unconfirmed click
// becomes PossiblyPosted, never a retryable failure, because the click may
// have registered server-side.
type PublishVerifier struct {
	cfg VerifyConfig
	log *zap.Logger
}

func NewPublishVerifier(cfg VerifyConfig, log *zap.Logger) *PublishVerifier {
	return &PublishVerifier{cfg: cfg, log: log.Named("verifier")}
}

// Publish clicks publish and resolves the ambiguous aftermath into exactly
// one outcome: Success, Duplicate, or PossiblyPosted. Errors before the
// first click are ordinary failures; after it, ambiguity wins.
func (v *PublishVerifier) Publish(ctx context.Context, composer ComposerSurface) (Outcome, error) {
	if err := v.waitEnabled(ctx, composer); err != nil {
		return Outcome{}, err
	}
	if err := composer.ClickPublish(ctx); err != nil {
		return Outcome{}, err
	}

	outcome, settled, err := v.classify(ctx, composer)
	if err != nil {
		return Outcome{Kind: OutcomePossiblyPosted, Err: err.Error()}, nil
	}
	if settled {
		return outcome, nil
	}

	if v.cfg.SecondClick {
		// Known platform quirk: some composer versions need two clicks.
		v.log.Info("composer still open after publish click, issuing second click")
		if err := composer.ClickPublish(ctx); err == nil {
			outcome, settled, err = v.classify(ctx, composer)
			if err == nil && settled {
				return outcome, nil
			}
		}
	}

	v.log.Warn("publish click issued but not visually confirmed")
	return Outcome{Kind: OutcomePossiblyPosted, Err: "publish not visually confirmed"}, nil
}

// classify runs the post-click checks: duplicate banner first, then
// composer-closed. Returns settled=false when the composer is still open
// with no banner.
func (v *PublishVerifier) classify(ctx context.Context, composer ComposerSurface) (Outcome, bool, error) {
	if err := sleepCtx(ctx, v.cfg.SettleDelay); err != nil {
		return Outcome{}, false, err
	}
	dup, err := composer.DuplicateWarningShown(ctx)
	if err != nil {
		return Outcome{}, false, err
	}
	if dup {
		v.log.Info("duplicate-content warning detected")
		_ = composer.Dismiss(ctx)
		return Outcome{Kind: OutcomeDuplicate, Err: "platform flagged duplicate content"}, true, nil
	}
	open, err := composer.IsOpen(ctx)
	if err != nil {
		return Outcome{}, false, err
	}
	if !open {
		return Outcome{Kind: OutcomeSuccess}, true, nil
	}
	return Outcome{}, false, nil
}

func (v *PublishVerifier) waitEnabled(ctx context.Context, composer ComposerSurface) error {
	deadline := time.Now().Add(v.cfg.EnableTimeout)
	for {
		enabled, err := composer.PublishEnabled(ctx)
		if err != nil {
			return err
		}
		if enabled {
			return nil
		}
		if time.Now().After(deadline) {
			// Clicking a disabled control is a silent no-op that would end
			// up classified success-equivalent. Fail retryably with nothing
			// published instead.
			v.log.Warn("publish control never enabled", zap.Duration("waited", v.cfg.EnableTimeout))
			return &PublishNotReadyError{Waited: v.cfg.EnableTimeout}
		}
		if err := sleepCtx(ctx, v.cfg.EnablePoll); err != nil {
			return err
		}
	}
}
