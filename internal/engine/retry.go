package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// State is the orchestrator's position in the per-request machine.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StatePublishing State = "publishing"
	StateSuccess    State = "success"
	StateRetryable  State = "retryable"
	StateTerminal   State = "terminal"
)

// AttemptOptions carries per-attempt escalation decisions down to the
// runner.
type AttemptOptions struct {
	ForceNewTab bool
}

// AttemptRunner executes one full publish attempt: connect, tab, compose,
// publish, release. Implemented by Engine; faked in tests.
type AttemptRunner interface {
	RunAttempt(ctx context.Context, req *PublishRequest, opts AttemptOptions) (Outcome, error)
}

// RetryConfig tunes the orchestrator.
type RetryConfig struct {
	// Additional attempts after the first.
	MaxRetries int
	RetryDelay time.Duration
	// Mandatory pacing between posts and after threads.
	PostDelay   time.Duration
	ThreadDelay time.Duration
	// Consecutive request failures before new-tab strategy goes batch-wide.
	FailureEscalation int
	// Extra pause imposed after the platform flags duplicate content.
	DuplicateCooldown time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		RetryDelay:        10 * time.Second,
		PostDelay:         60 * time.Second,
		ThreadDelay:       90 * time.Second,
		FailureEscalation: 3,
		DuplicateCooldown: 5 * time.Minute,
	}
}

// RetryOrchestrator runs one logical publish request through the attempt
// chain, escalating recovery strategy across attempts and classifying
// terminal vs retryable failures. It is the single place that decides
// retry-vs-terminal; nothing below it retries.
type RetryOrchestrator struct {
	runner AttemptRunner
	cfg    RetryConfig
	log    *zap.Logger

	sctx  SessionContext
	state State

	// Batch-level escalation state. Replaces the ad hoc booleans the
	// behavior was originally tracked with.
	forceNewTabBatch    bool
	consecutiveFailures int
	sessionExpired      bool
}

func NewRetryOrchestrator(runner AttemptRunner, cfg RetryConfig, log *zap.Logger) *RetryOrchestrator {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.FailureEscalation <= 0 {
		cfg.FailureEscalation = 3
	}
	return &RetryOrchestrator{
		runner: runner,
		cfg:    cfg,
		log:    log.Named("orchestrator"),
		state:  StateIdle,
	}
}

// SessionExpired reports whether a previous request hit terminal session
// expiry. Once set, no later request in the batch touches the browser.
func (o *RetryOrchestrator) SessionExpired() bool { return o.sessionExpired }

func (o *RetryOrchestrator) transition(s State) {
	if o.state != s {
		o.log.Debug("state transition", zap.String("from", string(o.state)), zap.String("to", string(s)))
		o.state = s
	}
}

// Publish resolves one request to exactly one terminal outcome. Duplicate
// and PossiblyPosted return immediately without another publish click;
// retrying those is how duplicate posts happen.
func (o *RetryOrchestrator) Publish(ctx context.Context, req *PublishRequest) Outcome {
	if o.sessionExpired {
		return o.record(req, Outcome{Kind: OutcomeSkipped, Err: "skipped: session expired"})
	}
	if err := req.Validate(); err != nil {
		// Rejected before any browser interaction.
		return o.record(req, Outcome{Kind: OutcomeFailure, Err: err.Error()})
	}

	o.transition(StateIdle)
	forceNew := o.forceNewTabBatch
	last := Outcome{Kind: OutcomeFailure, Err: "no attempt ran"}

	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			o.transition(StateRetryable)
			o.log.Info("retrying publish request",
				zap.String("request", req.ID), zap.Int("attempt", attempt+1),
				zap.Bool("force_new_tab", forceNew))
			if err := sleepCtx(ctx, o.cfg.RetryDelay); err != nil {
				last.Err = err.Error()
				return o.record(req, last)
			}
		}

		o.transition(StateConnecting)
		o.transition(StatePublishing)
		outcome, err := o.runner.RunAttempt(ctx, req, AttemptOptions{ForceNewTab: forceNew})
		outcome.Attempts = attempt + 1

		if err != nil {
			if IsTerminal(err) {
				o.transition(StateTerminal)
				o.sessionExpired = true
				o.log.Error("session expired, aborting remaining batch", zap.Error(err))
				return o.record(req, Outcome{Kind: OutcomeSessionExpired, Err: err.Error(), Attempts: attempt + 1})
			}
			if NeedsNewTab(err) {
				forceNew = true
			}
			last = Outcome{Kind: OutcomeFailure, Err: err.Error(), NeedsNewTab: NeedsNewTab(err), Attempts: attempt + 1}
			if !IsRetryable(err) {
				o.transition(StateTerminal)
				return o.record(req, last)
			}
			o.log.Warn("publish attempt failed", zap.String("request", req.ID), zap.Error(err))
			continue
		}

		switch outcome.Kind {
		case OutcomeSessionExpired:
			o.transition(StateTerminal)
			o.sessionExpired = true
			return o.record(req, outcome)
		case OutcomeSuccess, OutcomeDuplicate, OutcomePossiblyPosted:
			// Success-equivalent: one more click could mean one more post.
			o.transition(StateSuccess)
			return o.record(req, outcome)
		default:
			if outcome.NeedsNewTab {
				forceNew = true
			}
			last = outcome
			o.log.Warn("publish attempt returned failure",
				zap.String("request", req.ID), zap.String("error", outcome.Err))
		}
	}

	o.transition(StateTerminal)
	return o.record(req, last)
}

// PublishPaced waits out the mandatory inter-post delay, then publishes.
// This is the entry point batch drivers use per request.
func (o *RetryOrchestrator) PublishPaced(ctx context.Context, req *PublishRequest) Outcome {
	if !o.sessionExpired {
		if wait := o.sctx.NextPublishDelay(time.Now(), o.cfg.PostDelay, o.cfg.ThreadDelay); wait > 0 {
			o.log.Info("pacing before next publish", zap.Duration("wait", wait))
			if err := sleepCtx(ctx, wait); err != nil {
				return Outcome{Kind: OutcomeFailure, Err: err.Error()}
			}
		}
	}
	return o.Publish(ctx, req)
}

// PublishBatch drives requests strictly in submission order, each fully
// resolved before the next begins, with mandatory pacing between posts.
func (o *RetryOrchestrator) PublishBatch(ctx context.Context, reqs []*PublishRequest) []Outcome {
	outcomes := make([]Outcome, 0, len(reqs))
	for _, req := range reqs {
		outcomes = append(outcomes, o.PublishPaced(ctx, req))
	}
	return outcomes
}

// record applies batch bookkeeping to a terminal outcome: failure-streak
// escalation and pacing state.
func (o *RetryOrchestrator) record(req *PublishRequest, out Outcome) Outcome {
	switch {
	case out.Settled():
		o.consecutiveFailures = 0
		now := time.Now()
		o.sctx.MarkPublished(now, req.Mode == ModeThread)
		if out.Kind == OutcomeDuplicate && o.cfg.DuplicateCooldown > 0 {
			// The platform remembers recent content; give it room to forget
			// before the next publish.
			o.sctx.CooldownUntil = now.Add(o.cfg.DuplicateCooldown)
		}
	case out.Kind == OutcomeFailure && out.Attempts > 0:
		// Pre-browser rejections (zero attempts) say nothing about tab
		// health and must not trip the new-tab escalation.
		o.consecutiveFailures++
		if o.consecutiveFailures >= o.cfg.FailureEscalation && !o.forceNewTabBatch {
			// The reused tab itself is the prime suspect at this point.
			o.forceNewTabBatch = true
			o.log.Warn("failure streak reached, forcing new tabs for the rest of the batch",
				zap.Int("streak", o.consecutiveFailures))
		}
	}
	o.log.Info("request resolved",
		zap.String("request", req.ID),
		zap.String("outcome", string(out.Kind)),
		zap.Int("attempts", out.Attempts),
		zap.String("error", out.Err))
	return out
}
