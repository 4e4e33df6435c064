// Package engine publishes generated short-form content onto a social
// platform whose only integration surface is its web front end. It drives a
// remote-controlled browser session and turns the UI's silent, partial, and
// ambiguous failure modes into a small set of well-defined outcomes,
// guaranteeing the same content is never published twice.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Options aggregates the tunables for one Engine instance.
type Options struct {
	Endpoint        string
	ConnectAttempts int
	ConnectBackoff  time.Duration

	Tabs   TabConfig
	Pace   Pace
	Verify VerifyConfig
	Media  MediaConfig
}

// Engine wires the component chain into one publish attempt. It implements
// AttemptRunner for the orchestrator; callers normally go through
// RetryOrchestrator rather than calling RunAttempt directly.
type Engine struct {
	connector *Connector
	tabs      *TabManager
	injector  *TextInjector
	verifier  *PublishVerifier
	thread    *ThreadComposer
	mediaCfg  MediaConfig
	log       *zap.Logger
}

func New(opts Options, log *zap.Logger) *Engine {
	injector := NewTextInjector(opts.Pace, log)
	verifier := NewPublishVerifier(opts.Verify, log)
	return &Engine{
		connector: NewConnector(opts.Endpoint, opts.ConnectAttempts, opts.ConnectBackoff, log),
		tabs:      NewTabManager(opts.Tabs, log),
		injector:  injector,
		verifier:  verifier,
		thread:    NewThreadComposer(injector, verifier, log),
		mediaCfg:  opts.Media,
		log:       log.Named("engine"),
	}
}

// Progress exposes the thread composition event stream.
func (e *Engine) Progress() <-chan ProgressEvent {
	return e.thread.Progress()
}

// RunAttempt executes one publish attempt end to end. Every exit path
// releases the browser connection, and a freshly created tab is closed
// unless the attempt settled; a reused tab is never closed.
func (e *Engine) RunAttempt(ctx context.Context, req *PublishRequest, opts AttemptOptions) (outcome Outcome, err error) {
	sess, err := e.connector.Connect(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer sess.Release()

	tab, err := e.tabs.FindOrCreateTab(ctx, sess, opts.ForceNewTab)
	if err != nil {
		return Outcome{}, err
	}
	settled := false
	defer func() {
		if !settled {
			tab.CloseIfFresh(e.log)
		}
	}()

	driver := NewDriver(tab.Page, e.log)
	composer := NewComposerController(driver, e.log)
	media := NewMediaAttacher(driver, e.mediaCfg, e.log)

	// Defensive precondition: a previous failed attempt may have left a
	// dirty composer open on this tab.
	if err := composer.DismissOrphan(ctx); err != nil {
		return Outcome{}, err
	}

	if req.Mode == ModeThread {
		outcome, err = e.thread.Compose(ctx, composer, media, req)
	} else {
		outcome, err = e.publishSingle(ctx, composer, media, req)
	}
	if err != nil {
		return outcome, err
	}
	settled = outcome.Settled()
	return outcome, nil
}

// publishSingle handles Single, Quote, and MediaAttached modes: one field,
// one entry, one publish.
func (e *Engine) publishSingle(ctx context.Context, composer *ComposerController, media *MediaAttacher, req *PublishRequest) (Outcome, error) {
	if err := composer.Open(ctx); err != nil {
		return Outcome{}, err
	}
	field, err := composer.Field(ctx, 0)
	if err != nil {
		return Outcome{}, err
	}

	text := req.Entries[0].Text
	if req.Mode == ModeQuote {
		// The quote URL goes on its own last line; the platform folds it
		// into a quote card at publish time.
		text = text + "\n" + req.QuoteTargetURL
	}

	res, err := e.injector.Insert(ctx, field, text, composer.Reset)
	if err != nil {
		_ = composer.Dismiss(ctx)
		return Outcome{MethodUsed: res.Method}, err
	}

	var mediaNote string
	if req.Attachment != nil {
		if err := media.Attach(ctx, req.Attachment); err != nil {
			e.log.Warn("media attach failed, publishing text-only", zap.Error(err))
			mediaNote = err.Error()
		}
	}

	outcome, err := e.verifier.Publish(ctx, composer)
	if err != nil {
		return outcome, err
	}
	outcome.MethodUsed = res.Method
	if outcome.Err == "" {
		outcome.Err = mediaNote
	}
	if outcome.Kind == OutcomeSuccess {
		outcome.PostedCount = 1
	}
	return outcome, nil
}
