package engine

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// ThreadComposer composes and jointly publishes an ordered sequence of
// linked entries as one unit. All entries are composed before the single
// publish call; the platform links them atomically, so a failed entry
// leaves nothing published.
type ThreadComposer struct {
	injector *TextInjector
	verifier *PublishVerifier
	log      *zap.Logger
	rng      *rand.Rand

	// Inter-entry pacing approximates human composition rhythm.
	paceMin time.Duration
	paceMax time.Duration

	progress chan ProgressEvent
}

func NewThreadComposer(injector *TextInjector, verifier *PublishVerifier, log *zap.Logger) *ThreadComposer {
	return &ThreadComposer{
		injector: injector,
		verifier: verifier,
		log:      log.Named("thread"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		paceMin:  800 * time.Millisecond,
		paceMax:  1300 * time.Millisecond,
		progress: make(chan ProgressEvent, 64),
	}
}

// Progress returns the event stream for thread composition. Events are
// dropped, not blocked on, when the consumer lags; engine behavior never
// depends on the consumer.
func (t *ThreadComposer) Progress() <-chan ProgressEvent {
	return t.progress
}

func (t *ThreadComposer) emit(ev ProgressEvent) {
	select {
	case t.progress <- ev:
	default:
	}
}

// Compose builds the full thread in one composer and publishes it jointly.
// Any entry's insertion failure aborts with zero entries published; the
// composer is dismissed so no draft leaks into the next attempt.
func (t *ThreadComposer) Compose(ctx context.Context, composer *ComposerController, media *MediaAttacher, req *PublishRequest) (Outcome, error) {
	total := len(req.Entries)

	if err := composer.Open(ctx); err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{}
	abort := func(err error) (Outcome, error) {
		_ = composer.Dismiss(ctx)
		out := outcome
		out.PostedCount = 0
		return out, err
	}

	t.emit(ProgressEvent{Index: 0, Total: total, Phase: PhaseComposing})
	field, err := composer.Field(ctx, 0)
	if err != nil {
		return abort(err)
	}
	// Only the base entry may recover via composer reset; a reset while
	// later entries exist would wipe the whole draft thread.
	res, err := t.injector.Insert(ctx, field, req.Entries[0].Text, composer.Reset)
	if err != nil {
		return abort(err)
	}
	outcome.MethodUsed = res.Method

	if req.Attachment != nil && media != nil {
		if err := media.Attach(ctx, req.Attachment); err != nil {
			// Non-fatal: the thread goes out text-only.
			t.log.Warn("media attach failed, continuing text-only", zap.Error(err))
			outcome.Err = err.Error()
		}
	}

	for i := 1; i < total; i++ {
		if err := t.pace(ctx); err != nil {
			return abort(err)
		}
		t.emit(ProgressEvent{Index: i, Total: total, Phase: PhaseComposing})

		if err := composer.AddEntry(ctx); err != nil {
			return abort(err)
		}
		// Positional addressing: focus can drift, "the focused field" is
		// not trustworthy mid-thread.
		field, err := composer.Field(ctx, i)
		if err != nil {
			return abort(err)
		}
		res, err := t.injector.Insert(ctx, field, req.Entries[i].Text, nil)
		if err != nil {
			t.log.Warn("thread entry insertion failed, aborting whole thread",
				zap.Int("entry", i), zap.Error(err))
			return abort(err)
		}
		if res.Method > outcome.MethodUsed {
			outcome.MethodUsed = res.Method
		}
	}

	published, err := t.verifier.Publish(ctx, composer)
	if err != nil {
		return abort(err)
	}
	published.MethodUsed = outcome.MethodUsed
	if published.Err == "" {
		published.Err = outcome.Err
	}
	if published.Kind == OutcomeSuccess {
		published.PostedCount = total
		for i := 0; i < total; i++ {
			t.emit(ProgressEvent{Index: i, Total: total, Phase: PhasePosted})
		}
	}
	return published, nil
}

func (t *ThreadComposer) pace(ctx context.Context) error {
	d := t.paceMin
	if span := t.paceMax - t.paceMin; span > 0 {
		d += time.Duration(t.rng.Int63n(int64(span)))
	}
	return sleepCtx(ctx, d)
}
