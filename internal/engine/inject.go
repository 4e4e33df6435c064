package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// A method's insertion is taken as-is when it lands at least this
	// share of the expected length; otherwise the chain falls through.
	methodAcceptRatio = 0.80
	// Final acceptance window. Below ratioMin the platform truncated the
	// text; above ratioMax a failed clear left stale text behind the new
	// content.
	ratioMin = 0.90
	ratioMax = 1.15
	// Length of the normalized prefix compared to catch "right length,
	// wrong content" corruption.
	prefixGuardLen = 24

	maxInsertMethod = 4
)

// Pace tunes the humanized typing of method 4.
type Pace struct {
	CharDelayMin time.Duration
	CharDelayMax time.Duration
	// Extra delay after sentence punctuation.
	PunctuationDelay time.Duration
	// One in ThinkOdds characters gets a longer "thinking" pause.
	ThinkOdds  int
	ThinkPause time.Duration
}

func DefaultPace() Pace {
	return Pace{
		CharDelayMin:     70 * time.Millisecond,
		CharDelayMax:     150 * time.Millisecond,
		PunctuationDelay: 180 * time.Millisecond,
		ThinkOdds:        12,
		ThinkPause:       700 * time.Millisecond,
	}
}

// ResetFunc obtains a fresh field after a composer reset. Used for the one
// recovery pass when the final ratio check fails.
type ResetFunc func(ctx context.Context) (EditField, error)

// TextInjector lands text in a rich editable field through a layered
// fallback chain, verifying by length ratio and a content prefix match.
type TextInjector struct {
	log  *zap.Logger
	pace Pace
	rng  *rand.Rand
}

func NewTextInjector(pace Pace, log *zap.Logger) *TextInjector {
	return &TextInjector{
		log:  log.Named("injector"),
		pace: pace,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Insert runs the fallback chain: direct DOM insertion, staged clipboard
// paste, synthetic input events, then humanized typing. The chain stops at
// the first method that lands >=80% of the text; the final window and
// prefix guard decide acceptance. One reset+retype recovery pass runs
// before giving up with InsertionError.
func (j *TextInjector) Insert(ctx context.Context, field EditField, text string, reset ResetFunc) (InsertionResult, error) {
	expected := fieldLen(text)
	result := InsertionResult{ExpectedLen: expected}

	for method := 1; method <= maxInsertMethod; method++ {
		if method > 1 {
			if err := field.Clear(ctx); err != nil {
				return result, err
			}
		}
		if err := j.runMethod(ctx, method, field, text); err != nil {
			// A dead tab ends the chain; a flaky method just falls through.
			if NeedsNewTab(err) || ctx.Err() != nil {
				return result, err
			}
			j.log.Warn("insertion method errored", zap.Int("method", method), zap.Error(err))
			continue
		}
		got, err := field.ReadBack(ctx)
		if err != nil {
			return result, err
		}
		result = newInsertionResult(method, got, expected)
		j.log.Debug("insertion method ran",
			zap.Int("method", method), zap.Float64("ratio", result.Ratio))
		if result.Ratio >= methodAcceptRatio {
			break
		}
	}

	if ok, reason := j.verify(ctx, field, text, &result); ok {
		j.log.Info("text inserted",
			zap.Int("method", result.Method), zap.Float64("ratio", result.Ratio))
		return result, nil
	} else if reset == nil {
		return result, &InsertionError{Result: result, Reason: reason}
	} else {
		j.log.Warn("insertion outside acceptance window, resetting composer",
			zap.Float64("ratio", result.Ratio), zap.String("reason", reason))
	}

	// Recovery: one composer reset followed by the terminal fallback.
	fresh, err := reset(ctx)
	if err != nil {
		return result, fmt.Errorf("composer reset during insertion recovery: %w", err)
	}
	if err := j.runMethod(ctx, maxInsertMethod, fresh, text); err != nil {
		return result, err
	}
	got, err := fresh.ReadBack(ctx)
	if err != nil {
		return result, err
	}
	result = newInsertionResult(maxInsertMethod, got, expected)
	if ok, reason := j.verify(ctx, fresh, text, &result); !ok {
		return result, &InsertionError{Result: result, Reason: reason}
	}
	j.log.Info("text inserted after recovery", zap.Float64("ratio", result.Ratio))
	return result, nil
}

func (j *TextInjector) runMethod(ctx context.Context, method int, field EditField, text string) error {
	switch method {
	case 1:
		return field.SetDirect(ctx, text)
	case 2:
		if err := field.Focus(ctx); err != nil {
			return err
		}
		return field.Paste(ctx, text)
	case 3:
		return field.DispatchInput(ctx, text)
	case 4:
		return j.typeHumanized(ctx, field, text)
	}
	return fmt.Errorf("unknown insertion method %d", method)
}

// verify applies the final acceptance window and the prefix guard.
func (j *TextInjector) verify(ctx context.Context, field EditField, want string, result *InsertionResult) (bool, string) {
	if result.Method == 0 {
		return false, "no method landed any text"
	}
	if result.Ratio < ratioMin {
		return false, "truncated"
	}
	if result.Ratio > ratioMax {
		return false, "stale text appended"
	}
	got, err := field.ReadBack(ctx)
	if err != nil {
		return false, "read-back failed"
	}
	if !prefixMatches(got, want) {
		return false, "content prefix mismatch"
	}
	return true, ""
}

// typeHumanized is the terminal fallback: character-by-character typing
// with human pacing. Non-ASCII segments (emoji and the like) go through the
// clipboard staging path, which the platform accepts where synthetic key
// input for them is unreliable.
func (j *TextInjector) typeHumanized(ctx context.Context, field EditField, text string) error {
	if err := field.Focus(ctx); err != nil {
		return err
	}
	for _, seg := range segmentText(text) {
		if !seg.ascii {
			if err := field.Paste(ctx, seg.text); err != nil {
				return err
			}
			if err := sleepCtx(ctx, j.charDelay('a')); err != nil {
				return err
			}
			continue
		}
		for _, ch := range seg.text {
			if err := field.TypeChunk(ctx, string(ch)); err != nil {
				return err
			}
			if err := sleepCtx(ctx, j.charDelay(ch)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (j *TextInjector) charDelay(ch rune) time.Duration {
	d := j.pace.CharDelayMin
	if span := j.pace.CharDelayMax - j.pace.CharDelayMin; span > 0 {
		d += time.Duration(j.rng.Int63n(int64(span)))
	}
	if strings.ContainsRune(".!?,;:", ch) {
		d += j.pace.PunctuationDelay
	}
	if j.pace.ThinkOdds > 0 && j.rng.Intn(j.pace.ThinkOdds) == 0 {
		d += j.pace.ThinkPause
	}
	return d
}

func newInsertionResult(method int, got string, expected int) InsertionResult {
	result := InsertionResult{
		Method:      method,
		InsertedLen: fieldLen(got),
		ExpectedLen: expected,
	}
	if expected > 0 {
		result.Ratio = float64(result.InsertedLen) / float64(expected)
	}
	return result
}

// segment is a maximal run of text that is either pure ASCII or not.
type segment struct {
	text  string
	ascii bool
}

// segmentText splits text into ASCII runs (typed per character) and
// non-ASCII runs (pasted whole).
func segmentText(text string) []segment {
	var segs []segment
	var b strings.Builder
	cur := true
	flush := func() {
		if b.Len() > 0 {
			segs = append(segs, segment{text: b.String(), ascii: cur})
			b.Reset()
		}
	}
	for _, ch := range text {
		ascii := ch < 128
		if ascii != cur {
			flush()
			cur = ascii
		}
		b.WriteRune(ch)
	}
	flush()
	return segs
}

// prefixMatches compares the normalized leading characters of both texts.
// Catches corruption that happens to land inside the length window.
func prefixMatches(got, want string) bool {
	return normalizePrefix(got) == normalizePrefix(want)
}

func normalizePrefix(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	runes := []rune(s)
	if len(runes) > prefixGuardLen {
		runes = runes[:prefixGuardLen]
	}
	return string(runes)
}
