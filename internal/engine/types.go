package engine

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Mode selects how a request's entries are published.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeThread Mode = "thread"
	ModeQuote  Mode = "quote"
	ModeMedia  Mode = "media"
)

// Thread size bounds enforced before any browser interaction.
const (
	MinThreadEntries = 2
	MaxThreadEntries = 25
)

// MediaKind declares what kind of file a MediaRef points at.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaGIF   MediaKind = "gif"
)

// TextEntry is one unit of text to publish. ExpectedLen is the rune count
// the injector verifies against after insertion.
type TextEntry struct {
	Text        string
	ExpectedLen int
}

// NewTextEntry derives ExpectedLen from the text itself.
func NewTextEntry(text string) TextEntry {
	return TextEntry{Text: text, ExpectedLen: utf8.RuneCountInString(text)}
}

// MediaRef points at a local file to attach. The engine never deletes the
// file; the caller owns its lifecycle.
type MediaRef struct {
	Path string
	Kind MediaKind
}

// PublishRequest is one logical publish operation. Immutable once handed to
// the orchestrator; it produces exactly one terminal Outcome.
type PublishRequest struct {
	ID             string
	Mode           Mode
	Entries        []TextEntry
	Attachment     *MediaRef
	QuoteTargetURL string
	// Tags carry hook/style/topic labels through to the history recorder
	// unchanged. The engine never interprets them.
	Tags []string
}

// NewRequest builds a request with a generated ID.
func NewRequest(mode Mode, entries ...TextEntry) *PublishRequest {
	return &PublishRequest{ID: uuid.NewString(), Mode: mode, Entries: entries}
}

// Validate rejects malformed requests before any browser work happens.
func (r *PublishRequest) Validate() error {
	switch r.Mode {
	case ModeSingle, ModeQuote, ModeMedia:
		if len(r.Entries) != 1 {
			return fmt.Errorf("%s mode requires exactly 1 entry, got %d", r.Mode, len(r.Entries))
		}
	case ModeThread:
		if len(r.Entries) < MinThreadEntries || len(r.Entries) > MaxThreadEntries {
			return fmt.Errorf("thread mode requires %d-%d entries, got %d",
				MinThreadEntries, MaxThreadEntries, len(r.Entries))
		}
	default:
		return fmt.Errorf("unknown publish mode %q", r.Mode)
	}
	for i, e := range r.Entries {
		if e.Text == "" {
			return fmt.Errorf("entry %d is empty", i)
		}
	}
	if r.Mode == ModeQuote && r.QuoteTargetURL == "" {
		return fmt.Errorf("quote mode requires a quote target URL")
	}
	if r.Mode == ModeMedia && r.Attachment == nil {
		return fmt.Errorf("media mode requires an attachment")
	}
	return nil
}

// OutcomeKind is the terminal classification of a publish request.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeFailure        OutcomeKind = "failure"
	OutcomePossiblyPosted OutcomeKind = "possibly_posted"
	OutcomeDuplicate      OutcomeKind = "duplicate"
	OutcomeSessionExpired OutcomeKind = "session_expired"
	// OutcomeSkipped is reported for batch items never attempted because an
	// earlier request hit session expiry.
	OutcomeSkipped OutcomeKind = "skipped"
)

// Outcome is the only thing returned to callers. It is never ambiguous past
// this boundary even when the underlying browser signal was.
type Outcome struct {
	Kind        OutcomeKind
	Err         string
	NeedsNewTab bool
	// Diagnostic fields; logged and recorded, not part of the contract.
	MethodUsed  int
	Attempts    int
	PostedCount int
}

// Settled reports whether retrying this outcome could create a duplicate
// post. Duplicate and PossiblyPosted are success-equivalent for that reason.
func (o Outcome) Settled() bool {
	switch o.Kind {
	case OutcomeSuccess, OutcomeDuplicate, OutcomePossiblyPosted:
		return true
	}
	return false
}

// ComposerState classifies the content-entry surface inside a tab.
type ComposerState int

const (
	ComposerClosed ComposerState = iota
	ComposerOpen
	ComposerOrphaned
)

func (s ComposerState) String() string {
	switch s {
	case ComposerClosed:
		return "closed"
	case ComposerOpen:
		return "open"
	case ComposerOrphaned:
		return "orphaned"
	}
	return "unknown"
}

// InsertionResult records how one text insertion went.
type InsertionResult struct {
	Method      int // 1..4, which fallback method landed the text
	InsertedLen int
	ExpectedLen int
	Ratio       float64
}

// ProgressPhase labels thread composition progress events.
type ProgressPhase string

const (
	PhaseComposing ProgressPhase = "composing"
	PhasePosted    ProgressPhase = "posted"
)

// ProgressEvent is emitted per thread entry. Purely observational; the
// engine never blocks on a slow consumer.
type ProgressEvent struct {
	Index int
	Total int
	Phase ProgressPhase
}

// SessionContext carries pacing state through calls instead of module
// globals. One instance per orchestrator.
type SessionContext struct {
	LastPublishAt time.Time
	LastWasThread bool
	CooldownUntil time.Time
}

// NextPublishDelay returns how long to wait before the next publish, given
// the configured inter-post and post-thread delays.
func (s *SessionContext) NextPublishDelay(now time.Time, postDelay, threadDelay time.Duration) time.Duration {
	var until time.Time
	if !s.LastPublishAt.IsZero() {
		d := postDelay
		if s.LastWasThread {
			d = threadDelay
		}
		until = s.LastPublishAt.Add(d)
	}
	if s.CooldownUntil.After(until) {
		until = s.CooldownUntil
	}
	if until.After(now) {
		return until.Sub(now)
	}
	return 0
}

// MarkPublished records a completed publish for pacing purposes.
func (s *SessionContext) MarkPublished(now time.Time, wasThread bool) {
	s.LastPublishAt = now
	s.LastWasThread = wasThread
}
