package engine

import (
	"strings"
	"testing"
	"time"
)

func threadReq(n int) *PublishRequest {
	entries := make([]TextEntry, n)
	for i := range entries {
		entries[i] = NewTextEntry("entry text")
	}
	return NewRequest(ModeThread, entries...)
}

func TestValidate(t *testing.T) {
	media := &MediaRef{Path: "/tmp/pic.png", Kind: MediaImage}

	cases := []struct {
		name    string
		req     *PublishRequest
		wantErr bool
	}{
		{"single ok", NewRequest(ModeSingle, NewTextEntry("hi")), false},
		{"single two entries", NewRequest(ModeSingle, NewTextEntry("a"), NewTextEntry("b")), true},
		{"single empty text", NewRequest(ModeSingle, TextEntry{}), true},
		{"thread min", threadReq(2), false},
		{"thread max", threadReq(25), false},
		{"thread too short", threadReq(1), true},
		{"thread too long", threadReq(26), true},
		{"quote missing url", NewRequest(ModeQuote, NewTextEntry("take a look")), true},
		{"media missing attachment", NewRequest(ModeMedia, NewTextEntry("caption")), true},
		{"unknown mode", &PublishRequest{ID: "x", Mode: "story", Entries: []TextEntry{NewTextEntry("hi")}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}

	quote := NewRequest(ModeQuote, NewTextEntry("take a look"))
	quote.QuoteTargetURL = "https://x.com/someone/status/123"
	if err := quote.Validate(); err != nil {
		t.Errorf("quote with target URL should validate: %v", err)
	}

	withMedia := NewRequest(ModeMedia, NewTextEntry("caption"))
	withMedia.Attachment = media
	if err := withMedia.Validate(); err != nil {
		t.Errorf("media with attachment should validate: %v", err)
	}
}

func TestNewTextEntryCountsRunes(t *testing.T) {
	e := NewTextEntry("héllo 🚀")
	if e.ExpectedLen != 7 {
		t.Errorf("ExpectedLen = %d, want 7 runes", e.ExpectedLen)
	}
	long := NewTextEntry(strings.Repeat("a", 280))
	if long.ExpectedLen != 280 {
		t.Errorf("ExpectedLen = %d, want 280", long.ExpectedLen)
	}
}

func TestNewRequestAssignsID(t *testing.T) {
	a := NewRequest(ModeSingle, NewTextEntry("x"))
	b := NewRequest(ModeSingle, NewTextEntry("x"))
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("request IDs must be unique and non-empty: %q vs %q", a.ID, b.ID)
	}
}

func TestOutcomeSettled(t *testing.T) {
	settled := []OutcomeKind{OutcomeSuccess, OutcomeDuplicate, OutcomePossiblyPosted}
	for _, k := range settled {
		if !(Outcome{Kind: k}).Settled() {
			t.Errorf("%s should be settled", k)
		}
	}
	unsettled := []OutcomeKind{OutcomeFailure, OutcomeSessionExpired, OutcomeSkipped}
	for _, k := range unsettled {
		if (Outcome{Kind: k}).Settled() {
			t.Errorf("%s should not be settled", k)
		}
	}
}

func TestNextPublishDelay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	post := 60 * time.Second
	thread := 90 * time.Second

	var fresh SessionContext
	if d := fresh.NextPublishDelay(now, post, thread); d != 0 {
		t.Errorf("fresh session should not wait, got %v", d)
	}

	var s SessionContext
	s.MarkPublished(now.Add(-20*time.Second), false)
	if d := s.NextPublishDelay(now, post, thread); d != 40*time.Second {
		t.Errorf("after single post: delay = %v, want 40s", d)
	}

	s.MarkPublished(now.Add(-20*time.Second), true)
	if d := s.NextPublishDelay(now, post, thread); d != 70*time.Second {
		t.Errorf("after thread: delay = %v, want 70s", d)
	}

	s.CooldownUntil = now.Add(5 * time.Minute)
	if d := s.NextPublishDelay(now, post, thread); d != 5*time.Minute {
		t.Errorf("cooldown should dominate: delay = %v, want 5m", d)
	}

	s = SessionContext{LastPublishAt: now.Add(-2 * time.Hour)}
	if d := s.NextPublishDelay(now, post, thread); d != 0 {
		t.Errorf("stale pacing state should not wait, got %v", d)
	}
}
