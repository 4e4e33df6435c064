package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeField simulates a rich editor field. Default behavior: SetDirect
// replaces the content, everything else inserts at the cursor. Knobs
// override individual methods to model platform misbehavior.
type fakeField struct {
	content string

	onSetDirect func(f *fakeField, text string)
	onPaste     func(f *fakeField, text string)
	onDispatch  func(f *fakeField, text string)
	onType      func(f *fakeField, chunk string)
	clearBroken bool
}

func (f *fakeField) Focus(context.Context) error { return nil }

func (f *fakeField) Clear(context.Context) error {
	if !f.clearBroken {
		f.content = ""
	}
	return nil
}

func (f *fakeField) SetDirect(_ context.Context, text string) error {
	if f.onSetDirect != nil {
		f.onSetDirect(f, text)
	} else {
		f.content = text
	}
	return nil
}

func (f *fakeField) Paste(_ context.Context, text string) error {
	if f.onPaste != nil {
		f.onPaste(f, text)
	} else {
		f.content += text
	}
	return nil
}

func (f *fakeField) DispatchInput(_ context.Context, text string) error {
	if f.onDispatch != nil {
		f.onDispatch(f, text)
	} else {
		f.content += text
	}
	return nil
}

func (f *fakeField) TypeChunk(_ context.Context, chunk string) error {
	if f.onType != nil {
		f.onType(f, chunk)
	} else {
		f.content += chunk
	}
	return nil
}

func (f *fakeField) ReadBack(context.Context) (string, error) { return f.content, nil }

func testPace() Pace {
	return Pace{
		CharDelayMin: time.Microsecond,
		CharDelayMax: 2 * time.Microsecond,
	}
}

func newTestInjector(t *testing.T) *TextInjector {
	t.Helper()
	return NewTextInjector(testPace(), zap.NewNop())
}

func TestInsertMethod1Succeeds(t *testing.T) {
	injector := newTestInjector(t)
	field := &fakeField{}
	text := strings.Repeat("x", 280)

	res, err := injector.Insert(context.Background(), field, text, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Method)
	assert.InDelta(t, 1.0, res.Ratio, 0.001)
}

func TestInsertFallsThroughToTyping(t *testing.T) {
	injector := newTestInjector(t)
	text := strings.Repeat("ab", 140)
	field := &fakeField{
		// Method 1 silently truncates, methods 2 and 3 never commit.
		onSetDirect: func(f *fakeField, s string) { f.content = s[:50] },
		onPaste:     func(f *fakeField, s string) {},
		onDispatch:  func(f *fakeField, s string) {},
	}

	res, err := injector.Insert(context.Background(), field, text, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Method)
	assert.InDelta(t, 1.0, res.Ratio, 0.001)
	assert.Equal(t, text, field.content)
}

func TestInsertStaleAppendTriggersReset(t *testing.T) {
	injector := newTestInjector(t)
	text := strings.Repeat("y", 100)

	// Clearing never works and direct insertion appends to the leftover
	// draft, so the first pass lands at ratio 2.0.
	dirty := &fakeField{
		content:     text,
		clearBroken: true,
		onSetDirect: func(f *fakeField, s string) { f.content += s },
	}
	resets := 0
	fresh := &fakeField{}
	reset := func(ctx context.Context) (EditField, error) {
		resets++
		return fresh, nil
	}

	res, err := injector.Insert(context.Background(), dirty, text, reset)
	require.NoError(t, err)
	assert.Equal(t, 1, resets, "exactly one reset recovery pass")
	assert.Equal(t, 4, res.Method)
	assert.InDelta(t, 1.0, res.Ratio, 0.001)
	assert.Equal(t, text, fresh.content)
}

func TestInsertPersistentTruncationFails(t *testing.T) {
	injector := newTestInjector(t)
	text := strings.Repeat("z", 200)
	truncating := func(f *fakeField, s string) { f.content = s[:len(s)/2] }
	field := &fakeField{
		onSetDirect: truncating,
		onPaste:     truncating,
		onDispatch:  truncating,
		onType:      func(f *fakeField, chunk string) {}, // typing never lands
	}
	fresh := &fakeField{
		onSetDirect: truncating,
		onPaste:     truncating,
		onDispatch:  truncating,
		onType:      func(f *fakeField, chunk string) {},
	}
	reset := func(ctx context.Context) (EditField, error) { return fresh, nil }

	_, err := injector.Insert(context.Background(), field, text, reset)
	var insErr *InsertionError
	require.ErrorAs(t, err, &insErr)
	assert.Less(t, insErr.Result.Ratio, ratioMin)
}

func TestInsertPrefixGuardCatchesCorruption(t *testing.T) {
	injector := newTestInjector(t)
	text := strings.Repeat("good content here. ", 10)
	wrong := strings.Repeat("zzzz content here. ", 10)
	corrupt := func(f *fakeField, s string) { f.content = wrong }
	field := &fakeField{onSetDirect: corrupt, onPaste: corrupt, onDispatch: corrupt,
		onType: func(f *fakeField, chunk string) { f.content = wrong }}

	_, err := injector.Insert(context.Background(), field, text, nil)
	var insErr *InsertionError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, "content prefix mismatch", insErr.Reason)
}

func TestInsertEmojiRoutedThroughPaste(t *testing.T) {
	injector := newTestInjector(t)
	text := "launch day 🚀🔥 let's go"
	pasted := []string{}
	field := &fakeField{
		onSetDirect: func(f *fakeField, s string) {},
		onDispatch:  func(f *fakeField, s string) {},
		// Whole-text pastes are swallowed; only short runs land, so the
		// chain has to reach humanized typing.
		onPaste: func(f *fakeField, s string) {
			if len([]rune(s)) > 10 {
				return
			}
			pasted = append(pasted, s)
			f.content += s
		},
	}

	res, err := injector.Insert(context.Background(), field, text, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Method)
	assert.Equal(t, text, field.content)
	assert.Contains(t, pasted, "🚀🔥", "the emoji run goes through the clipboard path")
}

func TestSegmentText(t *testing.T) {
	cases := []struct {
		in   string
		want []segment
	}{
		{"plain ascii", []segment{{"plain ascii", true}}},
		{"hi 👋", []segment{{"hi ", true}, {"👋", false}}},
		{"👋👋 ok", []segment{{"👋👋", false}, {" ok", true}}},
		{"", nil},
	}
	for _, tc := range cases {
		got := segmentText(tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestNormalizePrefix(t *testing.T) {
	a := normalizePrefix("Hello   World, this is a LONG post about things")
	b := normalizePrefix("hello world, this is a long post about other things")
	assert.Equal(t, a, b, "prefix window should ignore the divergent tail")

	assert.NotEqual(t, normalizePrefix("hello world"), normalizePrefix("goodbye world"))
}
