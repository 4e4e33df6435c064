package history

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialpub/internal/engine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "publishes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openTestStore(t)

	req := engine.NewRequest(engine.ModeSingle, engine.NewTextEntry("first post of the day"))
	req.Tags = []string{"hook:question", "topic:go"}
	out := engine.Outcome{Kind: engine.OutcomeSuccess, MethodUsed: 1, Attempts: 1}
	require.NoError(t, store.Append(req, out))

	thread := engine.NewRequest(engine.ModeThread,
		engine.NewTextEntry("thread opener"), engine.NewTextEntry("thread closer"))
	threadOut := engine.Outcome{Kind: engine.OutcomePossiblyPosted, Err: "publish not visually confirmed", Attempts: 2}
	require.NoError(t, store.Append(thread, threadOut))

	records, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := map[string]Record{}
	for _, r := range records {
		byID[r.ID] = r
	}

	single := byID[req.ID]
	assert.Equal(t, "single", single.Mode)
	assert.Equal(t, 1, single.EntryCount)
	assert.Equal(t, "first post of the day", single.TextPrefix)
	assert.Equal(t, []string{"hook:question", "topic:go"}, single.Tags)
	assert.Equal(t, "success", single.Outcome)

	tr := byID[thread.ID]
	assert.Equal(t, "thread", tr.Mode)
	assert.Equal(t, 2, tr.EntryCount)
	assert.Equal(t, "possibly_posted", tr.Outcome)
	assert.Equal(t, 2, tr.Attempts)
	assert.Empty(t, tr.Tags)
}

func TestAppendTruncatesPrefix(t *testing.T) {
	store := openTestStore(t)

	long := strings.Repeat("é", 200)
	req := engine.NewRequest(engine.ModeSingle, engine.NewTextEntry(long))
	require.NoError(t, store.Append(req, engine.Outcome{Kind: engine.OutcomeSuccess}))

	records, err := store.Recent(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 60, len([]rune(records[0].TextPrefix)), "prefix is capped at 60 runes, not bytes")
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)
	for i := 0; i < 5; i++ {
		req := engine.NewRequest(engine.ModeSingle, engine.NewTextEntry("post"))
		require.NoError(t, store.Append(req, engine.Outcome{Kind: engine.OutcomeSuccess}))
	}

	records, err := store.Recent(3)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	records, err = store.Recent(0)
	require.NoError(t, err)
	assert.Len(t, records, 5, "non-positive limit falls back to the default window")
}

func TestRecentEmptyStore(t *testing.T) {
	store := openTestStore(t)
	records, err := store.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "publishes.db")
	first, err := Open(path)
	require.NoError(t, err)
	req := engine.NewRequest(engine.ModeSingle, engine.NewTextEntry("survives reopen"))
	require.NoError(t, first.Append(req, engine.Outcome{Kind: engine.OutcomeSuccess}))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()
	records, err := second.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, req.ID, records[0].ID)
}
