package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autosort/internal/autosort"
)

func TestWriteLoadOrder_ReadBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq1, err := s.WriteLoadOrder(ctx, LoadOrderRecord{SortID: "s1", Game: "skyrim", Plugins: []string{"a.esm", "b&c.esp"}})
	require.NoError(t, err)
	seq2, err := s.WriteLoadOrder(ctx, LoadOrderRecord{SortID: "s2", Game: "skyrim", Plugins: []string{"b&c.esp", "a.esm"}})
	require.NoError(t, err)
	_, err = s.WriteLoadOrder(ctx, LoadOrderRecord{SortID: "o1", Game: "oblivion", Plugins: nil})
	require.NoError(t, err)
	assert.Less(t, seq1, seq2)

	latest, ok, err := s.LatestLoadOrder(ctx, "skyrim")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s2", latest.SortID)
	assert.Equal(t, []string{"b&c.esp", "a.esm"}, latest.Plugins)
	assert.Equal(t, int64(1704110400000), latest.RecordedAt)

	ob, ok, err := s.LatestLoadOrder(ctx, "oblivion")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{}, ob.Plugins)

	var raw string
	require.NoError(t, s.db.QueryRow("SELECT plugins FROM load_orders WHERE seq = ?", seq1).Scan(&raw))
	assert.Equal(t, `["a.esm","b&c.esp"]`, raw)
}

func TestLatestLoadOrder_None(t *testing.T) {
	s := createTestStore(t)
	_, ok, err := s.LatestLoadOrder(context.Background(), "skyrim")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistory_NewestFirstWithLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		_, err := s.WriteLoadOrder(ctx, LoadOrderRecord{SortID: id, Game: "g", Plugins: []string{id}})
		require.NoError(t, err)
	}

	all, err := s.History(ctx, "g", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s3", all[0].SortID)
	assert.Equal(t, "s1", all[2].SortID)

	two, err := s.History(ctx, "g", 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "s2", two[1].SortID)

	none, err := s.History(ctx, "other", 5)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestAttachSortID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteLoadOrder(ctx, LoadOrderRecord{Game: "g", Plugins: []string{"a"}})
	require.NoError(t, err)

	ok, err := s.AttachSortID(ctx, "g", "sort-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AttachSortID(ctx, "g", "sort-2")
	require.NoError(t, err)
	assert.False(t, ok, "row already tagged")

	latest, _, err := s.LatestLoadOrder(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, "sort-1", latest.SortID)
}

func TestRecorder_WritesHostCalls(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	active := "skyrimse"
	rec := NewRecorder(s, func() string { return active })

	host := autosort.Host(rec)
	host.StartActivity(autosort.ActivityGroup, autosort.ActivitySorting)
	host.SetLoadOrder([]string{"b", "a"})
	host.StopActivity(autosort.ActivityGroup, autosort.ActivitySorting)
	host.Notify(autosort.Notification{
		ID:      autosort.NotificationSortFailed,
		Type:    autosort.NotifyWarning,
		Message: "Not sorted because: x is not a valid plugin",
		Err:     errors.New("x is not a valid plugin"),
		Details: map[string]string{"plugin": "x"},
	})
	host.ShowDialog(autosort.Dialog{Title: "ignored"})

	acts, err := s.Activities(ctx, "skyrimse")
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.True(t, acts[0].Started)
	assert.False(t, acts[1].Started)
	assert.Equal(t, "sorting", acts[0].Activity)
	assert.Equal(t, "plugins", acts[0].Group)

	latest, ok, err := s.LatestLoadOrder(ctx, "skyrimse")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, latest.Plugins)
	assert.Empty(t, latest.SortID)

	rec.Link(ctx, autosort.SortOutcome{ID: "sort-9", Game: "skyrimse", Order: []string{"b", "a"}})
	latest, _, err = s.LatestLoadOrder(ctx, "skyrimse")
	require.NoError(t, err)
	assert.Equal(t, "sort-9", latest.SortID)

	notes, err := s.Notifications(ctx, "skyrimse")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "loot-failed", notes[0].ID)
	assert.Equal(t, "warning", notes[0].Type)
	assert.Equal(t, "x is not a valid plugin", notes[0].Error)
	assert.Equal(t, map[string]string{"plugin": "x"}, notes[0].Details)
}

func TestRecorder_LinkIgnoresFailures(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := NewRecorder(s, func() string { return "g" })

	rec.SetLoadOrder([]string{"a"})
	rec.Link(ctx, autosort.SortOutcome{ID: "x", Game: "g", Err: errors.New("boom")})
	rec.Link(ctx, autosort.SortOutcome{ID: "y", Game: "g", Skipped: true})

	latest, _, err := s.LatestLoadOrder(ctx, "g")
	require.NoError(t, err)
	assert.Empty(t, latest.SortID)
}

func TestRecorder_WriteFailureIsSwallowed(t *testing.T) {
	s := createTestStore(t)
	rec := NewRecorder(s, func() string { return "g" })
	require.NoError(t, s.Close())

	assert.NotPanics(t, func() {
		rec.SetLoadOrder([]string{"a"})
		rec.Notify(autosort.Notification{Message: "m"})
		rec.StartActivity("plugins", "sorting")
	})
}

func TestRecorder_ThroughTee(t *testing.T) {
	s := createTestStore(t)
	rec := NewRecorder(s, func() string { return "g" })
	host := autosort.Tee(rec)

	host.SetLoadOrder([]string{"z"})
	history, err := s.History(context.Background(), "g", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
}
