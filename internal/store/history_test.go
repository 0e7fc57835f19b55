package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestRunLifecycle(t *testing.T) {
	h := newTestHistory(t)

	id, err := h.Begin(12, []string{"CEO", "CTO"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := h.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, 12, rec.DomainCount)
	assert.Equal(t, "CEO, CTO", rec.Titles)
	assert.True(t, rec.FinishedAt.IsZero())

	require.NoError(t, h.Update(id, RunRecord{
		SearchID:   "65a1b2c3d4e5f6a7b8c9d0e1",
		SearchURL:  "https://app.apollo.io/#/people?qOrganizationSearchListId=65a1b2c3d4e5f6a7b8c9d0e1",
		ApifyRunID: "run1",
		DatasetID:  "ds1",
	}))
	require.NoError(t, h.Complete(id, 187))

	rec, err = h.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 187, rec.ContactCount)
	assert.Equal(t, "65a1b2c3d4e5f6a7b8c9d0e1", rec.SearchID)
	assert.Equal(t, "run1", rec.ApifyRunID)
	assert.False(t, rec.FinishedAt.IsZero())
}

func TestFail(t *testing.T) {
	h := newTestHistory(t)

	id, err := h.Begin(3, []string{"founders"})
	require.NoError(t, err)
	require.NoError(t, h.Fail(id, errors.New("cloudflare challenge not cleared")))

	rec, err := h.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "cloudflare")
}

func TestList_NewestFirst(t *testing.T) {
	h := newTestHistory(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := h.Begin(i, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	records, err := h.List(2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	all, err := h.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGet_NotFound(t *testing.T) {
	h := newTestHistory(t)
	_, err := h.Get("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOpen_Reopens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")

	h, err := Open(path)
	require.NoError(t, err)
	id, err := h.Begin(1, []string{"CEO"})
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h2, err := Open(path)
	require.NoError(t, err)
	defer h2.Close()

	rec, err := h2.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.DomainCount)
}
