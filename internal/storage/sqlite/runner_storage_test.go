package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/interfaces"
	"github.com/ternarybob/runpack/internal/models"
)

func newTestRunnerStorage(t *testing.T) interfaces.RunnerStorage {
	t.Helper()
	return NewRunnerStorage(newTestDB(t), arbor.NewLogger())
}

func testRunner(id, name string, caps ...string) *models.Runner {
	now := time.Now().UnixMilli()
	return &models.Runner{
		ID:           id,
		Name:         name,
		Capabilities: caps,
		RegisteredAt: now,
		LastSeen:     now,
	}
}

func TestRegisterRunner_Upsert(t *testing.T) {
	store := newTestRunnerStorage(t)
	ctx := context.Background()

	require.NoError(t, store.RegisterRunner(ctx, testRunner("r1", "worker-1", "render")))

	got, err := store.GetRunner(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "worker-1", got.Name)
	assert.Equal(t, []string{"render"}, got.Capabilities)

	// Re-registration replaces name and capabilities.
	require.NoError(t, store.RegisterRunner(ctx, testRunner("r1", "worker-1b", "render", "export")))

	got, err = store.GetRunner(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "worker-1b", got.Name)
	assert.Equal(t, []string{"render", "export"}, got.Capabilities)

	runners, err := store.ListRunners(ctx)
	require.NoError(t, err)
	assert.Len(t, runners, 1)
}

func TestGetRunner_NotFound(t *testing.T) {
	store := newTestRunnerStorage(t)

	_, err := store.GetRunner(context.Background(), "missing")
	assert.Equal(t, interfaces.ErrNotFound, err)
}

func TestTouchRunner(t *testing.T) {
	store := newTestRunnerStorage(t)
	ctx := context.Background()

	runner := testRunner("r1", "worker-1", "render")
	runner.LastSeen = time.Now().Add(-time.Hour).UnixMilli()
	require.NoError(t, store.RegisterRunner(ctx, runner))

	touched, err := store.TouchRunner(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, touched)

	got, err := store.GetRunner(ctx, "r1")
	require.NoError(t, err)
	assert.Greater(t, got.LastSeen, runner.LastSeen)

	touched, err = store.TouchRunner(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, touched)
}

func TestListRunners_MostRecentFirst(t *testing.T) {
	store := newTestRunnerStorage(t)
	ctx := context.Background()

	older := testRunner("r-old", "old", "render")
	older.LastSeen = 1000
	newer := testRunner("r-new", "new", "render")
	newer.LastSeen = 2000

	require.NoError(t, store.RegisterRunner(ctx, older))
	require.NoError(t, store.RegisterRunner(ctx, newer))

	runners, err := store.ListRunners(ctx)
	require.NoError(t, err)
	require.Len(t, runners, 2)
	assert.Equal(t, "r-new", runners[0].ID)
	assert.Equal(t, "r-old", runners[1].ID)
}

func TestDeleteRunner(t *testing.T) {
	store := newTestRunnerStorage(t)
	ctx := context.Background()

	require.NoError(t, store.RegisterRunner(ctx, testRunner("r1", "worker-1", "render")))

	deleted, err := store.DeleteRunner(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteRunner(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, deleted)
}
