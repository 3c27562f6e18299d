package badger_test

import (
	"context"
	"testing"

	pkgerrors "github.com/absmach/fedsim/pkg/errors"
	"github.com/absmach/fedsim/pkg/storage/badger"
	"github.com/absmach/fedsim/pkg/storage/testutil"
	"github.com/absmach/fedsim/training"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *badger.Database {
	t.Helper()

	db, err := badger.NewDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestRunRepositoryCRUD(t *testing.T) {
	db := newTestDB(t)
	repo := badger.NewRunRepository(db)
	ctx := context.Background()

	run := testutil.TestRun(uuid.NewString())

	created, err := repo.Create(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, run.ID, created.ID)

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Config, got.Config)
	assert.Equal(t, run.Budget, got.Budget)
	require.Len(t, got.History, 1)
	assert.Equal(t, run.History[0].Metrics, got.History[0].Metrics)
	assert.Equal(t, run.Institutions, got.Institutions)

	got.State = training.Completed
	got.Round = 2
	require.NoError(t, repo.Update(ctx, got))

	updated, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, training.Completed, updated.State)
	assert.Equal(t, 2, updated.Round)

	require.NoError(t, repo.Delete(ctx, run.ID))
	_, err = repo.Get(ctx, run.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestRunRepositoryNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := badger.NewRunRepository(db)
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	err = repo.Update(ctx, testutil.TestRun("missing"))
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestRunRepositoryList(t *testing.T) {
	db := newTestDB(t)
	repo := badger.NewRunRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, testutil.TestRun(uuid.NewString()))
		require.NoError(t, err)
	}

	runs, total, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), total)
	assert.Len(t, runs, 5)

	runs, total, err = repo.List(ctx, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), total)
	assert.Len(t, runs, 2)
}
