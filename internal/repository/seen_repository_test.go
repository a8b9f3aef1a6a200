package repository

import (
	"context"
	"testing"
	"time"

	"turing_arena/internal/model"
	"turing_arena/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenRepositoryReserveIsUpsert(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewSeenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Reserve(ctx, 1, 10, 100, now.Add(time.Hour)))
	require.NoError(t, repo.Reserve(ctx, 1, 10, 101, now.Add(2*time.Hour)))

	rows, err := repo.FindByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SeenReserved, rows[0].Status)
	require.NotNil(t, rows[0].SessionID)
	assert.Equal(t, uint(101), *rows[0].SessionID)
	require.NotNil(t, rows[0].ReservedUntil)
	assert.WithinDuration(t, now.Add(2*time.Hour), *rows[0].ReservedUntil, time.Second)
}

func TestSeenRepositoryMarkSolvedClearsReservation(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewSeenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Reserve(ctx, 1, 10, 100, now.Add(time.Hour)))
	require.NoError(t, repo.MarkSolved(ctx, 1, 10, 100, now))
	// 预留已被清理时补写一行
	require.NoError(t, repo.MarkSolved(ctx, 1, 11, 100, now))

	rows, err := repo.FindByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, model.SeenSolved, row.Status)
		assert.Nil(t, row.ReservedUntil)
		assert.NotNil(t, row.SolvedAt)
		assert.True(t, row.Blocking(now.Add(1000*time.Hour)))
	}
}

func TestSeenRepositoryPurgeAndExclusion(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewSeenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Reserve(ctx, 1, 10, 100, now.Add(-time.Minute))) // 已过期
	require.NoError(t, repo.Reserve(ctx, 1, 11, 100, now.Add(time.Hour)))
	require.NoError(t, repo.MarkSolved(ctx, 1, 12, 100, now))
	require.NoError(t, repo.Reserve(ctx, 2, 10, 200, now.Add(-time.Minute))) // 其他用户

	var excluded []uint
	require.NoError(t, repo.ExcludedQuestionIDs(1, now).Order("question_id").Pluck("question_id", &excluded).Error)
	assert.Equal(t, []uint{11, 12}, excluded)

	purged, err := repo.PurgeExpired(ctx, 1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	rows, err := repo.FindByUser(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "other users' rows are untouched")
}

func TestSeenRepositoryReleaseSessionKeepsSolved(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewSeenRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Reserve(ctx, 1, 10, 100, now.Add(time.Hour)))
	require.NoError(t, repo.Reserve(ctx, 1, 11, 100, now.Add(time.Hour)))
	require.NoError(t, repo.Reserve(ctx, 1, 12, 101, now.Add(time.Hour)))
	require.NoError(t, repo.MarkSolved(ctx, 1, 10, 100, now))

	released, err := repo.ReleaseSession(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	rows, err := repo.FindByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint(10), rows[0].QuestionID)
	assert.Equal(t, model.SeenSolved, rows[0].Status)
	assert.Equal(t, uint(12), rows[1].QuestionID)
}
