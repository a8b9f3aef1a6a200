package service

import (
	"context"
	"testing"
	"time"

	"turing_arena/internal/model"
	"turing_arena/internal/testutil"
	"turing_arena/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockCountsPerUser(t *testing.T) {
	f := newFixture(t)
	f.questions(t, 5, model.TwoChoice)
	f.questions(t, 2, model.FourChoice)
	testutil.CreateQuestion(t, f.db, f.models, testutil.QuestionSpec{Kind: model.TwoChoice, Status: model.QuestionDraft})
	ctx := context.Background()

	stock, err := f.alloc.Stock(ctx, 1, model.DifficultyNormal, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, stock.Eligible)
	assert.Equal(t, 5, stock.Available)
	assert.Equal(t, []int{1, 3, 5, 10}, stock.AllowedNumQuestions)

	a := f.start(t, 1, model.TwoChoice, 3)
	f.answerPhase1(t, 1, a.Session.ID, 0, false)

	stock, err = f.alloc.Stock(ctx, 1, model.DifficultyNormal, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, stock.Eligible)
	assert.Equal(t, 2, stock.Available)
	assert.Equal(t, 1, stock.Solved)
	assert.Equal(t, 2, stock.Reserved)
	assert.Equal(t, stock.Eligible, stock.Available+stock.Solved+stock.Reserved)

	// 其他用户和其他题型不受影响
	other, err := f.alloc.Stock(ctx, 2, model.DifficultyNormal, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, other.Available)
	four, err := f.alloc.Stock(ctx, 1, model.DifficultyNormal, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, four.Available)
	assert.Zero(t, four.Solved+four.Reserved)

	// 预留过期后按可用计算，即使还没有被清理
	f.clock.Advance(25 * time.Hour)
	stock, err = f.alloc.Stock(ctx, 1, model.DifficultyNormal, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, stock.Available)
	assert.Equal(t, 1, stock.Solved)
	assert.Zero(t, stock.Reserved)
}

func TestStockValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.alloc.Stock(ctx, 1, model.Difficulty("impossible"), 2)
	assert.ErrorIs(t, err, util.ErrInvalidRequest)
	_, err = f.alloc.Stock(ctx, 1, model.DifficultyNormal, 3)
	assert.ErrorIs(t, err, util.ErrInvalidRequest)
}
