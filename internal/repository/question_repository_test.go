package repository

import (
	"context"
	"testing"

	"turing_arena/internal/model"
	"turing_arena/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEligibleIDsFiltersIncompleteQuestions(t *testing.T) {
	db := testutil.NewDB(t)
	models := testutil.CreateModels(t, db)
	ctx := context.Background()

	good := testutil.CreateQuestion(t, db, models, testutil.QuestionSpec{})
	testutil.CreateQuestion(t, db, models, testutil.QuestionSpec{Status: model.QuestionDraft})
	testutil.CreateQuestion(t, db, models, testutil.QuestionSpec{Difficulty: model.DifficultyHard})
	testutil.CreateQuestion(t, db, models, testutil.QuestionSpec{FailGeneration: true})
	testutil.CreateQuestion(t, db, models, testutil.QuestionSpec{HumanCount: 2})
	// 两个 AI 选项来自同一模型系列
	testutil.CreateQuestion(t, db, models, testutil.QuestionSpec{
		AIModels: []model.LlmModel{models.GPT, models.GPT, models.Claude},
	})
	// 只有两个 AI 选项
	testutil.CreateQuestion(t, db, models, testutil.QuestionSpec{
		AIModels: []model.LlmModel{models.GPT, models.Claude},
	})
	two := testutil.CreateQuestion(t, db, models, testutil.QuestionSpec{Kind: model.TwoChoice})

	repo := NewQuestionRepository(db)

	ids, err := repo.EligibleIDs(ctx, model.DifficultyNormal, model.FourChoice)
	require.NoError(t, err)
	assert.Equal(t, []uint{good.ID}, ids)

	ids, err = repo.EligibleIDs(ctx, model.DifficultyNormal, model.TwoChoice)
	require.NoError(t, err)
	assert.Equal(t, []uint{two.ID}, ids)

	ids, err = repo.EligibleIDs(ctx, model.DifficultyEasy, model.FourChoice)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEligibleIDsIgnoresDeletedOptions(t *testing.T) {
	db := testutil.NewDB(t)
	models := testutil.CreateModels(t, db)
	q := testutil.CreateQuestion(t, db, models, testutil.QuestionSpec{Kind: model.TwoChoice})

	repo := NewQuestionRepository(db)
	ids, err := repo.EligibleIDs(context.Background(), model.DifficultyNormal, model.TwoChoice)
	require.NoError(t, err)
	require.Equal(t, []uint{q.ID}, ids)

	require.NoError(t, db.Delete(&q.Options[1]).Error)

	ids, err = repo.EligibleIDs(context.Background(), model.DifficultyNormal, model.TwoChoice)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAvailableIDsExcludesSubquery(t *testing.T) {
	db := testutil.NewDB(t)
	models := testutil.CreateModels(t, db)
	qs := testutil.CreateQuestions(t, db, models, 3, testutil.QuestionSpec{})

	excluded := db.Model(&model.Question{}).Select("id").Where("id = ?", qs[1].ID)
	ids, err := NewQuestionRepository(db).AvailableIDs(context.Background(), model.DifficultyNormal, model.FourChoice, excluded)
	require.NoError(t, err)
	assert.Equal(t, []uint{qs[0].ID, qs[2].ID}, ids)
}

func TestFindWithOptionsPreloadsModels(t *testing.T) {
	db := testutil.NewDB(t)
	models := testutil.CreateModels(t, db)
	q := testutil.CreateQuestion(t, db, models, testutil.QuestionSpec{})

	found, err := NewQuestionRepository(db).FindWithOptions(context.Background(), []uint{q.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Len(t, found[0].Options, 4)
	assert.True(t, found[0].IsComplete())
	assert.Equal(t, "今日の夕飯、何にしようかな", found[0].Scenario.UserMessageText)

	empty, err := NewQuestionRepository(db).FindWithOptions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
