package repository

import (
	"context"
	"testing"
	"time"

	"turing_arena/internal/model"
	"turing_arena/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func createSession(t *testing.T, db *gorm.DB, userID uint, kind model.ChoiceKind, questions []model.Question) *model.QuizSession {
	t.Helper()
	repo := NewSessionRepository(db)
	ctx := context.Background()
	s := &model.QuizSession{
		UserID:                userID,
		Difficulty:            model.DifficultyNormal,
		ChoiceCount:           int(kind),
		NumQuestionsRequested: len(questions),
		Status:                model.SessionActive,
		StartedAt:             time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, s))

	items := make([]model.SessionQuestion, 0, len(questions))
	for i, q := range questions {
		shuffle := model.ShuffleMap{}
		for j, letter := range kind.Letters() {
			shuffle[letter] = q.Options[j].ID
		}
		items = append(items, model.SessionQuestion{
			SessionID:  s.ID,
			QuestionID: q.ID,
			OrderIndex: i,
			ShuffleMap: datatypes.NewJSONType(shuffle),
		})
	}
	require.NoError(t, repo.CreateQuestions(ctx, items))
	return s
}

func TestSessionRepositoryActiveLookup(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	active, err := repo.FindActiveByUser(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, active)

	s := createSession(t, db, 1, model.TwoChoice, nil)
	active, err = repo.FindActiveByUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, s.ID, active.ID)

	changed, err := repo.MarkAbandoned(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.MarkAbandoned(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	n, err := repo.CountActiveByUser(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repo.FindByIDForUser(ctx, s.ID, 2)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSessionRepositoryShuffleRoundTrip(t *testing.T) {
	db := testutil.NewDB(t)
	models := testutil.CreateModels(t, db)
	qs := testutil.CreateQuestions(t, db, models, 2, testutil.QuestionSpec{})
	s := createSession(t, db, 1, model.FourChoice, qs)

	sq, err := NewSessionRepository(db).FindQuestion(context.Background(), s.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, qs[1].ID, sq.QuestionID)
	assert.Equal(t, qs[1].Options[0].ID, sq.ShuffleMap.Data()["A"])
	assert.Equal(t, qs[1].Options[3].ID, sq.ShuffleMap.Data()["D"])
	assert.Len(t, sq.Question.Options, 4)
	assert.NotNil(t, sq.Question.Options[1].LlmModel)

	_, err = NewSessionRepository(db).FindQuestion(context.Background(), s.ID, 5)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSessionRepositoryPhaseRecordsAreWriteOnce(t *testing.T) {
	db := testutil.NewDB(t)
	models := testutil.CreateModels(t, db)
	qs := testutil.CreateQuestions(t, db, models, 1, testutil.QuestionSpec{})
	s := createSession(t, db, 1, model.FourChoice, qs)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	sq, err := repo.FindQuestion(ctx, s.ID, 0)
	require.NoError(t, err)
	now := time.Now().UTC()

	// 第一阶段未作答时不能写第二阶段
	ok, err := repo.RecordPhase2(ctx, sq.ID, Phase2Record{Assignment: model.AssignmentMap{}, AnsweredAt: now})
	require.NoError(t, err)
	assert.False(t, ok)

	ms := 1200
	ok, err = repo.RecordPhase1(ctx, sq.ID, Phase1Record{SelectedLetter: "B", IsCorrect: false, AnsweredAt: now, TimeMs: &ms})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.RecordPhase1(ctx, sq.ID, Phase1Record{SelectedLetter: "A", IsCorrect: true, AnsweredAt: now})
	require.NoError(t, err)
	assert.False(t, ok)

	assignment := model.AssignmentMap{"1": "gpt", "2": "claude", "3": "gemini"}
	ok, err = repo.RecordPhase2(ctx, sq.ID, Phase2Record{Assignment: assignment, Score: 2, AnsweredAt: now})
	require.NoError(t, err)
	assert.True(t, ok)

	sq, err = repo.FindQuestion(ctx, s.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, sq.Phase1SelectedLetter)
	assert.Equal(t, "B", *sq.Phase1SelectedLetter)
	assert.Equal(t, 1200, *sq.Phase1TimeMs)
	assert.Equal(t, assignment, sq.Phase2Assignment.Data())
	assert.Equal(t, 2, *sq.Phase2Score)
	assert.True(t, sq.Complete(model.FourChoice))
}

func TestSessionRepositoryMarkFinishedOnce(t *testing.T) {
	db := testutil.NewDB(t)
	s := createSession(t, db, 1, model.TwoChoice, nil)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	first := time.Now().UTC().Truncate(time.Second)
	changed, err := repo.MarkFinished(ctx, s.ID, first)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkFinished(ctx, s.ID, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.FindByIDForUser(ctx, s.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFinished, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, first.Equal(*got.FinishedAt))
}

func TestStatsRepositoryTotals(t *testing.T) {
	db := testutil.NewDB(t)
	models := testutil.CreateModels(t, db)
	qs := testutil.CreateQuestions(t, db, models, 3, testutil.QuestionSpec{})
	s := createSession(t, db, 7, model.FourChoice, qs)
	sessions := NewSessionRepository(db)
	stats := NewStatsRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, correct := range []bool{true, false} {
		sq, err := sessions.FindQuestion(ctx, s.ID, i)
		require.NoError(t, err)
		_, err = sessions.RecordPhase1(ctx, sq.ID, Phase1Record{SelectedLetter: "A", IsCorrect: correct, AnsweredAt: now})
		require.NoError(t, err)
		_, err = sessions.RecordPhase2(ctx, sq.ID, Phase2Record{Assignment: model.AssignmentMap{}, Score: 3 - i*2, IsPerfect: i == 0, AnsweredAt: now})
		require.NoError(t, err)
	}

	totals, err := stats.SessionTotals(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionTotals{
		Total:          3,
		Phase1Answered: 2,
		Phase1Correct:  1,
		Phase2Answered: 2,
		Phase2Points:   4,
		Phase2Perfect:  1,
	}, totals)

	outcomes, err := stats.Phase1Outcomes(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, outcomes)

	user, err := stats.UserTotals(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, UserTotals{Phase1Count: 2, Phase1Correct: 1, Phase2Count: 2, Phase2Points: 4}, user)
}
