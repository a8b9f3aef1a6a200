package service

import (
	"testing"

	"turing_arena/internal/model"
	"turing_arena/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func option(id uint, author model.AuthorType, slug string) model.Option {
	o := model.Option{AuthorType: author, GenerationStatus: model.GenerationOK}
	o.ID = id
	if slug != "" {
		o.LlmModel = &model.LlmModel{DisplayGroupSlug: slug, DisplayGroup: slug}
	}
	return o
}

// O1->gpt, O2->claude, O3->gemini, O9 为人类选项
func fourChoiceQuestion() model.Question {
	q := model.Question{
		Status:      model.QuestionPublished,
		ChoiceCount: 4,
		Options: []model.Option{
			option(1, model.AuthorAI, "gpt"),
			option(2, model.AuthorAI, "claude"),
			option(3, model.AuthorAI, "gemini"),
			option(9, model.AuthorHuman, ""),
		},
	}
	q.ID = 100
	return q
}

func TestGradePhase1(t *testing.T) {
	q := fourChoiceQuestion()
	shuffle := model.ShuffleMap{"A": 2, "B": 9, "C": 1, "D": 3}

	res, err := GradePhase1(q, shuffle, " b ")
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)
	assert.Equal(t, uint(9), res.HumanOptionID)
	assert.Equal(t, uint(9), res.SelectedOptionID)
	assert.Equal(t, "B", res.SelectedLetter)

	res, err = GradePhase1(q, shuffle, "d")
	require.NoError(t, err)
	assert.False(t, res.IsCorrect)
	assert.Equal(t, uint(3), res.SelectedOptionID)

	_, err = GradePhase1(q, shuffle, "E")
	assert.ErrorIs(t, err, util.ErrInvalidInput)
	_, err = GradePhase1(q, shuffle, "")
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}

func TestGradePhase2Scoring(t *testing.T) {
	q := fourChoiceQuestion()

	res, err := GradePhase2(q, model.AssignmentMap{"1": "gpt", "2": "claude", "3": "gemini"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Score)
	assert.True(t, res.IsPerfect)
	assert.Equal(t, uint(9), res.HumanOptionID)

	res, err = GradePhase2(q, model.AssignmentMap{"1": "claude", "2": "gpt", "3": "gemini"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Score)
	assert.False(t, res.IsPerfect)
	require.Len(t, res.Details, 3)
	assert.Equal(t, Phase2Detail{OptionID: 1, AssignedGroup: "claude", CorrectGroup: "gpt"}, res.Details[0])
	assert.True(t, res.Details[2].IsCorrect)
}

func TestGradePhase2Validation(t *testing.T) {
	q := fourChoiceQuestion()

	cases := []struct {
		name       string
		assignment model.AssignmentMap
	}{
		{"duplicate group", model.AssignmentMap{"1": "gpt", "2": "gpt", "3": "gemini"}},
		{"missing option", model.AssignmentMap{"1": "gpt", "2": "claude"}},
		{"extra option", model.AssignmentMap{"1": "gpt", "2": "claude", "3": "gemini", "9": "gpt"}},
		{"human option assigned", model.AssignmentMap{"1": "gpt", "2": "claude", "9": "gemini"}},
		{"unknown group", model.AssignmentMap{"1": "gpt", "2": "claude", "3": "llama"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := GradePhase2(q, tc.assignment)
			assert.ErrorIs(t, err, util.ErrInvalidInput)
		})
	}

	two := model.Question{ChoiceCount: 2, Options: []model.Option{
		option(1, model.AuthorAI, "gpt"),
		option(2, model.AuthorHuman, ""),
	}}
	_, err := GradePhase2(two, model.AssignmentMap{"1": "gpt"})
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}
