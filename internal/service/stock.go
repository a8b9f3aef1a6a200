package service

import (
	"context"
	"fmt"
	"slices"

	"turing_arena/internal/model"
	"turing_arena/internal/util"
)

// StockView 某个难度/题型下该用户的题库概况。
// Eligible = Available + Solved + Reserved
type StockView struct {
	Difficulty          model.Difficulty `json:"difficulty"`
	ChoiceCount         int              `json:"choiceCount"`
	Eligible            int              `json:"eligible"`
	Available           int              `json:"available"`
	Solved              int              `json:"solved"`
	Reserved            int              `json:"reserved"`
	AllowedNumQuestions []int            `json:"allowedNumQuestions"`
}

// Stock 只读，不清理过期预留；过期的预留按 now 判断，不计入 Reserved
func (a *SessionAllocator) Stock(ctx context.Context, userID uint, difficulty model.Difficulty, choiceCount int) (*StockView, error) {
	if !difficulty.Valid() {
		return nil, fmt.Errorf("%w: unknown difficulty %q", util.ErrInvalidRequest, difficulty)
	}
	kind, err := model.ParseChoiceKind(choiceCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidRequest, err)
	}
	now := a.Now()

	eligible, err := a.QuestionRepo.EligibleIDs(ctx, difficulty, kind)
	if err != nil {
		return nil, err
	}
	available, err := a.QuestionRepo.AvailableIDs(ctx, difficulty, kind, a.SeenRepo.ExcludedQuestionIDs(userID, now))
	if err != nil {
		return nil, err
	}
	rows, err := a.SeenRepo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &StockView{
		Difficulty:          difficulty,
		ChoiceCount:         int(kind),
		Eligible:            len(eligible),
		Available:           len(available),
		AllowedNumQuestions: slices.Clone(a.Settings().AllowedNumQuestions),
	}
	pool := make(map[uint]struct{}, len(eligible))
	for _, id := range eligible {
		pool[id] = struct{}{}
	}
	for _, row := range rows {
		if _, ok := pool[row.QuestionID]; !ok || !row.Blocking(now) {
			continue
		}
		switch row.Status {
		case model.SeenSolved:
			view.Solved++
		case model.SeenReserved:
			view.Reserved++
		}
	}
	return view, nil
}
