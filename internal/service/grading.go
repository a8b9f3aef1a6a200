package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"turing_arena/internal/model"
	"turing_arena/internal/util"
)

type Phase1Result struct {
	IsCorrect        bool   `json:"isCorrect"`
	HumanOptionID    uint   `json:"humanOptionId"`
	SelectedOptionID uint   `json:"selectedOptionId"`
	SelectedLetter   string `json:"selectedLetter"`
}

// NormalizeLetter 大小写不敏感，去除首尾空白
func NormalizeLetter(letter string) string {
	return strings.ToUpper(strings.TrimSpace(letter))
}

// GradePhase1 只依据持久化的 shuffle map 解析字母
func GradePhase1(q model.Question, shuffle model.ShuffleMap, letter string) (Phase1Result, error) {
	letter = NormalizeLetter(letter)
	optionID, ok := shuffle[letter]
	if !ok {
		return Phase1Result{}, fmt.Errorf("%w: unknown letter %q", util.ErrInvalidInput, letter)
	}
	human, ok := q.HumanOption()
	if !ok {
		return Phase1Result{}, fmt.Errorf("question %d has no single human option", q.ID)
	}
	return Phase1Result{
		IsCorrect:        optionID == human.ID,
		HumanOptionID:    human.ID,
		SelectedOptionID: optionID,
		SelectedLetter:   letter,
	}, nil
}

type Phase2Detail struct {
	OptionID      uint   `json:"optionId"`
	AssignedGroup string `json:"assignedGroup"`
	CorrectGroup  string `json:"correctGroup"`
	IsCorrect     bool   `json:"isCorrect"`
}

type Phase2Result struct {
	Score         int            `json:"score"`
	IsPerfect     bool           `json:"isPerfect"`
	Details       []Phase2Detail `json:"details"`
	HumanOptionID uint           `json:"humanOptionId"`
}

// GradePhase2 校验顺序固定：题型、选项集合、分组去重、分组集合，全部通过后才计分
func GradePhase2(q model.Question, assignment model.AssignmentMap) (Phase2Result, error) {
	kind, err := q.Kind()
	if err != nil || !kind.HasPhase2() {
		return Phase2Result{}, fmt.Errorf("%w: phase 2 only exists for 4-choice questions", util.ErrInvalidInput)
	}

	ai := q.AIOptions()
	if len(assignment) != len(ai) {
		return Phase2Result{}, fmt.Errorf("%w: expected %d assignments, got %d", util.ErrInvalidInput, len(ai), len(assignment))
	}
	for _, o := range ai {
		if _, ok := assignment[strconv.FormatUint(uint64(o.ID), 10)]; !ok {
			return Phase2Result{}, fmt.Errorf("%w: option %d is not assigned", util.ErrInvalidInput, o.ID)
		}
	}

	assigned := make(map[string]struct{}, len(assignment))
	for _, slug := range assignment {
		assigned[slug] = struct{}{}
	}
	if len(assigned) != 3 {
		return Phase2Result{}, fmt.Errorf("%w: each model group must be used exactly once", util.ErrInvalidInput)
	}

	actual := make(map[string]struct{}, len(ai))
	for _, o := range ai {
		actual[o.GroupSlug()] = struct{}{}
	}
	for slug := range assigned {
		if _, ok := actual[slug]; !ok {
			return Phase2Result{}, fmt.Errorf("%w: unknown model group %q", util.ErrInvalidInput, slug)
		}
	}

	human, _ := q.HumanOption()
	res := Phase2Result{HumanOptionID: human.ID, Details: make([]Phase2Detail, 0, len(ai))}
	for _, o := range ai {
		got := assignment[strconv.FormatUint(uint64(o.ID), 10)]
		ok := got == o.GroupSlug()
		if ok {
			res.Score++
		}
		res.Details = append(res.Details, Phase2Detail{
			OptionID:      o.ID,
			AssignedGroup: got,
			CorrectGroup:  o.GroupSlug(),
			IsCorrect:     ok,
		})
	}
	sort.Slice(res.Details, func(i, j int) bool { return res.Details[i].OptionID < res.Details[j].OptionID })
	res.IsPerfect = res.Score == len(ai)
	return res, nil
}
