package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"turing_arena/internal/model"
	"turing_arena/internal/repository"
	"turing_arena/internal/util"

	"gorm.io/gorm"
)

// QuizViewService 答题页面所需的只读视图，选项顺序一律取自持久化的 shuffle map
type QuizViewService struct {
	SessionRepo *repository.SessionRepository
	StatsRepo   *repository.StatsRepository
}

func NewQuizViewService(sessionRepo *repository.SessionRepository, statsRepo *repository.StatsRepository) *QuizViewService {
	return &QuizViewService{SessionRepo: sessionRepo, StatsRepo: statsRepo}
}

type OptionView struct {
	Letter   string `json:"letter"`
	OptionID uint   `json:"optionId"`
	Text     string `json:"text"`
}

type QuestionView struct {
	SessionID      uint                `json:"sessionId"`
	OrderIndex     int                 `json:"orderIndex"`
	Total          int                 `json:"total"`
	ChoiceCount    int                 `json:"choiceCount"`
	Status         model.SessionStatus `json:"status"`
	Scenario       string              `json:"scenario"`
	Genre          string              `json:"genre,omitempty"`
	Options        []OptionView        `json:"options"`
	Phase1Answered bool                `json:"phase1Answered"`
	Phase2Answered bool                `json:"phase2Answered"`
}

// NextStep step: question / phase2 / result
type NextStep struct {
	Step  string `json:"step"`
	Index int    `json:"index"`
}

type Phase1Feedback struct {
	SelectedLetter string       `json:"selectedLetter"`
	IsCorrect      bool         `json:"isCorrect"`
	HumanLetter    *string      `json:"humanLetter,omitempty"`
	Stats          SessionStats `json:"stats"`
	Next           NextStep     `json:"next"`
}

type GroupChoice struct {
	Slug         string `json:"slug"`
	DisplayGroup string `json:"displayGroup"`
}

type Phase2Row struct {
	OptionView
	IsHuman bool `json:"isHuman"`
}

type Phase2Form struct {
	Rows          []Phase2Row   `json:"rows"`
	HumanOptionID uint          `json:"humanOptionId"`
	Groups        []GroupChoice `json:"groups"`
}

type Phase2Feedback struct {
	Phase2Result
	HumanLetter string   `json:"humanLetter"`
	Next        NextStep `json:"next"`
}

type questionContext struct {
	session *model.QuizSession
	sq      *model.SessionQuestion
	kind    model.ChoiceKind
	total   int
}

func (v *QuizViewService) load(ctx context.Context, userID, sessionID uint, index int) (*questionContext, error) {
	s, err := v.SessionRepo.FindByIDForUser(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	kind, err := s.Kind()
	if err != nil {
		return nil, err
	}
	sq, err := v.SessionRepo.FindQuestion(ctx, s.ID, index)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSessionQuestionNotFound
		}
		return nil, err
	}
	total, err := v.SessionRepo.CountQuestions(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	return &questionContext{session: s, sq: sq, kind: kind, total: int(total)}, nil
}

// optionRows 按字母顺序展开 shuffle map
func optionRows(sq *model.SessionQuestion) []OptionView {
	byID := make(map[uint]model.Option, len(sq.Question.Options))
	for _, o := range sq.Question.Options {
		byID[o.ID] = o
	}
	shuffle := sq.ShuffleMap.Data()
	rows := make([]OptionView, 0, len(shuffle))
	for letter, id := range shuffle {
		rows = append(rows, OptionView{Letter: letter, OptionID: id, Text: byID[id].ContentText})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Letter < rows[j].Letter })
	return rows
}

func humanLetter(sq *model.SessionQuestion) (string, uint) {
	human, ok := sq.Question.HumanOption()
	if !ok {
		return "", 0
	}
	letter, _ := sq.ShuffleMap.Data().LetterOf(human.ID)
	return letter, human.ID
}

func nextQuestion(index, total int) NextStep {
	if index+1 < total {
		return NextStep{Step: "question", Index: index + 1}
	}
	return NextStep{Step: "result"}
}

func (v *QuizViewService) GetQuestion(ctx context.Context, userID, sessionID uint, index int) (*QuestionView, error) {
	qc, err := v.load(ctx, userID, sessionID, index)
	if err != nil {
		return nil, err
	}
	return &QuestionView{
		SessionID:      qc.session.ID,
		OrderIndex:     qc.sq.OrderIndex,
		Total:          qc.total,
		ChoiceCount:    qc.session.ChoiceCount,
		Status:         qc.session.Status,
		Scenario:       qc.sq.Question.Scenario.UserMessageText,
		Genre:          qc.sq.Question.Scenario.Genre,
		Options:        optionRows(qc.sq),
		Phase1Answered: qc.sq.Phase1Done(),
		Phase2Answered: qc.sq.Phase2Done(),
	}, nil
}

// GetPhase1Feedback 四选一题目在第二阶段作答前不公开人类选项
func (v *QuizViewService) GetPhase1Feedback(ctx context.Context, userID, sessionID uint, index int) (*Phase1Feedback, error) {
	qc, err := v.load(ctx, userID, sessionID, index)
	if err != nil {
		return nil, err
	}
	if !qc.sq.Phase1Done() {
		return nil, util.ErrNotAnswered
	}
	outcomes, err := v.StatsRepo.Phase1Outcomes(ctx, qc.session.ID)
	if err != nil {
		return nil, err
	}

	fb := &Phase1Feedback{
		IsCorrect: qc.sq.Phase1IsCorrect != nil && *qc.sq.Phase1IsCorrect,
		Stats:     computeStats(outcomes),
	}
	if qc.sq.Phase1SelectedLetter != nil {
		fb.SelectedLetter = *qc.sq.Phase1SelectedLetter
	}
	if !qc.kind.HasPhase2() || qc.sq.Phase2Done() {
		if letter, _ := humanLetter(qc.sq); letter != "" {
			fb.HumanLetter = &letter
		}
	}
	if qc.kind.HasPhase2() && !qc.sq.Phase2Done() {
		fb.Next = NextStep{Step: "phase2", Index: index}
	} else {
		fb.Next = nextQuestion(index, qc.total)
	}
	return fb, nil
}

func (v *QuizViewService) GetPhase2Form(ctx context.Context, userID, sessionID uint, index int) (*Phase2Form, error) {
	qc, err := v.load(ctx, userID, sessionID, index)
	if err != nil {
		return nil, err
	}
	if !qc.kind.HasPhase2() {
		return nil, fmt.Errorf("%w: phase 2 only exists for 4-choice questions", util.ErrInvalidInput)
	}
	if !qc.sq.Phase1Done() {
		return nil, util.ErrPhaseOrder
	}
	if qc.sq.Phase2Done() {
		return nil, util.ErrAlreadyAnswered
	}

	_, humanID := humanLetter(qc.sq)
	form := &Phase2Form{HumanOptionID: humanID}
	for _, row := range optionRows(qc.sq) {
		form.Rows = append(form.Rows, Phase2Row{OptionView: row, IsHuman: row.OptionID == humanID})
	}
	groups := make(map[string]string)
	for _, o := range qc.sq.Question.AIOptions() {
		if o.LlmModel != nil {
			groups[o.LlmModel.DisplayGroupSlug] = o.LlmModel.DisplayGroup
		}
	}
	for slug, name := range groups {
		form.Groups = append(form.Groups, GroupChoice{Slug: slug, DisplayGroup: name})
	}
	sort.Slice(form.Groups, func(i, j int) bool { return form.Groups[i].Slug < form.Groups[j].Slug })
	return form, nil
}

// GetPhase2Feedback 依据已保存的分配结果重建明细
func (v *QuizViewService) GetPhase2Feedback(ctx context.Context, userID, sessionID uint, index int) (*Phase2Feedback, error) {
	qc, err := v.load(ctx, userID, sessionID, index)
	if err != nil {
		return nil, err
	}
	if !qc.kind.HasPhase2() {
		return nil, fmt.Errorf("%w: phase 2 only exists for 4-choice questions", util.ErrInvalidInput)
	}
	if !qc.sq.Phase2Done() {
		return nil, util.ErrNotAnswered
	}

	letter, humanID := humanLetter(qc.sq)
	assignment := qc.sq.Phase2Assignment.Data()
	fb := &Phase2Feedback{
		Phase2Result: Phase2Result{HumanOptionID: humanID},
		HumanLetter:  letter,
		Next:         nextQuestion(index, qc.total),
	}
	for _, o := range qc.sq.Question.AIOptions() {
		assigned := assignment[strconv.FormatUint(uint64(o.ID), 10)]
		fb.Details = append(fb.Details, Phase2Detail{
			OptionID:      o.ID,
			AssignedGroup: assigned,
			CorrectGroup:  o.GroupSlug(),
			IsCorrect:     assigned == o.GroupSlug(),
		})
	}
	if qc.sq.Phase2Score != nil {
		fb.Score = *qc.sq.Phase2Score
	}
	fb.IsPerfect = qc.sq.Phase2IsPerfect != nil && *qc.sq.Phase2IsPerfect
	return fb, nil
}

type QuestionProgress struct {
	OrderIndex     int   `json:"orderIndex"`
	Phase1Answered bool  `json:"phase1Answered"`
	Phase1Correct  *bool `json:"phase1Correct,omitempty"`
	Phase2Answered bool  `json:"phase2Answered"`
	Phase2Score    *int  `json:"phase2Score,omitempty"`
}

// SessionView 会话总览，Next 指向第一个尚未完成的步骤
type SessionView struct {
	Session   *model.QuizSession `json:"session"`
	Questions []QuestionProgress `json:"questions"`
	Next      NextStep           `json:"next"`
}

func (v *QuizViewService) GetSession(ctx context.Context, userID, sessionID uint) (*SessionView, error) {
	s, err := v.SessionRepo.FindByIDForUser(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	kind, err := s.Kind()
	if err != nil {
		return nil, err
	}
	items, err := v.SessionRepo.ListQuestions(ctx, s.ID)
	if err != nil {
		return nil, err
	}

	view := &SessionView{Session: s, Questions: make([]QuestionProgress, 0, len(items)), Next: NextStep{Step: "result"}}
	found := false
	for _, sq := range items {
		view.Questions = append(view.Questions, QuestionProgress{
			OrderIndex:     sq.OrderIndex,
			Phase1Answered: sq.Phase1Done(),
			Phase1Correct:  sq.Phase1IsCorrect,
			Phase2Answered: sq.Phase2Done(),
			Phase2Score:    sq.Phase2Score,
		})
		if found {
			continue
		}
		switch {
		case !sq.Phase1Done():
			view.Next, found = NextStep{Step: "question", Index: sq.OrderIndex}, true
		case kind.HasPhase2() && !sq.Phase2Done():
			view.Next, found = NextStep{Step: "phase2", Index: sq.OrderIndex}, true
		}
	}
	return view, nil
}
