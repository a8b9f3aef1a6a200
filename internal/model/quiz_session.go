package model

import (
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionFinished  SessionStatus = "finished"
	SessionAbandoned SessionStatus = "abandoned"
)

// swagger:model QuizSession
type QuizSession struct {
	BaseModel
	UserID                uint          `gorm:"index:idx_quiz_sessions_user_status,priority:1;type:bigint unsigned;not null" json:"userId"`
	Difficulty            Difficulty    `gorm:"size:20;not null" json:"difficulty"`
	ChoiceCount           int           `gorm:"not null" json:"choiceCount"`
	NumQuestionsRequested int           `gorm:"not null" json:"numQuestionsRequested"`
	Status                SessionStatus `gorm:"size:20;not null;index:idx_quiz_sessions_user_status,priority:2" json:"status"`
	StartedAt             time.Time     `json:"startedAt"`
	FinishedAt            *time.Time    `json:"finishedAt,omitempty"`

	Questions []SessionQuestion `gorm:"foreignKey:SessionID" json:"questions,omitempty"`
}

func (QuizSession) TableName() string {
	return "quiz_sessions"
}

func (s QuizSession) Kind() (ChoiceKind, error) {
	return ParseChoiceKind(s.ChoiceCount)
}

// ShuffleMap 显示字母 -> 选项ID
type ShuffleMap map[string]uint

// LetterOf returns the letter under which optionID was displayed.
func (m ShuffleMap) LetterOf(optionID uint) (string, bool) {
	for letter, id := range m {
		if id == optionID {
			return letter, true
		}
	}
	return "", false
}

// AssignmentMap AI选项ID(字符串) -> 用户指定的模型系列 slug
type AssignmentMap map[string]string

// SessionQuestion 会话中的一道题。ShuffleMap 在创建时写入，之后渲染与判分都只读它。
// swagger:model SessionQuestion
type SessionQuestion struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	SessionID  uint      `gorm:"not null;type:bigint unsigned;uniqueIndex:idx_session_order,priority:1;uniqueIndex:idx_session_question,priority:1" json:"sessionId"`
	QuestionID uint      `gorm:"not null;type:bigint unsigned;uniqueIndex:idx_session_question,priority:2" json:"questionId"`
	Question   Question  `json:"-"`
	OrderIndex int       `gorm:"not null;uniqueIndex:idx_session_order,priority:2" json:"orderIndex"`

	ShuffleMap datatypes.JSONType[ShuffleMap] `gorm:"not null" json:"shuffleMap"`

	Phase1SelectedLetter *string    `gorm:"size:1" json:"phase1SelectedLetter,omitempty"`
	Phase1IsCorrect      *bool      `json:"phase1IsCorrect,omitempty"`
	Phase1AnsweredAt     *time.Time `json:"phase1AnsweredAt,omitempty"`
	Phase1TimeMs         *int       `json:"phase1TimeMs,omitempty"`

	Phase2Assignment datatypes.JSONType[AssignmentMap] `json:"phase2Assignment"`
	Phase2Score      *int                              `json:"phase2Score,omitempty"`
	Phase2IsPerfect  *bool                             `json:"phase2IsPerfect,omitempty"`
	Phase2AnsweredAt *time.Time                        `json:"phase2AnsweredAt,omitempty"`
	Phase2TimeMs     *int                              `json:"phase2TimeMs,omitempty"`
}

func (SessionQuestion) TableName() string {
	return "session_questions"
}

func (sq SessionQuestion) Phase1Done() bool { return sq.Phase1AnsweredAt != nil }

func (sq SessionQuestion) Phase2Done() bool { return sq.Phase2AnsweredAt != nil }

// Complete reports whether every phase required by kind has been answered.
func (sq SessionQuestion) Complete(kind ChoiceKind) bool {
	if !sq.Phase1Done() {
		return false
	}
	return !kind.HasPhase2() || sq.Phase2Done()
}
