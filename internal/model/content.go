package model

import "time"

// 以下为内容子系统维护的只读模型，答题核心只读取不修改。

type QuestionStatus string

const (
	QuestionDraft     QuestionStatus = "draft"
	QuestionPublished QuestionStatus = "published"
	QuestionArchived  QuestionStatus = "archived"
)

type AuthorType string

const (
	AuthorHuman AuthorType = "human"
	AuthorAI    AuthorType = "ai"
)

type GenerationStatus string

const (
	GenerationPending GenerationStatus = "pending"
	GenerationOK      GenerationStatus = "ok"
	GenerationError   GenerationStatus = "error"
)

// swagger:model LlmModel
type LlmModel struct {
	BaseModel
	Provider         string `gorm:"size:50;not null" json:"provider"`
	DisplayGroup     string `gorm:"size:50;not null" json:"displayGroup"`
	DisplayGroupSlug string `gorm:"size:50;not null;uniqueIndex" json:"displayGroupSlug"`
	DisplayName      string `gorm:"size:100" json:"displayName"`
	APIModelName     string `gorm:"size:100;not null" json:"apiModelName"`
}

func (LlmModel) TableName() string {
	return "llm_models"
}

// Scenario 是题目所基于的用户消息
type Scenario struct {
	BaseModel
	UserMessageText string `gorm:"type:text;not null" json:"userMessageText"`
	Genre           string `gorm:"size:100" json:"genre"`
}

func (Scenario) TableName() string {
	return "scenarios"
}

// swagger:model Question
type Question struct {
	BaseModel
	ScenarioID  uint           `gorm:"index;type:bigint unsigned" json:"scenarioId"`
	Scenario    Scenario       `json:"scenario"`
	Status      QuestionStatus `gorm:"size:20;index;not null" json:"status"`
	Difficulty  Difficulty     `gorm:"size:20;index;not null" json:"difficulty"`
	ChoiceCount int            `gorm:"not null" json:"choiceCount"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
	Options     []Option       `json:"options,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// swagger:model Option
type Option struct {
	BaseModel
	QuestionID       uint             `gorm:"index;type:bigint unsigned;not null" json:"questionId"`
	AuthorType       AuthorType       `gorm:"size:20;not null" json:"authorType"`
	LlmModelID       *uint            `gorm:"index" json:"llmModelId,omitempty"`
	LlmModel         *LlmModel        `json:"llmModel,omitempty"`
	ContentText      string           `gorm:"type:text" json:"contentText"`
	GenerationStatus GenerationStatus `gorm:"size:20;not null;default:pending" json:"generationStatus"`
}

func (Option) TableName() string {
	return "options"
}

// GroupSlug returns the model-family slug of an AI option, or "" for the
// human option or an option whose model was not preloaded.
func (o Option) GroupSlug() string {
	if o.AuthorType != AuthorAI || o.LlmModel == nil {
		return ""
	}
	return o.LlmModel.DisplayGroupSlug
}

func (q Question) Kind() (ChoiceKind, error) {
	return ParseChoiceKind(q.ChoiceCount)
}

// HumanOption returns the single human-authored option. Options must be loaded.
func (q Question) HumanOption() (Option, bool) {
	var found Option
	n := 0
	for _, o := range q.Options {
		if o.AuthorType == AuthorHuman {
			found = o
			n++
		}
	}
	return found, n == 1
}

func (q Question) AIOptions() []Option {
	var out []Option
	for _, o := range q.Options {
		if o.AuthorType == AuthorAI {
			out = append(out, o)
		}
	}
	return out
}

// IsComplete is the in-memory form of the eligibility predicate: published,
// option composition matching the layout, every generation ok and, for four
// choices, three distinct model groups. Options and their LlmModel must be loaded.
func (q Question) IsComplete() bool {
	kind, err := q.Kind()
	if err != nil || q.Status != QuestionPublished {
		return false
	}
	if len(q.Options) != kind.OptionCount() {
		return false
	}
	if _, ok := q.HumanOption(); !ok {
		return false
	}
	ai := q.AIOptions()
	if len(ai) != kind.AIOptionCount() {
		return false
	}
	for _, o := range q.Options {
		if o.GenerationStatus != GenerationOK {
			return false
		}
	}
	if kind == FourChoice {
		groups := make(map[string]struct{}, len(ai))
		for _, o := range ai {
			if slug := o.GroupSlug(); slug != "" {
				groups[slug] = struct{}{}
			}
		}
		if len(groups) != 3 {
			return false
		}
	}
	return true
}
