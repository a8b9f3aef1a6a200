package repository

import (
	"context"

	"turing_arena/internal/model"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) WithTx(tx *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: tx}
}

// EligibleQuestions 筛选"完整"的已发布题目：选项数量与构成正确、全部生成成功，
// 四选一时三个 AI 选项来自三个不同的模型系列。
func EligibleQuestions(difficulty model.Difficulty, kind model.ChoiceKind) func(*gorm.DB) *gorm.DB {
	n := kind.OptionCount()
	return func(db *gorm.DB) *gorm.DB {
		q := db.
			Joins("JOIN options ON options.question_id = questions.id AND options.deleted_at IS NULL").
			Joins("LEFT JOIN llm_models ON llm_models.id = options.llm_model_id AND llm_models.deleted_at IS NULL").
			Where("questions.status = ? AND questions.difficulty = ? AND questions.choice_count = ?",
				model.QuestionPublished, difficulty, n).
			Group("questions.id").
			Having("COUNT(options.id) = ?", n).
			Having("SUM(CASE WHEN options.author_type = ? THEN 1 ELSE 0 END) = 1", model.AuthorHuman).
			Having("SUM(CASE WHEN options.author_type = ? THEN 1 ELSE 0 END) = ?", model.AuthorAI, kind.AIOptionCount()).
			Having("SUM(CASE WHEN options.generation_status = ? THEN 1 ELSE 0 END) = ?", model.GenerationOK, n)
		if kind == model.FourChoice {
			q = q.Having("COUNT(DISTINCT CASE WHEN options.author_type = ? THEN llm_models.display_group_slug END) = 3", model.AuthorAI)
		}
		return q
	}
}

// EligibleIDs 返回满足条件的题目ID，按ID升序
func (r *QuestionRepository) EligibleIDs(ctx context.Context, difficulty model.Difficulty, kind model.ChoiceKind) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).
		Model(&model.Question{}).
		Scopes(EligibleQuestions(difficulty, kind)).
		Order("questions.id").
		Pluck("questions.id", &ids).Error
	return ids, err
}

// AvailableIDs 在 EligibleIDs 的基础上排除 excluded 子查询返回的题目
func (r *QuestionRepository) AvailableIDs(ctx context.Context, difficulty model.Difficulty, kind model.ChoiceKind, excluded *gorm.DB) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).
		Model(&model.Question{}).
		Scopes(EligibleQuestions(difficulty, kind)).
		Where("questions.id NOT IN (?)", excluded).
		Order("questions.id").
		Pluck("questions.id", &ids).Error
	return ids, err
}

func (r *QuestionRepository) FindWithOptions(ctx context.Context, ids []uint) ([]model.Question, error) {
	var questions []model.Question
	if len(ids) == 0 {
		return questions, nil
	}
	err := r.DB.WithContext(ctx).
		Preload("Scenario").
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("options.id")
		}).
		Preload("Options.LlmModel").
		Where("id IN ?", ids).
		Find(&questions).Error
	return questions, err
}
