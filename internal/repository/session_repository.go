package repository

import (
	"context"
	"errors"
	"time"

	"turing_arena/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SessionRepository struct {
	DB *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) WithTx(tx *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: tx}
}

// FindActiveByUser 返回用户最新的进行中会话，没有时返回 nil, nil
func (r *SessionRepository) FindActiveByUser(ctx context.Context, userID uint) (*model.QuizSession, error) {
	var s model.QuizSession
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.SessionActive).
		Order("id DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) CountActiveByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.QuizSession{}).
		Where("user_id = ? AND status = ?", userID, model.SessionActive).
		Count(&count).Error
	return count, err
}

// FindByIDForUser 只返回属于该用户的会话
func (r *SessionRepository) FindByIDForUser(ctx context.Context, sessionID, userID uint) (*model.QuizSession, error) {
	var s model.QuizSession
	if err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", sessionID, userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, s *model.QuizSession) error {
	return r.DB.WithContext(ctx).Omit("Questions").Create(s).Error
}

func (r *SessionRepository) CreateQuestions(ctx context.Context, questions []model.SessionQuestion) error {
	if len(questions) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Omit("Question").Create(&questions).Error
}

// MarkAbandoned 仅在 active 状态下生效，返回是否发生了状态变化
func (r *SessionRepository) MarkAbandoned(ctx context.Context, sessionID uint) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.QuizSession{}).
		Where("id = ? AND status = ?", sessionID, model.SessionActive).
		Update("status", model.SessionAbandoned)
	return res.RowsAffected == 1, res.Error
}

// MarkFinished 仅在 active 状态下生效，finished_at 只写一次
func (r *SessionRepository) MarkFinished(ctx context.Context, sessionID uint, now time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.QuizSession{}).
		Where("id = ? AND status = ?", sessionID, model.SessionActive).
		Updates(map[string]interface{}{
			"status":      model.SessionFinished,
			"finished_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

func preloadQuestion(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Question.Scenario").
		Preload("Question.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("options.id")
		}).
		Preload("Question.Options.LlmModel")
}

// FindQuestion 按序号取会话题目，并预加载题目、选项和模型
func (r *SessionRepository) FindQuestion(ctx context.Context, sessionID uint, orderIndex int) (*model.SessionQuestion, error) {
	var sq model.SessionQuestion
	err := r.DB.WithContext(ctx).
		Scopes(preloadQuestion).
		Where("session_id = ? AND order_index = ?", sessionID, orderIndex).
		First(&sq).Error
	if err != nil {
		return nil, err
	}
	return &sq, nil
}

func (r *SessionRepository) ListQuestions(ctx context.Context, sessionID uint) ([]model.SessionQuestion, error) {
	var items []model.SessionQuestion
	err := r.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("order_index").
		Find(&items).Error
	return items, err
}

func (r *SessionRepository) CountQuestions(ctx context.Context, sessionID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.SessionQuestion{}).Where("session_id = ?", sessionID).Count(&count).Error
	return count, err
}

type Phase1Record struct {
	SelectedLetter string
	IsCorrect      bool
	AnsweredAt     time.Time
	TimeMs         *int
}

// RecordPhase1 条件更新：只在尚未作答时写入，返回是否写入成功
func (r *SessionRepository) RecordPhase1(ctx context.Context, id uint, rec Phase1Record) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.SessionQuestion{}).
		Where("id = ? AND phase1_answered_at IS NULL", id).
		Updates(map[string]interface{}{
			"phase1_selected_letter": rec.SelectedLetter,
			"phase1_is_correct":      rec.IsCorrect,
			"phase1_answered_at":     rec.AnsweredAt,
			"phase1_time_ms":         rec.TimeMs,
		})
	return res.RowsAffected == 1, res.Error
}

type Phase2Record struct {
	Assignment model.AssignmentMap
	Score      int
	IsPerfect  bool
	AnsweredAt time.Time
	TimeMs     *int
}

// RecordPhase2 条件更新：要求第一阶段已作答且第二阶段未作答
func (r *SessionRepository) RecordPhase2(ctx context.Context, id uint, rec Phase2Record) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.SessionQuestion{}).
		Where("id = ? AND phase1_answered_at IS NOT NULL AND phase2_answered_at IS NULL", id).
		Updates(map[string]interface{}{
			"phase2_assignment":  datatypes.NewJSONType(rec.Assignment),
			"phase2_score":       rec.Score,
			"phase2_is_perfect":  rec.IsPerfect,
			"phase2_answered_at": rec.AnsweredAt,
			"phase2_time_ms":     rec.TimeMs,
		})
	return res.RowsAffected == 1, res.Error
}
