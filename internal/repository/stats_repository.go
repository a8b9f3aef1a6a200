package repository

import (
	"context"

	"turing_arena/internal/model"

	"gorm.io/gorm"
)

// StatsRepository 只读聚合查询
type StatsRepository struct {
	DB *gorm.DB
}

func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{DB: db}
}

func (r *StatsRepository) WithTx(tx *gorm.DB) *StatsRepository {
	return &StatsRepository{DB: tx}
}

type SessionTotals struct {
	Total          int64
	Phase1Answered int64
	Phase1Correct  int64
	Phase2Answered int64
	Phase2Points   int64
	Phase2Perfect  int64
}

func (r *StatsRepository) SessionTotals(ctx context.Context, sessionID uint) (SessionTotals, error) {
	var t SessionTotals
	err := r.DB.WithContext(ctx).Model(&model.SessionQuestion{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN phase1_answered_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS phase1_answered,
			COALESCE(SUM(CASE WHEN phase1_is_correct = ? THEN 1 ELSE 0 END), 0) AS phase1_correct,
			COALESCE(SUM(CASE WHEN phase2_answered_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS phase2_answered,
			COALESCE(SUM(phase2_score), 0) AS phase2_points,
			COALESCE(SUM(CASE WHEN phase2_is_perfect = ? THEN 1 ELSE 0 END), 0) AS phase2_perfect`, true, true).
		Where("session_id = ?", sessionID).
		Scan(&t).Error
	return t, err
}

// Phase1Outcomes 按题目顺序返回已作答题目的正误
func (r *StatsRepository) Phase1Outcomes(ctx context.Context, sessionID uint) ([]bool, error) {
	var outcomes []bool
	err := r.DB.WithContext(ctx).Model(&model.SessionQuestion{}).
		Where("session_id = ? AND phase1_answered_at IS NOT NULL", sessionID).
		Order("order_index").
		Pluck("phase1_is_correct", &outcomes).Error
	return outcomes, err
}

type UserTotals struct {
	Phase1Count   int64 `json:"phase1Count"`
	Phase1Correct int64 `json:"phase1Correct"`
	Phase2Count   int64 `json:"phase2Count"`
	Phase2Points  int64 `json:"phase2Points"`
}

// UserTotals 用户全部会话的累计成绩
func (r *StatsRepository) UserTotals(ctx context.Context, userID uint) (UserTotals, error) {
	var t UserTotals
	err := r.DB.WithContext(ctx).Model(&model.SessionQuestion{}).
		Joins("JOIN quiz_sessions ON quiz_sessions.id = session_questions.session_id AND quiz_sessions.deleted_at IS NULL").
		Select(`COALESCE(SUM(CASE WHEN session_questions.phase1_answered_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS phase1_count,
			COALESCE(SUM(CASE WHEN session_questions.phase1_is_correct = ? THEN 1 ELSE 0 END), 0) AS phase1_correct,
			COALESCE(SUM(CASE WHEN quiz_sessions.choice_count = ? AND session_questions.phase2_answered_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS phase2_count,
			COALESCE(SUM(CASE WHEN quiz_sessions.choice_count = ? THEN session_questions.phase2_score ELSE 0 END), 0) AS phase2_points`,
			true, int(model.FourChoice), int(model.FourChoice)).
		Where("quiz_sessions.user_id = ?", userID).
		Scan(&t).Error
	return t, err
}
