package repository

import (
	"context"
	"time"

	"turing_arena/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeenRepository 维护 user_seen_questions 台账
type SeenRepository struct {
	DB *gorm.DB
}

func NewSeenRepository(db *gorm.DB) *SeenRepository {
	return &SeenRepository{DB: db}
}

func (r *SeenRepository) WithTx(tx *gorm.DB) *SeenRepository {
	return &SeenRepository{DB: tx}
}

var userQuestionConflict = []clause.Column{{Name: "user_id"}, {Name: "question_id"}}

// PurgeExpired 删除该用户已过期的预留
func (r *SeenRepository) PurgeExpired(ctx context.Context, userID uint, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("user_id = ? AND status = ? AND reserved_until < ?", userID, model.SeenReserved, now).
		Delete(&model.UserSeenQuestion{})
	return res.RowsAffected, res.Error
}

// ExcludedQuestionIDs 子查询：已作答，或预留尚未过期的题目
func (r *SeenRepository) ExcludedQuestionIDs(userID uint, now time.Time) *gorm.DB {
	return r.DB.Model(&model.UserSeenQuestion{}).
		Select("question_id").
		Where("user_id = ?", userID).
		Where("status = ? OR (status = ? AND reserved_until > ?)", model.SeenSolved, model.SeenReserved, now)
}

// Reserve upsert (user, question) 为预留状态
func (r *SeenRepository) Reserve(ctx context.Context, userID, questionID, sessionID uint, until time.Time) error {
	row := model.UserSeenQuestion{
		UserID:        userID,
		QuestionID:    questionID,
		Status:        model.SeenReserved,
		SessionID:     &sessionID,
		ReservedUntil: &until,
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   userQuestionConflict,
		DoUpdates: clause.AssignmentColumns([]string{"status", "session_id", "reserved_until", "solved_at", "updated_at"}),
	}).Create(&row).Error
}

// MarkSolved upsert 为已作答。预留已被清理时也会补一行，保证不会再次抽到。
func (r *SeenRepository) MarkSolved(ctx context.Context, userID, questionID, sessionID uint, now time.Time) error {
	row := model.UserSeenQuestion{
		UserID:     userID,
		QuestionID: questionID,
		Status:     model.SeenSolved,
		SessionID:  &sessionID,
		SolvedAt:   &now,
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   userQuestionConflict,
		DoUpdates: clause.AssignmentColumns([]string{"status", "solved_at", "reserved_until", "updated_at"}),
	}).Create(&row).Error
}

// ReleaseSession 删除该会话仍处于预留状态的行，库存立即回到可抽取池
func (r *SeenRepository) ReleaseSession(ctx context.Context, userID, sessionID uint) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("user_id = ? AND session_id = ? AND status = ?", userID, sessionID, model.SeenReserved).
		Delete(&model.UserSeenQuestion{})
	return res.RowsAffected, res.Error
}

func (r *SeenRepository) FindByUser(ctx context.Context, userID uint) ([]model.UserSeenQuestion, error) {
	var rows []model.UserSeenQuestion
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("question_id").Find(&rows).Error
	return rows, err
}
