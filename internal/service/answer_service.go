package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"turing_arena/internal/model"
	"turing_arena/internal/repository"
	"turing_arena/internal/util"
	"turing_arena/pkg/logger"
	"turing_arena/pkg/monitoring"
	"turing_arena/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AnswerService struct {
	DB          *gorm.DB
	SessionRepo *repository.SessionRepository
	SeenRepo    *repository.SeenRepository
	Now         func() time.Time
}

func NewAnswerService(db *gorm.DB, sessionRepo *repository.SessionRepository, seenRepo *repository.SeenRepository) *AnswerService {
	return &AnswerService{
		DB:          db,
		SessionRepo: sessionRepo,
		SeenRepo:    seenRepo,
		Now:         utcNow,
	}
}

type Phase1Request struct {
	UserID         uint
	SessionID      uint
	OrderIndex     int
	SelectedLetter string
	TimeMs         *int
}

type Phase2Request struct {
	UserID     uint
	SessionID  uint
	OrderIndex int
	Assignment model.AssignmentMap
	TimeMs     *int
}

func checkTimeMs(ms *int) error {
	if ms != nil && *ms < 0 {
		return fmt.Errorf("%w: time_ms must not be negative", util.ErrInvalidInput)
	}
	return nil
}

// loadAnswerable 校验会话归属和状态，并加载题目、选项与模型
func loadAnswerable(ctx context.Context, sessions *repository.SessionRepository, userID, sessionID uint, index int) (*model.QuizSession, *model.SessionQuestion, error) {
	s, err := sessions.FindByIDForUser(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, util.ErrSessionNotFound
		}
		return nil, nil, err
	}
	if s.Status == model.SessionAbandoned {
		return nil, nil, util.ErrSessionNotActive
	}
	sq, err := sessions.FindQuestion(ctx, s.ID, index)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, util.ErrSessionQuestionNotFound
		}
		return nil, nil, err
	}
	return s, sq, nil
}

// SubmitPhase1 判定用户选中的是否为人类回复。无论对错都把台账标记为 solved。
func (s *AnswerService) SubmitPhase1(ctx context.Context, req Phase1Request) (*Phase1Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "AnswerService.SubmitPhase1")
	defer span.End()
	span.SetAttributes(attribute.Int("session_id", int(req.SessionID)), attribute.Int("order_index", req.OrderIndex))

	if err := checkTimeMs(req.TimeMs); err != nil {
		return nil, err
	}

	now := s.Now()
	var result Phase1Result
	var questionID uint
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessionRepo := s.SessionRepo.WithTx(tx)
		_, sq, err := loadAnswerable(ctx, sessionRepo, req.UserID, req.SessionID, req.OrderIndex)
		if err != nil {
			return err
		}
		if sq.Phase1Done() {
			return util.ErrAlreadyAnswered
		}
		questionID = sq.QuestionID

		result, err = GradePhase1(sq.Question, sq.ShuffleMap.Data(), req.SelectedLetter)
		if err != nil {
			return err
		}

		ok, err := sessionRepo.RecordPhase1(ctx, sq.ID, repository.Phase1Record{
			SelectedLetter: result.SelectedLetter,
			IsCorrect:      result.IsCorrect,
			AnsweredAt:     now,
			TimeMs:         req.TimeMs,
		})
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrAlreadyAnswered
		}
		return s.SeenRepo.WithTx(tx).MarkSolved(ctx, req.UserID, sq.QuestionID, req.SessionID, now)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	monitoring.Phase1Answers.WithLabelValues(strconv.FormatBool(result.IsCorrect)).Inc()
	logger.Log.Info("phase 1 answered",
		zap.Uint("user_id", req.UserID),
		zap.Uint("session_id", req.SessionID),
		zap.Uint("question_id", questionID),
		zap.Bool("correct", result.IsCorrect))
	return &result, nil
}

// SubmitPhase2 四选一题目的模型归属判定，每个 AI 选项猜中记 1 分
func (s *AnswerService) SubmitPhase2(ctx context.Context, req Phase2Request) (*Phase2Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "AnswerService.SubmitPhase2")
	defer span.End()
	span.SetAttributes(attribute.Int("session_id", int(req.SessionID)), attribute.Int("order_index", req.OrderIndex))

	if err := checkTimeMs(req.TimeMs); err != nil {
		return nil, err
	}

	now := s.Now()
	var result Phase2Result
	var questionID uint
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessionRepo := s.SessionRepo.WithTx(tx)
		_, sq, err := loadAnswerable(ctx, sessionRepo, req.UserID, req.SessionID, req.OrderIndex)
		if err != nil {
			return err
		}
		questionID = sq.QuestionID

		if kind, err := sq.Question.Kind(); err != nil || !kind.HasPhase2() {
			return fmt.Errorf("%w: phase 2 only exists for 4-choice questions", util.ErrInvalidInput)
		}
		if !sq.Phase1Done() {
			return util.ErrPhaseOrder
		}
		if sq.Phase2Done() {
			return util.ErrAlreadyAnswered
		}

		result, err = GradePhase2(sq.Question, req.Assignment)
		if err != nil {
			return err
		}

		ok, err := sessionRepo.RecordPhase2(ctx, sq.ID, repository.Phase2Record{
			Assignment: req.Assignment,
			Score:      result.Score,
			IsPerfect:  result.IsPerfect,
			AnsweredAt: now,
			TimeMs:     req.TimeMs,
		})
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrAlreadyAnswered
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	monitoring.Phase2Score.Observe(float64(result.Score))
	logger.Log.Info("phase 2 answered",
		zap.Uint("user_id", req.UserID),
		zap.Uint("session_id", req.SessionID),
		zap.Uint("question_id", questionID),
		zap.Int("score", result.Score))
	return &result, nil
}
