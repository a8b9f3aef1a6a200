package service

import (
	"context"
	"errors"
	"math"
	"time"

	"turing_arena/internal/event"
	"turing_arena/internal/model"
	"turing_arena/internal/repository"
	"turing_arena/internal/util"
	"turing_arena/pkg/logger"
	"turing_arena/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionLifecycle 负责 active -> finished 的单向、幂等转换
type SessionLifecycle struct {
	SessionRepo *repository.SessionRepository
	StatsRepo   *repository.StatsRepository
	Events      event.Publisher
	Now         func() time.Time
}

func NewSessionLifecycle(sessionRepo *repository.SessionRepository, statsRepo *repository.StatsRepository, events event.Publisher) *SessionLifecycle {
	return &SessionLifecycle{
		SessionRepo: sessionRepo,
		StatsRepo:   statsRepo,
		Events:      events,
		Now:         utcNow,
	}
}

func allAnswered(kind model.ChoiceKind, t repository.SessionTotals) bool {
	if t.Total == 0 || t.Phase1Answered != t.Total {
		return false
	}
	return !kind.HasPhase2() || t.Phase2Answered == t.Total
}

// Refresh 所有题目作答完毕时把会话标记为 finished。
// 返回本次调用是否发生了转换；finished_at 只会写一次。
func (l *SessionLifecycle) Refresh(ctx context.Context, s *model.QuizSession) (bool, error) {
	if s.Status != model.SessionActive {
		return false, nil
	}
	kind, err := s.Kind()
	if err != nil {
		return false, err
	}
	totals, err := l.StatsRepo.SessionTotals(ctx, s.ID)
	if err != nil {
		return false, err
	}
	if !allAnswered(kind, totals) {
		return false, nil
	}

	now := l.Now()
	changed, err := l.SessionRepo.MarkFinished(ctx, s.ID, now)
	if err != nil {
		return false, err
	}
	if !changed {
		// 并发请求已经完成了转换
		fresh, err := l.SessionRepo.FindByIDForUser(ctx, s.ID, s.UserID)
		if err != nil {
			return false, err
		}
		*s = *fresh
		return false, nil
	}
	s.Status = model.SessionFinished
	s.FinishedAt = &now

	monitoring.SessionsFinished.Inc()
	logger.Log.Info("session finished", zap.Uint("user_id", s.UserID), zap.Uint("session_id", s.ID))
	event.Emit(ctx, l.Events, event.SessionFinished, event.SessionFinishedPayload{
		SessionID:     s.ID,
		UserID:        s.UserID,
		ChoiceCount:   s.ChoiceCount,
		Total:         int(totals.Total),
		Phase1Correct: int(totals.Phase1Correct),
		Phase2Points:  int(totals.Phase2Points),
	})
	return true, nil
}

type SessionResult struct {
	Session *model.QuizSession `json:"session"`

	Phase1Total   int     `json:"phase1Total"`
	Phase1Correct int     `json:"phase1Correct"`
	Phase1Rate    float64 `json:"phase1Rate"`

	Phase2Enabled   bool    `json:"phase2Enabled"`
	Phase2Points    int     `json:"phase2Points"`
	Phase2MaxPoints int     `json:"phase2MaxPoints"`
	Phase2Rate      float64 `json:"phase2Rate"`
	Phase2Perfect   int     `json:"phase2Perfect"`

	UserTotals repository.UserTotals `json:"userTotals"`
}

func percent(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return math.Round(float64(num)/float64(den)*1000) / 10
}

// Result 会话成绩页：先做完成检查，再汇总本次与累计成绩
func (l *SessionLifecycle) Result(ctx context.Context, userID, sessionID uint) (*SessionResult, error) {
	s, err := l.SessionRepo.FindByIDForUser(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	if _, err := l.Refresh(ctx, s); err != nil {
		return nil, err
	}
	kind, err := s.Kind()
	if err != nil {
		return nil, err
	}

	totals, err := l.StatsRepo.SessionTotals(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	user, err := l.StatsRepo.UserTotals(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := &SessionResult{
		Session:       s,
		Phase1Total:   int(totals.Total),
		Phase1Correct: int(totals.Phase1Correct),
		Phase1Rate:    percent(totals.Phase1Correct, totals.Total),
		UserTotals:    user,
	}
	if kind.HasPhase2() {
		maxPoints := totals.Total * int64(kind.AIOptionCount())
		res.Phase2Enabled = true
		res.Phase2Points = int(totals.Phase2Points)
		res.Phase2MaxPoints = int(maxPoints)
		res.Phase2Rate = percent(totals.Phase2Points, maxPoints)
		res.Phase2Perfect = int(totals.Phase2Perfect)
	}
	return res, nil
}

// SessionStats 阶段一的实时统计
type SessionStats struct {
	Answered   int     `json:"answered"`
	Correct    int     `json:"correct"`
	Rate       float64 `json:"rate"`
	Streak     int     `json:"streak"`
	BestStreak int     `json:"bestStreak"`
}

func computeStats(outcomes []bool) SessionStats {
	st := SessionStats{Answered: len(outcomes)}
	for _, ok := range outcomes {
		if ok {
			st.Correct++
			st.Streak++
			st.BestStreak = max(st.BestStreak, st.Streak)
		} else {
			st.Streak = 0
		}
	}
	st.Rate = percent(int64(st.Correct), int64(st.Answered))
	return st
}
