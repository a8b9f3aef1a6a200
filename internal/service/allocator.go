package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"turing_arena/internal/config"
	"turing_arena/internal/event"
	"turing_arena/internal/model"
	"turing_arena/internal/repository"
	"turing_arena/internal/util"
	"turing_arena/pkg/logger"
	"turing_arena/pkg/monitoring"
	"turing_arena/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func utcNow() time.Time { return time.Now().UTC() }

// AllocatorSettings 对应配置中的 quiz 段，支持热更新
type AllocatorSettings struct {
	AllowedNumQuestions []int
	ReserveTTL          time.Duration
	LockTimeout         time.Duration
}

func SettingsFromConfig(q config.QuizConfig) AllocatorSettings {
	return AllocatorSettings{
		AllowedNumQuestions: slices.Clone(q.AllowedNumQuestions),
		ReserveTTL:          q.ReserveTTL(),
		LockTimeout:         q.LockTimeout(),
	}
}

type StartRequest struct {
	UserID       uint
	Difficulty   model.Difficulty
	ChoiceCount  int
	NumQuestions int
	Restart      bool
	// ForceNum 为 0 表示未指定；缺货时调用方可用 available_count 重试
	ForceNum int
}

// Allocation 开始/恢复会话的结果。OutOfStock 是正常结果，不是错误。
type Allocation struct {
	Session    *model.QuizSession `json:"session,omitempty"`
	Resumed    bool               `json:"resumed"`
	OutOfStock bool               `json:"outOfStock"`
	// AvailableCount 恢复会话时不计算，为 nil
	AvailableCount *int `json:"availableCount,omitempty"`
}

type SessionAllocator struct {
	DB           *gorm.DB
	QuestionRepo *repository.QuestionRepository
	SessionRepo  *repository.SessionRepository
	SeenRepo     *repository.SeenRepository
	Shuffle      *ShuffleBuilder
	Locker       UserLocker
	Events       event.Publisher
	Now          func() time.Time

	rnd      RandomSource
	mu       sync.RWMutex
	settings AllocatorSettings
}

func NewSessionAllocator(
	db *gorm.DB,
	questionRepo *repository.QuestionRepository,
	sessionRepo *repository.SessionRepository,
	seenRepo *repository.SeenRepository,
	locker UserLocker,
	events event.Publisher,
	rnd RandomSource,
	settings AllocatorSettings,
) *SessionAllocator {
	return &SessionAllocator{
		DB:           db,
		QuestionRepo: questionRepo,
		SessionRepo:  sessionRepo,
		SeenRepo:     seenRepo,
		Shuffle:      NewShuffleBuilder(rnd),
		Locker:       locker,
		Events:       events,
		Now:          utcNow,
		rnd:          rnd,
		settings:     settings,
	}
}

func (a *SessionAllocator) UpdateSettings(s AllocatorSettings) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = s
}

func (a *SessionAllocator) Settings() AllocatorSettings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

func (a *SessionAllocator) validate(req StartRequest, s AllocatorSettings) (model.ChoiceKind, error) {
	if !req.Difficulty.Valid() {
		return 0, fmt.Errorf("%w: unknown difficulty %q", util.ErrInvalidRequest, req.Difficulty)
	}
	kind, err := model.ParseChoiceKind(req.ChoiceCount)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", util.ErrInvalidRequest, err)
	}
	if !slices.Contains(s.AllowedNumQuestions, req.NumQuestions) {
		return 0, fmt.Errorf("%w: num_questions must be one of %v", util.ErrInvalidRequest, s.AllowedNumQuestions)
	}
	if req.ForceNum < 0 {
		return 0, fmt.Errorf("%w: force_num must not be negative", util.ErrInvalidRequest)
	}
	return kind, nil
}

// lockUser 在超时内拿不到锁时返回 ErrAllocationBusy
func (a *SessionAllocator) lockUser(ctx context.Context, userID uint, timeout time.Duration) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	unlock, err := a.Locker.Lock(lockCtx, userID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, util.ErrAllocationBusy
		}
		return nil, err
	}
	return unlock, nil
}

// StartOrResume 恢复进行中的会话，或抽题创建新会话。
// 同一用户的调用由 Locker 串行化，抽题、建会话、预留和打乱在同一事务内完成。
func (a *SessionAllocator) StartOrResume(ctx context.Context, req StartRequest) (*Allocation, error) {
	ctx, span := tracing.Tracer().Start(ctx, "SessionAllocator.StartOrResume")
	defer span.End()
	span.SetAttributes(
		attribute.Int("user_id", int(req.UserID)),
		attribute.Int("choice_count", req.ChoiceCount),
		attribute.Int("num_questions", req.NumQuestions),
	)

	settings := a.Settings()
	kind, err := a.validate(req, settings)
	if err != nil {
		return nil, err
	}

	unlock, err := a.lockUser(ctx, req.UserID, settings.LockTimeout)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer unlock()

	now := a.Now()
	out := &Allocation{}
	var purged int64
	var abandoned *event.SessionAbandonedPayload

	err = a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seenRepo := a.SeenRepo.WithTx(tx)
		sessionRepo := a.SessionRepo.WithTx(tx)
		questionRepo := a.QuestionRepo.WithTx(tx)

		var err error
		purged, err = seenRepo.PurgeExpired(ctx, req.UserID, now)
		if err != nil {
			return err
		}

		active, err := sessionRepo.FindActiveByUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		if active != nil {
			if !req.Restart {
				out.Session = active
				out.Resumed = true
				return nil
			}
			released, err := abandonSession(ctx, sessionRepo, seenRepo, active)
			if err != nil {
				return err
			}
			abandoned = &event.SessionAbandonedPayload{SessionID: active.ID, UserID: req.UserID, Released: released}
		}

		available, err := questionRepo.AvailableIDs(ctx, req.Difficulty, kind, seenRepo.ExcludedQuestionIDs(req.UserID, now))
		if err != nil {
			return err
		}
		count := len(available)
		out.AvailableCount = &count

		requested := req.NumQuestions
		if req.ForceNum > 0 {
			requested = req.ForceNum
		}
		if len(available) == 0 || requested > len(available) {
			out.OutOfStock = true
			return nil
		}

		picked := sampleIDs(a.rnd, available, requested)
		loaded, err := questionRepo.FindWithOptions(ctx, picked)
		if err != nil {
			return err
		}
		byID := make(map[uint]model.Question, len(loaded))
		for _, q := range loaded {
			byID[q.ID] = q
		}

		session := &model.QuizSession{
			UserID:                req.UserID,
			Difficulty:            req.Difficulty,
			ChoiceCount:           int(kind),
			NumQuestionsRequested: requested,
			Status:                model.SessionActive,
			StartedAt:             now,
		}
		if err := sessionRepo.Create(ctx, session); err != nil {
			return err
		}
		// 内存锁只在单进程内生效，多实例部署且未启用 redis 时由这里兜底
		activeCount, err := sessionRepo.CountActiveByUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		if activeCount > 1 {
			return fmt.Errorf("%w: user %d already has an active session", util.ErrAllocationBusy, req.UserID)
		}

		until := now.Add(settings.ReserveTTL)
		items := make([]model.SessionQuestion, 0, len(picked))
		for i, id := range picked {
			q, ok := byID[id]
			if !ok || !q.IsComplete() {
				return fmt.Errorf("question %d is no longer eligible", id)
			}
			if err := seenRepo.Reserve(ctx, req.UserID, id, session.ID, until); err != nil {
				return err
			}
			optionIDs := make([]uint, 0, len(q.Options))
			for _, o := range q.Options {
				optionIDs = append(optionIDs, o.ID)
			}
			shuffle, err := a.Shuffle.Build(optionIDs, kind)
			if err != nil {
				return err
			}
			items = append(items, model.SessionQuestion{
				SessionID:  session.ID,
				QuestionID: id,
				OrderIndex: i,
				ShuffleMap: datatypes.NewJSONType(shuffle),
			})
		}
		if err := sessionRepo.CreateQuestions(ctx, items); err != nil {
			return err
		}
		session.Questions = items
		out.Session = session
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if purged > 0 {
		monitoring.ReservationsPurged.Add(float64(purged))
	}
	if abandoned != nil {
		logger.Log.Info("session abandoned on restart",
			zap.Uint("user_id", req.UserID),
			zap.Uint("session_id", abandoned.SessionID),
			zap.Int64("released", abandoned.Released))
		event.Emit(ctx, a.Events, event.SessionAbandoned, abandoned)
	}

	outcome := "created"
	switch {
	case out.Resumed:
		outcome = "resumed"
	case out.OutOfStock:
		outcome = "out_of_stock"
	}
	monitoring.AllocationCounter.WithLabelValues(outcome, strconv.Itoa(int(kind))).Inc()
	span.SetAttributes(attribute.String("outcome", outcome))

	fields := []zap.Field{
		zap.Uint("user_id", req.UserID),
		zap.String("outcome", outcome),
		zap.Int64("purged", purged),
	}
	if out.AvailableCount != nil {
		fields = append(fields, zap.Int("available", *out.AvailableCount))
	}
	if out.Session != nil {
		fields = append(fields, zap.Uint("session_id", out.Session.ID))
	}
	logger.Log.Info("quiz allocation", fields...)
	return out, nil
}

func abandonSession(ctx context.Context, sessions *repository.SessionRepository, seen *repository.SeenRepository, s *model.QuizSession) (int64, error) {
	changed, err := sessions.MarkAbandoned(ctx, s.ID)
	if err != nil {
		return 0, err
	}
	if !changed {
		return 0, util.ErrSessionNotActive
	}
	s.Status = model.SessionAbandoned
	return seen.ReleaseSession(ctx, s.UserID, s.ID)
}

// Abandon 主动放弃会话，仍处于预留状态的题目立即回到题池
func (a *SessionAllocator) Abandon(ctx context.Context, userID, sessionID uint) (int64, error) {
	ctx, span := tracing.Tracer().Start(ctx, "SessionAllocator.Abandon")
	defer span.End()

	unlock, err := a.lockUser(ctx, userID, a.Settings().LockTimeout)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var released int64
	err = a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessionRepo := a.SessionRepo.WithTx(tx)
		s, err := sessionRepo.FindByIDForUser(ctx, sessionID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrSessionNotFound
			}
			return err
		}
		if s.Status != model.SessionActive {
			return util.ErrSessionNotActive
		}
		released, err = abandonSession(ctx, sessionRepo, a.SeenRepo.WithTx(tx), s)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	logger.Log.Info("session abandoned",
		zap.Uint("user_id", userID),
		zap.Uint("session_id", sessionID),
		zap.Int64("released", released))
	event.Emit(ctx, a.Events, event.SessionAbandoned, event.SessionAbandonedPayload{
		SessionID: sessionID, UserID: userID, Released: released,
	})
	return released, nil
}
