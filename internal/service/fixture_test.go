package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"turing_arena/internal/model"
	"turing_arena/internal/repository"
	"turing_arena/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) Count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	db       *gorm.DB
	models   testutil.Models
	clock    *fakeClock
	events   *recordingPublisher
	sessions *repository.SessionRepository
	seen     *repository.SeenRepository

	alloc   *SessionAllocator
	answers *AnswerService
	life    *SessionLifecycle
	views   *QuizViewService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		db:       db,
		models:   testutil.CreateModels(t, db),
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		events:   &recordingPublisher{},
		sessions: repository.NewSessionRepository(db),
		seen:     repository.NewSeenRepository(db),
	}
	stats := repository.NewStatsRepository(db)

	f.alloc = NewSessionAllocator(db,
		repository.NewQuestionRepository(db), f.sessions, f.seen,
		NewMemoryLocker(), f.events, NewSeededSource(2026),
		AllocatorSettings{
			AllowedNumQuestions: []int{1, 3, 5, 10},
			ReserveTTL:          24 * time.Hour,
			LockTimeout:         2 * time.Second,
		})
	f.alloc.Now = f.clock.Now

	f.answers = NewAnswerService(db, f.sessions, f.seen)
	f.answers.Now = f.clock.Now

	f.life = NewSessionLifecycle(f.sessions, stats, f.events)
	f.life.Now = f.clock.Now

	f.views = NewQuizViewService(f.sessions, stats)
	return f
}

func (f *fixture) questions(t *testing.T, n int, kind model.ChoiceKind) map[uint]model.Question {
	t.Helper()
	out := make(map[uint]model.Question, n)
	for _, q := range testutil.CreateQuestions(t, f.db, f.models, n, testutil.QuestionSpec{Kind: kind}) {
		out[q.ID] = q
	}
	return out
}

func (f *fixture) start(t *testing.T, userID uint, kind model.ChoiceKind, num int) *Allocation {
	t.Helper()
	a, err := f.alloc.StartOrResume(context.Background(), StartRequest{
		UserID:       userID,
		Difficulty:   model.DifficultyNormal,
		ChoiceCount:  int(kind),
		NumQuestions: num,
	})
	require.NoError(t, err)
	return a
}

// available 非恢复结果一定带有 AvailableCount
func available(t *testing.T, a *Allocation) int {
	t.Helper()
	require.NotNil(t, a.AvailableCount)
	return *a.AvailableCount
}

func (f *fixture) sessionQuestion(t *testing.T, sessionID uint, index int) *model.SessionQuestion {
	t.Helper()
	sq, err := f.sessions.FindQuestion(context.Background(), sessionID, index)
	require.NoError(t, err)
	return sq
}

// answerPhase1 选择人类选项（correct）或任意一个 AI 选项
func (f *fixture) answerPhase1(t *testing.T, userID, sessionID uint, index int, correct bool) *Phase1Result {
	t.Helper()
	sq := f.sessionQuestion(t, sessionID, index)
	letter, humanID := humanLetter(sq)
	if !correct {
		for l, id := range sq.ShuffleMap.Data() {
			if id != humanID {
				letter = l
				break
			}
		}
	}
	res, err := f.answers.SubmitPhase1(context.Background(), Phase1Request{
		UserID: userID, SessionID: sessionID, OrderIndex: index, SelectedLetter: letter,
	})
	require.NoError(t, err)
	return res
}

func perfectAssignment(q model.Question) model.AssignmentMap {
	m := model.AssignmentMap{}
	for _, o := range q.AIOptions() {
		m[strconv.FormatUint(uint64(o.ID), 10)] = o.GroupSlug()
	}
	return m
}
