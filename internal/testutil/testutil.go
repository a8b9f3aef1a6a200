// Package testutil 提供基于内存 SQLite 的测试数据库与题库数据
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"turing_arena/internal/model"
	"turing_arena/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB 每个测试独立的内存库。单连接，事务内只能使用 tx。
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// Models gpt / claude / gemini 三个模型系列
type Models struct {
	GPT    model.LlmModel
	Claude model.LlmModel
	Gemini model.LlmModel
}

func (m Models) All() []model.LlmModel {
	return []model.LlmModel{m.GPT, m.Claude, m.Gemini}
}

func CreateModels(t *testing.T, db *gorm.DB) Models {
	t.Helper()
	mk := func(provider, group, slug, api string) model.LlmModel {
		m := model.LlmModel{
			Provider:         provider,
			DisplayGroup:     group,
			DisplayGroupSlug: slug,
			DisplayName:      api,
			APIModelName:     api,
		}
		require.NoError(t, db.Create(&m).Error)
		return m
	}
	return Models{
		GPT:    mk("openai", "GPT", "gpt", "openai/gpt-4o-mini"),
		Claude: mk("anthropic", "Claude", "claude", "anthropic/claude-3.5-haiku"),
		Gemini: mk("google", "Gemini", "gemini", "google/gemini-2.0-flash"),
	}
}

// QuestionSpec 描述一道题；零值字段取默认（已发布、全部生成成功）
type QuestionSpec struct {
	Difficulty model.Difficulty
	Kind       model.ChoiceKind
	Status     model.QuestionStatus
	// AIModels 为空时按题型取前 n-1 个模型
	AIModels []model.LlmModel
	// FailGeneration 把第一个 AI 选项标记为生成失败
	FailGeneration bool
	// HumanCount 默认 1
	HumanCount int
}

// CreateQuestion 写入场景、题目和选项，返回预加载了选项与模型的题目
func CreateQuestion(t *testing.T, db *gorm.DB, models Models, qs QuestionSpec) model.Question {
	t.Helper()
	if qs.Difficulty == "" {
		qs.Difficulty = model.DifficultyNormal
	}
	if qs.Kind == 0 {
		qs.Kind = model.FourChoice
	}
	if qs.Status == "" {
		qs.Status = model.QuestionPublished
	}
	if qs.HumanCount == 0 {
		qs.HumanCount = 1
	}
	if qs.AIModels == nil {
		qs.AIModels = models.All()[:qs.Kind.AIOptionCount()]
	}

	scenario := model.Scenario{UserMessageText: "今日の夕飯、何にしようかな", Genre: "daily"}
	require.NoError(t, db.Create(&scenario).Error)

	now := time.Now().UTC()
	q := model.Question{
		ScenarioID:  scenario.ID,
		Status:      qs.Status,
		Difficulty:  qs.Difficulty,
		ChoiceCount: int(qs.Kind),
		PublishedAt: &now,
	}
	require.NoError(t, db.Create(&q).Error)

	for i := 0; i < qs.HumanCount; i++ {
		o := model.Option{
			QuestionID:       q.ID,
			AuthorType:       model.AuthorHuman,
			ContentText:      fmt.Sprintf("human reply %d", i),
			GenerationStatus: model.GenerationOK,
		}
		require.NoError(t, db.Create(&o).Error)
	}
	for i, m := range qs.AIModels {
		id := m.ID
		status := model.GenerationOK
		if qs.FailGeneration && i == 0 {
			status = model.GenerationError
		}
		o := model.Option{
			QuestionID:       q.ID,
			AuthorType:       model.AuthorAI,
			LlmModelID:       &id,
			ContentText:      fmt.Sprintf("%s reply", m.DisplayGroupSlug),
			GenerationStatus: status,
		}
		require.NoError(t, db.Create(&o).Error)
	}

	var loaded model.Question
	require.NoError(t, db.
		Preload("Scenario").
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("options.id") }).
		Preload("Options.LlmModel").
		First(&loaded, q.ID).Error)
	return loaded
}

// CreateQuestions 批量创建 n 道相同规格的题目
func CreateQuestions(t *testing.T, db *gorm.DB, models Models, n int, qs QuestionSpec) []model.Question {
	t.Helper()
	out := make([]model.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, CreateQuestion(t, db, models, qs))
	}
	return out
}
