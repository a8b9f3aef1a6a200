package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"turing_arena/internal/config"
	"turing_arena/internal/controller"
	"turing_arena/internal/event"
	"turing_arena/internal/repository"
	"turing_arena/internal/service"
	"turing_arena/pkg/configwatcher"
	"turing_arena/pkg/database"
	"turing_arena/pkg/logger"
	"turing_arena/pkg/monitoring"
	"turing_arena/pkg/security"
	"turing_arena/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// redis 锁的过期时间，持有者崩溃后锁自动释放
const allocationLockTTL = 30 * time.Second

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Events          event.Publisher
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	question *repository.QuestionRepository
	session  *repository.SessionRepository
	seen     *repository.SeenRepository
	stats    *repository.StatsRepository
}

type services struct {
	allocator *service.SessionAllocator
	answers   *service.AnswerService
	lifecycle *service.SessionLifecycle
	views     *service.QuizViewService
}

type controllers struct {
	quiz   *controller.QuizController
	health *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		question: repository.NewQuestionRepository(db),
		session:  repository.NewSessionRepository(db),
		seen:     repository.NewSeenRepository(db),
		stats:    repository.NewStatsRepository(db),
	}
}

// initLocker 启用 Redis 时使用分布式锁，否则退化为进程内锁（仅适用于单实例）
func (a *App) initLocker() service.UserLocker {
	if a.Redis != nil {
		return service.NewRedisLocker(a.Redis, allocationLockTTL)
	}
	logger.Log.Warn("Redis disabled, using in-process allocation lock")
	return service.NewMemoryLocker()
}

func (a *App) initPublisher(cfg *config.EventsConfig) event.Publisher {
	if !cfg.Enabled {
		return event.NopPublisher{}
	}
	p, err := event.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange)
	if err != nil {
		logger.Log.Error("Failed to connect to AMQP, events disabled", zap.Error(err))
		return event.NopPublisher{}
	}
	logger.Log.Info("AMQP publisher ready", zap.String("exchange", cfg.Exchange))
	return p
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB) *services {
	s := &services{}

	s.allocator = service.NewSessionAllocator(
		db,
		repos.question,
		repos.session,
		repos.seen,
		a.initLocker(),
		a.Events,
		service.NewRuntimeSource(),
		service.SettingsFromConfig(cfg.Quiz),
	)
	a.RegisterConfigCallback(func(c *config.Config) {
		s.allocator.UpdateSettings(service.SettingsFromConfig(c.Quiz))
		logger.Log.Info("Quiz settings updated",
			zap.Ints("allowed_num_questions", c.Quiz.AllowedNumQuestions),
			zap.Int("reserve_ttl_hours", c.Quiz.ReserveTTLHours))
	})

	s.answers = service.NewAnswerService(db, repos.session, repos.seen)
	s.lifecycle = service.NewSessionLifecycle(repos.session, repos.stats, a.Events)
	s.views = service.NewQuizViewService(repos.session, repos.stats)
	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		quiz:   controller.NewQuizController(s.allocator, s.answers, s.lifecycle, s.views),
		health: controller.NewHealthController(db, a.Redis),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	if cfg.RateLimit.MaxRequests > 0 && cfg.RateLimit.WindowMinutes > 0 {
		router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))
	}

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// OpenDB 连接数据库，非 release 模式或指定 --migrate 时自动建表
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

func NewApp(cfg *config.Config) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)

	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}

	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		app.Redis = rdb
	}
	app.Events = app.initPublisher(&cfg.Events)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		app.tracer = tp
	}

	repos := app.initRepositories(db)
	app.services = app.initServices(repos, cfg, db)
	controllers := app.initControllers(app.services, db)

	// 监控初始化
	monitoring.Init()

	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	return app, nil
}

func (a *App) Run() error {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.Config.ConfigDir != "" {
		go func() {
			if err := configwatcher.WatchConfig(ctx, a.Config.ConfigDir, a.applyConfig); err != nil {
				logger.Log.Error("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.Close(shutdownCtx)

	logger.Log.Info("Server exiting")
	return nil
}

// Close 释放外部连接
func (a *App) Close(ctx context.Context) {
	if a.Events != nil {
		a.Events.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = logger.Log.Sync()
}
