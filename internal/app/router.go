package app

import (
	"turing_arena/docs"
	"turing_arena/internal/config"
	"turing_arena/internal/middleware"
	"turing_arena/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/health", c.health.HealthCheck)

	// 2. 答题接口，用户身份来自外部认证服务签发的 JWT
	quiz := router.Group("/api/quiz")
	quiz.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		quiz.GET("/stock", c.quiz.GetStock)
		quiz.POST("/sessions", c.quiz.StartSession)
		quiz.GET("/sessions/:id", c.quiz.GetSession)
		quiz.DELETE("/sessions/:id", c.quiz.AbandonSession)
		quiz.GET("/sessions/:id/result", c.quiz.GetResult)

		question := quiz.Group("/sessions/:id/questions/:index")
		{
			question.GET("", c.quiz.GetQuestion)
			question.GET("/phase1", c.quiz.GetPhase1Result)
			question.POST("/phase1", c.quiz.SubmitPhase1)
			question.GET("/phase2", c.quiz.GetPhase2)
			question.POST("/phase2", c.quiz.SubmitPhase2)
		}
	}
}
