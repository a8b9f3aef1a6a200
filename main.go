// @title Turing Arena API
// @version 1.0
// @description 人类回复与 AI 回复辨别答题服务。

// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"turing_arena/internal/app"
	"turing_arena/internal/config"
	"turing_arena/internal/util"
	"turing_arena/pkg/logger"

	"github.com/spf13/cobra"
)

// version 构建时通过 -ldflags 注入
var version = "(devel)"

var rootCmd = &cobra.Command{
	Use:           "turing-arena",
	Short:         "Human-vs-AI reply quiz backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.ForceMigrate = true
		logger.InitLogger(cfg)
		defer logger.Log.Sync()

		db, err := app.OpenDB(cfg)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		log.Println("数据库迁移完成")
		return nil
	},
}

// tokenCmd 本地联调时签发访问令牌，线上由外部认证服务签发
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed access token for a user id",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		userID, _ := cmd.Flags().GetUint("user")
		if userID == 0 {
			return errors.New("--user is required")
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := util.GenerateJWT(userID, cfg.JWT.Secret, ttl)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("turing-arena", version)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "configs", "Directory containing config.yaml")
	rootCmd.PersistentFlags().Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)

	tokenCmd.Flags().Uint("user", 0, "用户ID")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "令牌有效期")
	rootCmd.AddCommand(tokenCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ForceMigrate, _ = cmd.Flags().GetBool("migrate")
	return cfg, nil
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	application, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	return application.Run()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
