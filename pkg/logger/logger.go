package logger

import (
	"io"
	"os"

	"turing_arena/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 在 InitLogger 之前是 no-op，测试与工具命令可以直接使用
var Log = zap.NewNop()

func InitLogger(cfg *config.Config) {
	Log = New(cfg.Server.Mode, cfg.Log, os.Stdout)
}

// New 文件输出 JSON 并按 lumberjack 轮转；console 不为 nil 时同时输出到控制台
func New(mode string, lc config.LogConfig, console io.Writer) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	level := resolveLevel(mode, lc.Level)

	file := lc.File
	if file == "" {
		file = "logs/app.log"
	}
	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   file,
				MaxSize:    lc.MaxSizeMB,
				MaxBackups: lc.MaxBackups,
				MaxAge:     lc.MaxAgeDays,
				Compress:   true,
			}),
			level,
		),
	}
	if console != nil {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(console),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)).
		With(zap.String("service", "turing-arena"))
}

// resolveLevel 配置的级别无法解析时退回到按运行模式选择
func resolveLevel(mode, configured string) zapcore.Level {
	if configured != "" {
		if lvl, err := zapcore.ParseLevel(configured); err == nil {
			return lvl
		}
	}
	if mode == "debug" {
		return zap.DebugLevel
	}
	return zap.InfoLevel
}
