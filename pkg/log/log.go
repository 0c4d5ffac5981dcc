package log

import (
	"fmt"
	"os"
	"path/filepath"
	"toz-go/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFileName 是 output_path 目录下的日志文件名。
const LogFileName = "app.log"

// Init 之前使用 no-op logger，测试中无需初始化。
var sugar = zap.NewNop().Sugar()

// Init 按 cfg 构建全局 logger。
// 无法识别的级别按 info 处理；format 为 console 时输出彩色文本，其余一律 json。
func Init(cfg config.LogConfig) error {
	zapConfig, err := buildConfig(cfg)
	if err != nil {
		return err
	}
	logger, err := zapConfig.Build()
	if err != nil {
		return fmt.Errorf("构建 logger 失败: %w", err)
	}
	sugar = logger.Sugar()
	return nil
}

func buildConfig(cfg config.LogConfig) (zap.Config, error) {
	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.Encoding = "json"
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.Level = parseLevel(cfg.Level)

	zc.OutputPaths = []string{"stdout"}
	if cfg.OutputPath != "" {
		if err := os.MkdirAll(cfg.OutputPath, 0o755); err != nil {
			return zc, fmt.Errorf("创建日志目录 %s 失败: %w", cfg.OutputPath, err)
		}
		zc.OutputPaths = append(zc.OutputPaths, filepath.Join(cfg.OutputPath, LogFileName))
	}
	return zc, nil
}

func parseLevel(level string) zap.AtomicLevel {
	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if level == "" {
		return lvl
	}
	_ = lvl.UnmarshalText([]byte(level))
	return lvl
}

func Info(msg string) {
	sugar.Info(msg)
}

func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow 以键值对形式记录结构化日志，下同。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	sugar.Warnw(msg, keysAndValues...)
}

// Error 把 err 挂在 "error" 字段上。
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	sugar.Errorw(msg, keysAndValues...)
}

// Fatal 记录后调用 os.Exit(1)。
func Fatal(msg string, err error) {
	sugar.Fatalw(msg, "error", err)
}

func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}

// Sync 刷新缓冲的日志。
func Sync() {
	_ = sugar.Sync()
}
