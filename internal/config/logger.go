package config

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "bank-notify-bot"

var ErrInvalidLogFormat = errors.New("invalid log format")

// NewLogger собирает zap логгер. JSON для прода: каждая запись несет service,
// ошибки идут со стектрейсом. console - цветной вывод для локального запуска.
// LOG_LEVEL=debug без явного формата тоже включает console.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level := parseLogLevel(cfg.Level)

	format, err := logFormat(cfg.Format, level)
	if err != nil {
		return nil, err
	}

	output := strings.TrimSpace(cfg.Output)
	if output == "" {
		output = "stderr"
	}

	encoder := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         format,
		EncoderConfig:    encoder,
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}

	switch format {
	case "console":
		zcfg.Development = true
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json":
		// поллер на сотне пользователей пишет одинаковые строки каждую минуту
		zcfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
		zcfg.InitialFields = map[string]interface{}{"service": serviceName}
	}

	logger, err := zcfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func logFormat(format string, level zapcore.Level) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "":
		if level == zapcore.DebugLevel {
			return "console", nil
		}
		return "json", nil
	case "json":
		return "json", nil
	case "console", "text":
		return "console", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLogFormat, format)
	}
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
