// Package logger содержит настройку логгера.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config описывает вывод логов
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json или console
	Output     string // stderr (по умолчанию), stdout, file или both (stderr и файл)
	FilePath   string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
}

// New создает логгер по конфигурации
func New(config Config) (*zap.Logger, error) {
	return newWithConsole(config, os.Stdout, os.Stderr)
}

func newWithConsole(config Config, stdout, stderr io.Writer) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if config.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	level := parseLevel(config.Level)

	var cores []zapcore.Core

	// Консольный вывод. stdout занят диалогом с пользователем, поэтому по умолчанию stderr
	switch config.Output {
	case "", "stderr", "both":
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(stderr), level))
	case "stdout":
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(stdout), level))
	case "file":
	default:
		return nil, fmt.Errorf("unsupported log output %q", config.Output)
	}

	// Файловый вывод с ротацией
	if config.Output == "file" || config.Output == "both" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		rotator := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   true,
		}

		// В файл всегда пишем JSON
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// parseLevel получает уровень логирования, по умолчанию info
func parseLevel(level string) zapcore.Level {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return parsed
}

// NewNop создает пустой логгер для случаев, когда логирование не нужно
func NewNop() *zap.Logger {
	return zap.NewNop()
}
