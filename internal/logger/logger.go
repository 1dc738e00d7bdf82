// Package logger builds the pipeline's zap logger and provides the
// phase-event conventions used throughout the run log.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures logger construction.
type Options struct {
	// LogFile, when non-empty, tees every record to this file (JSON lines).
	LogFile string
	// JSONMode switches console output from human-readable lines to JSON.
	// Defaults to LOG_FORMAT=json when unset via NewFromEnv.
	JSONMode bool
}

// Logger wraps a sugared zap logger with pipeline phase helpers.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a logger writing to stdout and optionally a log file.
func New(opts Options) (*Logger, error) {
	var cores []zapcore.Core

	level := zap.InfoLevel
	if opts.JSONMode {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(os.Stdout),
			level,
		))
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stdout),
			level,
		))
	}

	if opts.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(f),
			level,
		))
	}

	z := zap.New(zapcore.NewTee(cores...))
	return &Logger{sugar: z.Sugar()}, nil
}

// NewFromEnv builds a logger honoring LOG_FORMAT=json.
func NewFromEnv(logFile string) (*Logger, error) {
	return New(Options{
		LogFile:  logFile,
		JSONMode: strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"),
	})
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Info logs at info level with optional key-value pairs.
func (l *Logger) Info(msg string, kv ...interface{}) {
	l.sugar.Infow(msg, kv...)
}

// Warn logs at warn level with optional key-value pairs.
func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.sugar.Warnw(msg, kv...)
}

// Error logs at error level with optional key-value pairs.
func (l *Logger) Error(msg string, kv ...interface{}) {
	l.sugar.Errorw(msg, kv...)
}

// PhaseStart logs the beginning of a named pipeline phase.
func (l *Logger) PhaseStart(phase string, iteration int) {
	l.sugar.Infow(fmt.Sprintf("[%s] started", phase),
		"event", "phase_start", "phase", phase, "iteration", iteration)
}

// PhaseEnd logs the end of a named pipeline phase with its result.
func (l *Logger) PhaseEnd(phase, result string, iteration int) {
	l.sugar.Infow(fmt.Sprintf("[%s] %s", phase, strings.ToUpper(result)),
		"event", "phase_end", "phase", phase, "result", result, "iteration", iteration)
}

// Sync flushes buffered records. Safe to call on exit.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}
