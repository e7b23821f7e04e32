package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"detectserver/internal/config"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides leveled logging (info/warning/error) to rotating files and stdout/stderr.
type Logger struct {
	sugar  *zap.SugaredLogger
	files  map[string]*lumberjack.Logger
	logDir string
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(cfg *config.Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	minLevel := zapcore.InfoLevel
	if err := minLevel.Set(cfg.LogLevel); err != nil {
		minLevel = zapcore.InfoLevel
	}

	l := &Logger{logDir: cfg.LogDirectory, files: make(map[string]*lumberjack.Logger)}

	consoleEnc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stdout), levelBetween(minLevel, zapcore.WarnLevel)),
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), levelBetween(zapcore.ErrorLevel, zapcore.FatalLevel)),
	}
	for _, lvl := range []struct {
		file  string
		level zapcore.Level
	}{
		{"info.log", zapcore.InfoLevel},
		{"warning.log", zapcore.WarnLevel},
		{"error.log", zapcore.ErrorLevel},
	} {
		if lvl.level < minLevel {
			continue
		}
		w := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDirectory, lvl.file),
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		l.files[lvl.file] = w
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(w), levelBetween(lvl.level, lvl.level)))
	}

	l.sugar = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return l, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func levelBetween(lo, hi zapcore.Level) zap.LevelEnablerFunc {
	return func(l zapcore.Level) bool { return l >= lo && l <= hi }
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	fileName = filepath.Base(fileName)
	filePath := filepath.Join(l.logDir, fileName)
	// The writer reopens in append mode on its next write, so it picks up
	// the truncated size instead of writing at its old offset.
	if w, ok := l.files[fileName]; ok {
		if err := w.Close(); err != nil {
			l.Error("Error closing log file %s: %v", filePath, err)
			return err
		}
	}
	if err := os.Truncate(filePath, 0); err != nil {
		l.Error("Error truncating log file %s: %v", filePath, err)
		return err
	}
	l.Info("Log file %s has been cleared", fileName)
	return nil
}

// Close flushes buffered entries and closes the rotating files.
func (l *Logger) Close() error {
	err := l.sugar.Sync()
	// stdout and stderr cannot be synced when they are a terminal or a pipe.
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		err = nil
	}
	for _, f := range l.files {
		err = multierr.Append(err, f.Close())
	}
	return err
}
