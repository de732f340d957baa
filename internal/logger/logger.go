package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"guild-warden/internal/config"
)

var (
	mu    sync.RWMutex
	sugar = newConsole(zapcore.InfoLevel).Sugar()
)

func newConsole(level zapcore.Level) *zap.Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig("2006/01/02 15:04:05", time.Local)), zapcore.Lock(os.Stdout), level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

func encoderConfig(timeFormat string, loc *time.Location) zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	ec.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(loc).Format(timeFormat))
	}
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	return ec
}

// ParseLevel maps the configured level names onto zap levels
func ParseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARNING", "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// createLogFilePath generates a log file path with the current date
func createLogFilePath(logDir, prefix string) string {
	currentDate := time.Now().Format("2006-01-02")
	return filepath.Join(logDir, fmt.Sprintf("%s-%s.log", prefix, currentDate))
}

// createRotatingLogger creates a lumberjack rotating logger
func createRotatingLogger(logFilePath string, cfg *config.Config) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    cfg.Logger.Rotation.MaxSize,
		MaxBackups: cfg.Logger.Rotation.MaxBackups,
		MaxAge:     cfg.Logger.Rotation.MaxAge,
		Compress:   cfg.Logger.Rotation.Compress,
	}
}

// Setup configures logging to output to both stdout and a rotating log file
func Setup(cfg *config.Config) error {
	logDir := cfg.Logger.Directory

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Logger.Timezone)
	if err != nil {
		loc = time.Local
	}

	logFilePath := createLogFilePath(logDir, "guild-warden")
	build(cfg, loc, zapcore.AddSync(createRotatingLogger(logFilePath, cfg)))

	Infof("Logging initialized: writing to %s", logFilePath)
	return nil
}

// SetOutput points the logger at w only, used by tests and one-shot CLI commands
func SetOutput(w io.Writer, level string) {
	ec := encoderConfig("2006/01/02 15:04:05", time.Local)
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.AddSync(w), ParseLevel(level))
	replace(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)))
}

func build(cfg *config.Config, loc *time.Location, file zapcore.WriteSyncer) {
	ec := encoderConfig(cfg.Logger.TimeFormat, loc)
	level := ParseLevel(cfg.Logger.Level)
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(ec), file, level),
	)
	replace(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)))
}

func replace(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	_ = sugar.Sync()
	sugar = l.Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Sync flushes buffered entries, call before exit
func Sync() {
	_ = current().Sync()
}

func Debugf(format string, args ...interface{}) { current().Debugf(format, args...) }

func Infof(format string, args ...interface{}) { current().Infof(format, args...) }

func Info(args ...interface{}) { current().Info(args...) }

func Warningf(format string, args ...interface{}) { current().Warnf(format, args...) }

func Warning(args ...interface{}) { current().Warn(args...) }

func Errorf(format string, args ...interface{}) { current().Errorf(format, args...) }

func Error(args ...interface{}) { current().Error(args...) }

func Fatalf(format string, args ...interface{}) { current().Fatalf(format, args...) }
