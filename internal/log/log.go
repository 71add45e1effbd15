package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Options configures the global logger.
type Options struct {
	Level Level
	// Format is "console" (default) or "json".
	Format string
	// Output is a zap sink path; "stderr" if empty.
	Output string
}

var (
	mu     sync.RWMutex
	sugar  *zap.SugaredLogger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	inited sync.Once
)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// initLogger installs a console logger on stderr if Setup was never called.
func initLogger() {
	inited.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if sugar != nil {
			return
		}
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stderr), level)
		sugar = zap.New(core).Sugar()
	})
}

// Setup replaces the global logger.
func Setup(opts Options) error {
	if opts.Level != "" {
		SetLevel(opts.Level)
	}
	encoding := "console"
	if strings.EqualFold(opts.Format, "json") {
		encoding = "json"
	}
	out := opts.Output
	if out == "" {
		out = "stderr"
	}

	cfg := zap.Config{
		Level:            level,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig(),
		OutputPaths:      []string{out},
		ErrorOutputPaths: []string{"stderr"},
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}

	inited.Do(func() {})
	mu.Lock()
	old := sugar
	sugar = l.Sugar()
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
	return nil
}

// Sync flushes buffered entries.
func Sync() {
	if s := get(); s != nil {
		_ = s.Sync()
	}
}

func SetLevel(l Level) {
	level.SetLevel(toZap(l))
}

// ParseLevel maps a config string to a Level; unknown values mean INFO.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "WARNING":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	get().Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	get().Infow(msg, kv...)
}

func Warn(msg string, kv ...any) {
	get().Warnw(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	get().Errorw(msg, append([]any{"err", err}, kv...)...)
}

func get() *zap.SugaredLogger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func toZap(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
