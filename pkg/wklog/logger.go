package wklog

import (
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger      *zap.Logger // info日志
	warnLogger  *zap.Logger // 警告日志
	errorLogger *zap.Logger // 错误日志
	panicLogger *zap.Logger // panic日志
	atom        = zap.NewAtomicLevel()
	opts        *Options
	configureMu sync.Mutex
)

func Configure(op *Options) {
	configureMu.Lock()
	defer configureMu.Unlock()

	if op.MaxSize <= 0 {
		op.MaxSize = 500
	}
	atom.SetLevel(op.Level)
	opts = op

	loggerOpts := make([]zap.Option, 0)
	if opts.LineNum {
		loggerOpts = append(loggerOpts, zap.AddCaller(), zap.AddCallerSkip(2))
	}
	if opts.NodeId != 0 {
		loggerOpts = append(loggerOpts, zap.Fields(zap.Uint64("nodeId", opts.NodeId)))
	}

	logger = newLogger("info.log", atom, loggerOpts...)
	warnLogger = newLogger("warn.log", zap.WarnLevel, loggerOpts...)
	errorLogger = newLogger("error.log", zap.ErrorLevel, loggerOpts...)
	panicLogger = newLogger("panic.log", zap.PanicLevel, append(loggerOpts, zap.AddStacktrace(zapcore.PanicLevel))...)
}

func newLogger(filename string, level zapcore.LevelEnabler, loggerOpts ...zap.Option) *zap.Logger {
	writers := make([]zapcore.WriteSyncer, 0, 2)
	if !opts.NoStdout {
		writers = append(writers, zapcore.AddSync(os.Stdout))
	}
	if strings.TrimSpace(opts.LogDir) != "" {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   path.Join(opts.LogDir, filename),
			MaxSize:    opts.MaxSize, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}))
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(newEncoderConfig()),
		zapcore.NewMultiWriteSyncer(writers...),
		level,
	)
	return zap.New(core, loggerOpts...)
}

func Level() zapcore.Level {
	return atom.Level()
}

// SetLevel 动态调整日志级别
func SetLevel(level zapcore.Level) {
	atom.SetLevel(level)
}

func newEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "time",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "linenum",
		MessageKey:    "msg",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("2006-01-02T15:04:05.999999999-07:00"))
		},
		EncodeDuration: func(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendInt64(int64(d) / 1000000)
		},
	}
}

func ensureConfigured() {
	configureMu.Lock()
	configured := logger != nil
	configureMu.Unlock()
	if !configured {
		Configure(&Options{Level: zapcore.InfoLevel})
	}
}

func Info(msg string, fields ...zap.Field) {
	ensureConfigured()
	logger.Info(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	ensureConfigured()
	logger.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	ensureConfigured()
	logger.Warn(msg, fields...)
	warnLogger.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	ensureConfigured()
	logger.Error(msg, fields...)
	errorLogger.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	ensureConfigured()
	panicLogger.Fatal(msg, fields...)
}

func Panic(msg string, fields ...zap.Field) {
	ensureConfigured()
	panicLogger.Panic(msg, fields...)
}

func Sync() error {
	ensureConfigured()
	for name, l := range map[string]*zap.Logger{
		"panicLogger": panicLogger,
		"errorLogger": errorLogger,
		"warnLogger":  warnLogger,
		"logger":      logger,
	} {
		if err := l.Sync(); err != nil {
			fmt.Println(name, "sync error", err)
		}
	}
	return nil
}

// Log 带前缀的日志
type Log interface {
	Info(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)
	Panic(msg string, fields ...zap.Field)
}

type WKLog struct {
	prefix string // 日志前缀
}

func NewWKLog(prefix string) *WKLog {
	return &WKLog{prefix: prefix}
}

func (t *WKLog) withPrefix(msg string) string {
	var b strings.Builder
	b.Grow(len(t.prefix) + len(msg) + 6)
	b.WriteString("【")
	b.WriteString(t.prefix)
	b.WriteString("】")
	b.WriteString(msg)
	return b.String()
}

func (t *WKLog) Info(msg string, fields ...zap.Field) {
	Info(t.withPrefix(msg), fields...)
}

func (t *WKLog) Debug(msg string, fields ...zap.Field) {
	Debug(t.withPrefix(msg), fields...)
}

func (t *WKLog) Warn(msg string, fields ...zap.Field) {
	Warn(t.withPrefix(msg), fields...)
}

func (t *WKLog) Error(msg string, fields ...zap.Field) {
	Error(t.withPrefix(msg), fields...)
}

func (t *WKLog) Fatal(msg string, fields ...zap.Field) {
	Fatal(t.withPrefix(msg), fields...)
}

func (t *WKLog) Panic(msg string, fields ...zap.Field) {
	Panic(t.withPrefix(msg), fields...)
}
