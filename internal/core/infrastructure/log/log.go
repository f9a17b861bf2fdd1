// Package log 基于 zap 的日志实现
//
// 控制台输出写 stderr，stdout 留给命令结果；文件输出为 JSON，经 lumberjack 轮转。
package log

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	logconfig "github.com/weisyn/sandbox/internal/config/log"
	logif "github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
)

type zapLogger struct {
	z *zap.Logger
	s *zap.SugaredLogger
}

var _ logif.Logger = (*zapLogger)(nil)

// New 按配置创建记录器；没有任何输出时得到静默记录器
func New(cfg *logconfig.Config) (logif.Logger, error) {
	o := cfg.GetOptions()
	level := zap.NewAtomicLevelAt(zapLevel(o.Level))

	var cores []zapcore.Core
	if o.ToConsole {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig(true)), zapcore.Lock(os.Stderr), level))
	}
	if o.FilePath != "" {
		w, err := rotatingFile(o)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig(false)), w, level))
	}

	var opts []zap.Option
	if o.EnableCaller {
		// 跳过本包的封装层
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if o.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return Wrap(zap.New(zapcore.NewTee(cores...), opts...)), nil
}

func rotatingFile(o *logconfig.LogOptions) (zapcore.WriteSyncer, error) {
	path, err := filepath.Abs(o.FilePath)
	if err != nil {
		return nil, fmt.Errorf("解析日志文件路径失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    o.MaxSize,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAge,
		Compress:   o.Compress,
	}), nil
}

func encoderConfig(console bool) zapcore.EncoderConfig {
	ec := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	}
	if console {
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return ec
}

// zapLevel 未知级别按 info 处理，配置加载时已经校验过
func zapLevel(l logif.LogLevel) zapcore.Level {
	switch l {
	case logif.DebugLevel:
		return zapcore.DebugLevel
	case logif.WarnLevel:
		return zapcore.WarnLevel
	case logif.ErrorLevel:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// Wrap 把 zap.Logger 包装为 Logger
func Wrap(z *zap.Logger) logif.Logger {
	return &zapLogger{z: z, s: z.Sugar()}
}

func NewNopLogger() logif.Logger { return Wrap(zap.NewNop()) }

// OrNop nil 时返回静默记录器
func OrNop(logger logif.Logger) logif.Logger {
	if logger == nil {
		return NewNopLogger()
	}
	return logger
}

// fields 把 key, value 交替的参数转为 zap 字段，也接受现成的 zap.Field；落单的 key 被丢弃
func fields(args []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(args)/2)
	for i := 0; i < len(args); i++ {
		if f, ok := args[i].(zap.Field); ok {
			out = append(out, f)
			continue
		}
		if i+1 == len(args) {
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		out = append(out, zap.Any(key, args[i+1]))
		i++
	}
	return out
}

func (l *zapLogger) GetZapLogger() *zap.Logger { return l.z }

func (l *zapLogger) Debug(msg string)                          { l.s.Debug(msg) }
func (l *zapLogger) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *zapLogger) Info(msg string)                           { l.s.Info(msg) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *zapLogger) Warn(msg string)                           { l.s.Warn(msg) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *zapLogger) Error(msg string)                          { l.s.Error(msg) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }

func (l *zapLogger) With(args ...interface{}) logif.Logger {
	return Wrap(l.z.With(fields(args)...))
}

func (l *zapLogger) Sync() error { return l.z.Sync() }
