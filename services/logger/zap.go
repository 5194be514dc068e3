package logsvc

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/liamAduDonkor/adesua-sub000/core"
)

// ZapLogger writes structured entries.
// args are turned into fields: core.Fields are flattened, errors go under "error", anything else under "argN".
type ZapLogger struct {
	zl *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewZapLogger builds a JSON (production) or console (development) logger from the log config.
func NewZapLogger(conf *core.Config) (*ZapLogger, error) {
	var zc zap.Config
	if conf.Log.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.OutputPaths = []string{"stdout"}
		zc.ErrorOutputPaths = []string{"stderr"}
	}
	zc.Level = zap.NewAtomicLevelAt(parseLevel(conf.Log.Level))

	zl, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	zl = zl.With(zap.String("service_name", conf.AppName), zap.String("env", conf.Env))
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		zl = zl.With(zap.String("hostname", hostname))
	}
	return &ZapLogger{zl: zl}, nil
}

// NewZapLoggerFrom wraps an existing zap logger (e.g. an observer in tests).
func NewZapLoggerFrom(zl *zap.Logger) *ZapLogger {
	return &ZapLogger{zl: zl}
}

// NewNopLogger discards everything.
func NewNopLogger() *ZapLogger {
	return &ZapLogger{zl: zap.NewNop()}
}

// Named returns a child logger whose entries are tagged with name, e.g. "api" or "db".
func (l *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{zl: l.zl.Named(name)}
}

func (l *ZapLogger) Sync() error { return l.zl.Sync() }

func toFields(args []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch a := arg.(type) {
		case core.Fields:
			for k, v := range a {
				fields = append(fields, zap.Any(k, v))
			}
		case error:
			fields = append(fields, zap.Error(a))
		case nil:
		default:
			fields = append(fields, zap.Any(fmt.Sprintf("arg%d", i), a))
		}
	}
	return fields
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.zl.Debug(msg, toFields(args)...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.zl.Info(msg, toFields(args)...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.zl.Warn(msg, toFields(args)...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.zl.Error(msg, toFields(args)...) }
func (l *ZapLogger) Fatal(msg string, args ...interface{}) { l.zl.Fatal(msg, toFields(args)...) }
