package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapConfig is used only when a Logger has to be handed to code that wants zap directly.
func zapConfig(level zapcore.Level) zap.Config {
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// sugared builds a zap logger at this logger's level. Appenders that are zap cores, like the
// test observer, are teed in; the others are not reachable through zap.
func (imp *impl) sugared() *zap.SugaredLogger {
	logger := zap.Must(zapConfig(imp.Level()).Build()).Sugar().Named(imp.name)
	for _, appender := range imp.appenders {
		core, ok := appender.(zapcore.Core)
		if !ok {
			continue
		}
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}))
	}
	return logger
}

func (imp *impl) Desugar() *zap.Logger {
	return imp.sugared().Desugar()
}

func (imp *impl) Level() zapcore.Level {
	return imp.GetLevel().AsZap()
}

func (imp *impl) Named(name string) *zap.SugaredLogger {
	return imp.sugared().Named(name)
}

func (imp *impl) With(args ...interface{}) *zap.SugaredLogger {
	return imp.sugared().With(args...)
}

func (imp *impl) WithOptions(opts ...zap.Option) *zap.SugaredLogger {
	return imp.sugared().WithOptions(opts...)
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	return imp.sugared()
}
