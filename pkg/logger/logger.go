package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process root logger. level is one of debug/info/warn/error,
// format is "json" or "console". Invalid values fall back to info/json so a
// bad config never mutes the process.
func New(level, format string) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "json"
	if format == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// ForCamera returns a sugared logger scoped to one camera. Every component
// that works per camera logs through this so log lines stay greppable by id.
func ForCamera(base *zap.SugaredLogger, cameraID string) *zap.SugaredLogger {
	return base.With("camera_id", cameraID)
}
