// Copyright 2024 Celine Data Platform Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the structured logging facade used across the
// gateway. Tokens and other secrets must never be passed as fields.
package log

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured logging key/value pair.
type Field = zap.Field

// String, Int, Err, and friends let callers build Fields without importing zap directly.
func String(key, val string) Field { return zap.String(key, val) }
func Int(key string, val int) Field { return zap.Int(key, val) }
func Err(err error) Field           { return zap.Error(err) }
func Any(key string, val any) Field { return zap.Any(key, val) }
func Duration(key string, nanos int64) Field {
	return zap.Int64(key, nanos)
}

// Logger is the interface every component depends on. It is satisfied by
// both the human-readable and JSON-structured backends below.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}

func levelFromString(level string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// NewStdLogger returns a human-readable, console-encoded Logger writing
// enabled levels below ERROR (including WARN) to out and ERROR+ to errOut.
// Intended for local development.
func NewStdLogger(out, errOut io.Writer, level string) (Logger, error) {
	lvl, err := levelFromString(level)
	if err != nil {
		return nil, err
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encoder := zapcore.NewConsoleEncoder(encCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(out), zapcore.LevelEnabler(levelAtOrAbove(lvl, zapcore.ErrorLevel, false))),
		zapcore.NewCore(encoder, zapcore.AddSync(errOut), zapcore.LevelEnabler(levelAtOrAbove(lvl, zapcore.ErrorLevel, true))),
	)
	return &zapLogger{l: zap.New(core)}, nil
}

// NewStructuredLogger returns a JSON-encoded Logger suitable for ingestion by
// a log pipeline. Intended for production deployments.
func NewStructuredLogger(out, errOut io.Writer, level string) (Logger, error) {
	lvl, err := levelFromString(level)
	if err != nil {
		return nil, err
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.LevelKey = "severity"
	encoder := zapcore.NewJSONEncoder(encCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(out), zapcore.LevelEnabler(levelAtOrAbove(lvl, zapcore.ErrorLevel, false))),
		zapcore.NewCore(encoder, zapcore.AddSync(errOut), zapcore.LevelEnabler(levelAtOrAbove(lvl, zapcore.ErrorLevel, true))),
	)
	return &zapLogger{l: zap.New(core)}, nil
}

// levelAtOrAbove returns a LevelEnabler gated by the configured minimum
// level, additionally splitting error-and-above onto errOut (errSide set) vs
// everything below error, warn included, onto out (errSide unset).
func levelAtOrAbove(min, errLevel zapcore.Level, errSide bool) zapcore.LevelEnabler {
	return zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		if l < min {
			return false
		}
		if errSide {
			return l >= errLevel
		}
		return l < errLevel
	})
}
