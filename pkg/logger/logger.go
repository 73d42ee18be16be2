// Copyright 2026 Pulsecast authors
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

package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used across the pipeline. It mirrors the
// zap sugared API so call sites stay flat key-value pairs.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, err error, keysAndValues ...interface{})
	WithComponent(component string) Logger
	WithValues(keysAndValues ...interface{}) Logger
}

type zapLogger struct {
	sugared *zap.SugaredLogger
}

var (
	defaultLock   sync.RWMutex
	defaultLogger Logger = newZapLogger(zap.NewNop())
)

// GetLogger returns the process-wide logger. It is a no-op logger until
// InitFromLevel or SetLogger is called.
func GetLogger() Logger {
	defaultLock.RLock()
	defer defaultLock.RUnlock()
	return defaultLogger
}

func SetLogger(l Logger) {
	defaultLock.Lock()
	defer defaultLock.Unlock()
	defaultLogger = l
}

// InitFromLevel installs a production zap logger at the given level
// ("debug", "info", "warn", "error").
func InitFromLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	conf := zap.NewProductionConfig()
	conf.Level = zap.NewAtomicLevelAt(lvl)
	conf.Sampling = nil
	l, err := conf.Build()
	if err != nil {
		return err
	}
	SetLogger(newZapLogger(l))
	return nil
}

func newZapLogger(l *zap.Logger) Logger {
	return &zapLogger{sugared: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *zapLogger) Debugw(msg string, keysAndValues ...interface{}) {
	l.sugared.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugared.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sugared.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Errorw(msg string, err error, keysAndValues ...interface{}) {
	if err != nil {
		keysAndValues = append(keysAndValues, "error", err)
	}
	l.sugared.Errorw(msg, keysAndValues...)
}

func (l *zapLogger) WithComponent(component string) Logger {
	return &zapLogger{sugared: l.sugared.With("component", component)}
}

func (l *zapLogger) WithValues(keysAndValues ...interface{}) Logger {
	return &zapLogger{sugared: l.sugared.With(keysAndValues...)}
}
