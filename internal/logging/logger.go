/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logging is the leveled logger shared by the mailbox, producer and worker.
//
// The level defaults to Warn and can be changed with SetLogLevel or the
// SHMSUM_LOG_LEVEL environment variable, which accepts either the numeric level
// (0 = Trace ... 5 = NoPrint) or its name. Output goes to stderr so that stdout
// stays reserved for results.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

const timeLayout = "2006-01-02 15:04:05.999999"

var levelNames = []string{
	"trace",
	"debug",
	"info",
	"warn",
	"error",
	"noprint",
}

var (
	level atomic.Int32
	base  atomic.Pointer[zap.SugaredLogger]
)

func init() {
	level.Store(LevelWarn)
	if l, ok := ParseLevel(os.Getenv("SHMSUM_LOG_LEVEL")); ok {
		level.Store(int32(l))
	}
	SetOutput(os.Stderr)
}

// ParseLevel accepts a numeric level or a level name.
func ParseLevel(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n >= LevelTrace && n <= LevelNoPrint {
			return n, true
		}
		return 0, false
	}
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return i, true
		}
	}
	return 0, false
}

// SetLogLevel changes the level of every logger. The default is Warn.
func SetLogLevel(l int) {
	if l >= LevelTrace && l <= LevelNoPrint {
		level.Store(int32(l))
	}
}

// Level returns the current level.
func Level() int { return int(level.Load()) }

// SetOutput redirects every logger to w.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		CallerKey:        "C",
		MessageKey:       "M",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalColorLevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), zapcore.DebugLevel)
	base.Store(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar())
}

// Sync flushes buffered output.
func Sync() {
	_ = base.Load().Sync()
}

// Logger is a named view of the shared logger.
type Logger struct {
	name string
}

// Named returns a logger whose lines carry name.
func Named(name string) *Logger {
	return &Logger{name: name}
}

func (l *Logger) sugar() *zap.SugaredLogger {
	s := base.Load()
	if l.name != "" {
		s = s.Named(l.name)
	}
	return s
}

func enabled(l int) bool {
	return int(level.Load()) <= l
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	if !enabled(LevelError) {
		return
	}
	l.sugar().Errorf(format, a...)
}

func (l *Logger) Warnf(format string, a ...interface{}) {
	if !enabled(LevelWarn) {
		return
	}
	l.sugar().Warnf(format, a...)
}

func (l *Logger) Infof(format string, a ...interface{}) {
	if !enabled(LevelInfo) {
		return
	}
	l.sugar().Infof(format, a...)
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	if !enabled(LevelDebug) {
		return
	}
	l.sugar().Debugf(format, a...)
}

// Tracef logs at zap's debug level with a trace marker; zap has no level below debug.
func (l *Logger) Tracef(format string, a ...interface{}) {
	if !enabled(LevelTrace) {
		return
	}
	l.sugar().Debugf("[trace] "+format, a...)
}
