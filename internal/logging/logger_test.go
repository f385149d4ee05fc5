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

package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
)

type LoggerTestSuite struct {
	suite.Suite
	buf      bytes.Buffer
	oldLevel int
}

func (s *LoggerTestSuite) SetupTest() {
	s.buf.Reset()
	s.oldLevel = Level()
	SetOutput(&s.buf)
}

func (s *LoggerTestSuite) TearDownTest() {
	SetLogLevel(s.oldLevel)
	SetOutput(os.Stderr)
}

func (s *LoggerTestSuite) TestLevels() {
	SetLogLevel(LevelTrace)
	l := Named("mailbox")

	l.Tracef("this is tracef %s", "hello world")
	l.Debugf("this is debugf %s", "hello world")
	l.Infof("this is infof %s", "hello world")
	l.Warnf("this is warnf %s", "hello world")
	l.Errorf("this is errorf %s", "hello world")

	out := s.buf.String()
	s.Contains(out, "[trace] this is tracef hello world")
	s.Contains(out, "this is debugf hello world")
	s.Contains(out, "this is infof hello world")
	s.Contains(out, "this is warnf hello world")
	s.Contains(out, "this is errorf hello world")
	s.Contains(out, "mailbox")
	s.Contains(out, "logger_test.go")
}

func (s *LoggerTestSuite) TestFiltering() {
	SetLogLevel(LevelWarn)
	l := Named("")
	l.Infof("hidden %d", 1)
	l.Debugf("hidden %d", 2)
	s.Empty(s.buf.String())

	l.Warnf("shown %d", 3)
	s.Contains(s.buf.String(), "shown 3")

	SetLogLevel(LevelNoPrint)
	s.buf.Reset()
	l.Errorf("hidden %d", 4)
	s.Empty(s.buf.String())
}

func (s *LoggerTestSuite) TestSetLogLevelIgnoresInvalid() {
	SetLogLevel(LevelInfo)
	SetLogLevel(42)
	s.Equal(LevelInfo, Level())
}

func (s *LoggerTestSuite) TestParseLevel() {
	l, ok := ParseLevel("2")
	s.True(ok)
	s.Equal(LevelInfo, l)

	l, ok = ParseLevel("Debug")
	s.True(ok)
	s.Equal(LevelDebug, l)

	_, ok = ParseLevel("9")
	s.False(ok)
	_, ok = ParseLevel("loud")
	s.False(ok)
	_, ok = ParseLevel("")
	s.False(ok)
}

func TestLoggerTestSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}
