/*
 * Copyright 2025 SREDiag Authors
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

//go:build linux

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/shm-mailbox/pkg/mailbox"
)

const envCmdHelper = "SHMSUM_CMD_HELPER"

// TestMain lets the test binary act as the shmsum binary when a test re-executes it
// as a worker.
func TestMain(m *testing.M) {
	if os.Getenv(envCmdHelper) == "1" {
		os.Exit(Execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

type CmdTestSuite struct {
	suite.Suite
	dir    string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func (s *CmdTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.stdout.Reset()
	s.stderr.Reset()
	s.T().Setenv(envCmdHelper, "1")
}

func (s *CmdTestSuite) execute(stdin string, args ...string) int {
	return Execute(args, strings.NewReader(stdin), &s.stdout, &s.stderr)
}

func (s *CmdTestSuite) runArgs(target string, extra ...string) []string {
	args := []string{"run", "--worker-path", os.Args[0], "--mailbox-dir", s.dir, "--unique-name"}
	return append(append(args, extra...), target)
}

func (s *CmdTestSuite) TestRun() {
	target := filepath.Join(s.dir, "out.txt")
	code := s.execute("1.5 2.5 3\n", s.runArgs(target)...)
	s.Equal(0, code, s.stderr.String())
	s.Equal("7.00\n", s.stdout.String())

	data, err := os.ReadFile(target)
	s.Require().NoError(err)
	s.Equal("7.00\n", string(data))

	entries, err := os.ReadDir(s.dir)
	s.Require().NoError(err)
	s.Len(entries, 1, "only the result file is left behind")
}

func (s *CmdTestSuite) TestRunBatch() {
	target := filepath.Join(s.dir, "out.txt")
	code := s.execute("1\n2 3\n", s.runArgs(target, "--batch")...)
	s.Equal(0, code, s.stderr.String())
	s.Equal("1.00\n5.00\n", s.stdout.String())
}

func (s *CmdTestSuite) TestRunErrorResponse() {
	code := s.execute("3 foo 2\n", s.runArgs(filepath.Join(s.dir, "out.txt"))...)
	s.Equal(1, code)
	s.Empty(s.stdout.String())
	s.Equal("Invalid character in input\n", s.stderr.String())
}

func (s *CmdTestSuite) TestRunEmptyInput() {
	code := s.execute("", s.runArgs(filepath.Join(s.dir, "out.txt"))...)
	s.Equal(0, code, s.stderr.String())
	s.Empty(s.stdout.String())
	s.NoFileExists(filepath.Join(s.dir, "out.txt"))
}

func (s *CmdTestSuite) TestRunUsage() {
	s.Equal(0, s.execute("", "run"))
	s.Contains(s.stderr.String(), "usage:")
}

func (s *CmdTestSuite) TestBadConfig() {
	s.Equal(1, s.execute("", "run", "--capacity", "3", "out.txt"))
	s.Contains(s.stderr.String(), "ERROR: capacity")
}

func (s *CmdTestSuite) TestWorkerAttachFailed() {
	s.T().Setenv("SHMSUM_ATTACH_RETRIES", "0")
	code := s.execute("", "worker", "--mailbox-dir", s.dir, "--mailbox-name", "absent", filepath.Join(s.dir, "out.txt"))
	s.Equal(1, code)
	s.Contains(s.stderr.String(), "ChannelAttachFailed")
}

func (s *CmdTestSuite) TestInspect() {
	name := "inspect-" + uuid.NewString()
	mb, err := mailbox.Create(context.Background(), name, mailbox.WithDir(s.dir))
	s.Require().NoError(err)
	defer func() { s.NoError(mb.Destroy()) }()

	code := s.execute("", "inspect", "--mailbox-dir", s.dir, "--pid", strconv.Itoa(os.Getpid()), name)
	s.Equal(0, code, s.stderr.String())
	out := s.stdout.String()
	s.Contains(out, "kind:Empty")
	s.Contains(out, "magic:0x584f424d")
	s.Contains(out, "region     OK")
	s.Contains(out, "worker     OK")
}

func (s *CmdTestSuite) TestInspectMissing() {
	code := s.execute("", "inspect", "--mailbox-dir", s.dir, "absent")
	s.Equal(1, code)
	s.Contains(s.stdout.String(), "region     FAIL")
	s.Contains(s.stderr.String(), "ERROR: inspect absent")
}

func (s *CmdTestSuite) TestWorkerHidden() {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		if !c.Hidden {
			names = append(names, c.Name())
		}
	}
	s.Contains(names, "run")
	s.Contains(names, "inspect")
	s.NotContains(names, "worker")
}

func TestCmdTestSuite(t *testing.T) {
	suite.Run(t, new(CmdTestSuite))
}
