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

package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// Environment variables through which a spawned worker learns its mailbox.
const (
	EnvMailboxName = "SHMSUM_MAILBOX_NAME"
	EnvMailboxDir  = "SHMSUM_MAILBOX_DIR"
)

// LaunchSpec describes the worker to start.
type LaunchSpec struct {
	// Target is the file the worker writes results to.
	Target      string
	MailboxName string
	MailboxDir  string
}

// Launcher starts workers.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// Process is a started worker.
type Process interface {
	Pid() int
	// Wait blocks until the worker exits. It is called exactly once.
	Wait() (ExitStatus, error)
	Kill() error
}

// ExitStatus is how a worker ended.
type ExitStatus struct {
	Code     int
	Signaled bool
	Signal   syscall.Signal
}

// Success reports a normal exit with code 0.
func (s ExitStatus) Success() bool { return !s.Signaled && s.Code == 0 }

func (s ExitStatus) String() string {
	if s.Signaled {
		return fmt.Sprintf("killed by signal %s", s.Signal)
	}
	return fmt.Sprintf("exit code %d", s.Code)
}

// ExecLauncher runs Path with Args followed by the target file. The mailbox is passed
// in the environment.
type ExecLauncher struct {
	Path string
	Args []string
	// Env is appended to the current environment.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// SelfLauncher returns a launcher that re-executes the running binary as
// "<exe> worker <target>".
func SelfLauncher(stderr io.Writer) (*ExecLauncher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &ExecLauncher{Path: exe, Args: []string{"worker"}, Stderr: stderr}, nil
}

func (l *ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	args := append(append([]string(nil), l.Args...), spec.Target)
	cmd := exec.Command(l.Path, args...)
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Env = append(cmd.Env,
		EnvMailboxName+"="+spec.MailboxName,
		EnvMailboxDir+"="+spec.MailboxDir,
	)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	logger.Debugf("worker started pid:%d path:%s", cmd.Process.Pid, l.Path)
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

func (p *execProcess) Wait() (ExitStatus, error) {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return ExitStatus{}, err
	}
	return statusOf(p.cmd.ProcessState), nil
}

func statusOf(ps *os.ProcessState) ExitStatus {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signaled: true, Signal: ws.Signal()}
	}
	return ExitStatus{Code: ps.ExitCode()}
}
