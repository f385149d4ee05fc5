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

// Package cmd is the shmsum command tree.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srediag/shm-mailbox/internal/config"
	"github.com/srediag/shm-mailbox/internal/errs"
	"github.com/srediag/shm-mailbox/internal/logging"
	"github.com/srediag/shm-mailbox/pkg/mailbox"
)

var logger = logging.Named("cmd")

// app carries the configuration resolved for the running command.
type app struct {
	cfg *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{cfg: config.DefaultConfig()}
	root := &cobra.Command{
		Use:   "shmsum",
		Short: "Sum numbers in a worker process over a shared memory mailbox",
		Long: `shmsum reads a line of numbers, hands it to a worker process through a
single-slot mailbox in shared memory and prints the sum the worker computed.

The worker also writes the sum to the file named on the command line.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	pf := root.PersistentFlags()
	pf.String("mailbox-name", "", "shared region name (env SHMSUM_MAILBOX_NAME, default \"shmsum\")")
	pf.String("mailbox-dir", "", "directory holding shared regions (env SHMSUM_MAILBOX_DIR, default /dev/shm)")
	pf.Int("capacity", 0, "region size in bytes, header included (env SHMSUM_CAPACITY, default 4096)")
	pf.String("log-level", "", "trace, debug, info, warn, error or noprint (env SHMSUM_LOG_LEVEL)")

	root.AddCommand(a.newRunCmd(), a.newWorkerCmd(), a.newInspectCmd())
	return root
}

// load resolves the configuration: defaults, then environment, then flags.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("mailbox-name") {
		cfg.MailboxName, _ = flags.GetString("mailbox-name")
	}
	if flags.Changed("mailbox-dir") {
		cfg.MailboxDir, _ = flags.GetString("mailbox-dir")
	}
	if flags.Changed("capacity") {
		cfg.Capacity, _ = flags.GetInt("capacity")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if err := config.VerifyConfig(cfg); err != nil {
		return err
	}
	cfg.ApplyLogLevel()
	a.cfg = cfg
	return nil
}

// Execute runs the command line and returns the process exit code. SIGINT and
// SIGTERM cancel the running command; regions this process still owns are
// destroyed before returning.
func Execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.Sync()
	defer func() {
		if err := mailbox.DestroyAll(); err != nil {
			logger.Errorf("destroy mailboxes: %v", err)
		}
	}()

	root := NewRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if workerReported(err) {
		// the worker's text is already on stderr
		logger.Debugf("run failed: %v", err)
	} else {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
	}
	return 1
}

// workerReported tells whether err came back from the worker as an error response.
func workerReported(err error) bool {
	switch errs.KindOf(err) {
	case errs.InvalidToken, errs.NumberOutOfRange, errs.SumOverflow, errs.EmptyInput,
		errs.FileOpenFailed, errs.FileWriteFailed:
		return true
	}
	return false
}
