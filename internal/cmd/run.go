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

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/srediag/shm-mailbox/pkg/producer"
)

func (a *app) newRunCmd() *cobra.Command {
	var (
		batch       bool
		uniqueName  bool
		healthAddr  string
		metricsFile string
		workerPath  string
	)
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Read numbers from stdin, sum them in a worker and write the result to FILE",
		Long: `Run creates the mailbox, starts a worker that writes to FILE, sends it the
first line of standard input and prints the worker's answer: the sum on stdout,
an error message on stderr. With --batch every input line is sent to the same
worker until the first error.

The exit code is 0 only when the worker answered successfully and exited cleanly.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				// usage mistakes are not failures
				fmt.Fprintf(cmd.ErrOrStderr(), "usage: %s\n", cmd.UseLine())
				return nil
			}
			cfg := a.cfg
			flags := cmd.Flags()
			if flags.Changed("batch") {
				cfg.Batch = batch
			}
			if flags.Changed("unique-name") {
				cfg.UniqueName = uniqueName
			}
			if flags.Changed("health-addr") {
				cfg.HealthAddr = healthAddr
			}
			if flags.Changed("metrics-file") {
				cfg.MetricsFile = metricsFile
			}
			if flags.Changed("worker-path") {
				cfg.WorkerPath = workerPath
			}

			// the worker's stderr copier and the producer write to the same stream
			stderr := zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr()))
			var launcher *producer.ExecLauncher
			if cfg.WorkerPath != "" {
				launcher = &producer.ExecLauncher{Path: cfg.WorkerPath, Args: []string{"worker"}, Stderr: stderr}
			} else {
				l, err := producer.SelfLauncher(stderr)
				if err != nil {
					return err
				}
				launcher = l
			}
			launcher.Env = append(launcher.Env,
				fmt.Sprintf("SHMSUM_CAPACITY=%d", cfg.Capacity),
				"SHMSUM_LOG_LEVEL="+cfg.LogLevel,
			)

			p, err := producer.New(producer.Options{
				MailboxName:    cfg.ResolveName(),
				MailboxDir:     cfg.MailboxDir,
				Capacity:       cfg.Capacity,
				Target:         args[0],
				Batch:          cfg.Batch,
				HealthAddr:     cfg.HealthAddr,
				MetricsFile:    cfg.MetricsFile,
				MailboxOptions: cfg.MailboxOptions(),
			}, launcher)
			if err != nil {
				return err
			}
			defer p.Close()
			return p.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), stderr)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&batch, "batch", false, "send every input line, not just the first (env SHMSUM_BATCH)")
	f.BoolVar(&uniqueName, "unique-name", false, "append a random suffix to the mailbox name (env SHMSUM_UNIQUE_NAME)")
	f.StringVar(&healthAddr, "health-addr", "", "serve /live and /ready on this address during the run (env SHMSUM_HEALTH_ADDR)")
	f.StringVar(&metricsFile, "metrics-file", "", "write mailbox metrics in Prometheus text format to this file (env SHMSUM_METRICS_FILE)")
	f.StringVar(&workerPath, "worker-path", "", "worker executable, run as \"PATH worker FILE\" (env SHMSUM_WORKER_PATH, default: this binary)")
	return cmd
}
