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
	"errors"
	"fmt"

	"github.com/heptiolabs/healthcheck"
	"github.com/spf13/cobra"

	"github.com/srediag/shm-mailbox/pkg/health"
	"github.com/srediag/shm-mailbox/pkg/mailbox"
)

func (a *app) newInspectCmd() *cobra.Command {
	var pid int
	cmd := &cobra.Command{
		Use:   "inspect [NAME]",
		Short: "Print the header of a mailbox region and check its health",
		Long: `Inspect prints the header words of an existing region (magic, lock,
semaphores, frame kind, length, sequence) without taking the slot lock, then runs
the health checks. NAME defaults to the configured mailbox name.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := a.cfg.MailboxName
			if len(args) == 1 {
				name = args[0]
			}
			checks := map[string]healthcheck.Check{
				"region": health.RegionCheck(a.cfg.MailboxDir, name),
			}
			if pid > 0 {
				checks["worker"] = health.ProcessCheck(pid)
			}
			var headerErr error
			st, err := mailbox.Inspect(cmd.Context(), a.cfg.MailboxDir, name)
			switch {
			case err != nil:
				headerErr = fmt.Errorf("inspect %s: %w", name, err)
			case !st.Valid():
				headerErr = fmt.Errorf("%s: %w", name, mailbox.ErrCorrupt)
				fallthrough
			default:
				fmt.Fprintln(cmd.OutOrStdout(), st)
			}
			return errors.Join(headerErr, health.Write(cmd.OutOrStdout(), health.Evaluate(checks)))
		},
	}
	cmd.Flags().IntVar(&pid, "pid", 0, "also check that the worker with this pid is alive")
	return cmd
}
