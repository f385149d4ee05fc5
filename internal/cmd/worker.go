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

	"github.com/spf13/cobra"

	"github.com/srediag/shm-mailbox/pkg/mailbox"
	"github.com/srediag/shm-mailbox/pkg/worker"
)

func (a *app) newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker FILE",
		Short:  "Serve sum requests from an existing mailbox (started by run)",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			peer, err := mailbox.Attach(ctx, a.cfg.MailboxName, a.cfg.MailboxOptions()...)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := peer.Close(); cerr != nil {
					err = errors.Join(err, cerr)
				}
			}()
			logger.Debugf("worker attached to %s", peer.Path())
			return worker.New(peer, worker.NewFileSink(args[0])).Run(ctx)
		},
	}
}
