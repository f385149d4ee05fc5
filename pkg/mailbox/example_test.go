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

package mailbox_test

import (
	"context"
	"fmt"
	"os"

	"github.com/srediag/shm-mailbox/pkg/mailbox"
)

func Example() {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "mailbox")
	if err != nil {
		return
	}
	defer os.RemoveAll(dir)

	owner, err := mailbox.Create(ctx, "example", mailbox.WithDir(dir))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer owner.Destroy()
	peer, err := mailbox.Attach(ctx, "example", mailbox.WithDir(dir))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer peer.Close()

	_ = owner.Send(ctx, mailbox.Request, []byte("ping"))
	req, _ := peer.Receive(ctx)
	_ = peer.Send(ctx, mailbox.ResponseOk, append(req.Payload, " pong"...))
	resp, _ := owner.Receive(ctx)
	fmt.Println(resp.Kind, string(resp.Payload))
}
