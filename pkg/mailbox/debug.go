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

package mailbox

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/srediag/shm-mailbox/internal/shm"
)

// State is a snapshot of the region header.
type State struct {
	Path          string
	Capacity      int
	Magic         uint32
	Lock          uint32
	RequestReady  uint32
	ResponseReady uint32
	Kind          Kind
	Length        uint32
	Code          uint32
	Seq           uint64
}

// Valid reports whether the header carries the mailbox magic.
func (s State) Valid() bool { return s.Magic == regionMagic }

func (s State) String() string {
	return fmt.Sprintf("path:%s capacity:%d magic:%#x lock:%d request:%d response:%d kind:%s length:%d code:%d seq:%d",
		s.Path, s.Capacity, s.Magic, s.Lock, s.RequestReady, s.ResponseReady, s.Kind, s.Length, s.Code, s.Seq)
}

func readState(path string, mem []byte) State {
	h := mapHeader(mem)
	return State{
		Path:          path,
		Capacity:      len(mem),
		Magic:         atomic.LoadUint32(h.magic),
		Lock:          stateOf(atomic.LoadUint32(h.lock)),
		RequestReady:  stateOf(atomic.LoadUint32(h.requestSem)),
		ResponseReady: stateOf(atomic.LoadUint32(h.responseSem)),
		Kind:          Kind(atomic.LoadUint32(h.kind)),
		Length:        atomic.LoadUint32(h.length),
		Code:          atomic.LoadUint32(h.code),
		Seq:           atomic.LoadUint64(h.seq),
	}
}

// State returns a snapshot of m's header.
func (m *Mailbox) State() (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return State{}, ErrClosed
	}
	return readState(m.region.Path, m.region.Addr), nil
}

// Inspect maps the named region just long enough to snapshot its header.
func Inspect(ctx context.Context, dir, name string) (State, error) {
	r, err := shm.MapRegion(ctx, shm.MapOptions{Name: name, Dir: dir, Size: HeaderSize})
	if err != nil {
		return State{}, err
	}
	defer func() {
		if err := shm.UnmapRegion(ctx, r); err != nil {
			logger.Warnf("inspect unmap %s: %v", r.Path, err)
		}
	}()
	return readState(r.Path, r.Addr), nil
}
