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

package mailbox

import (
	"context"
	"sync/atomic"

	"github.com/srediag/shm-mailbox/internal/shm"
)

// Each gate word keeps its count or lock state in the low 16 bits. The high 16 bits are
// a wake generation: cancellation bumps it so that a waiter about to sleep on the old
// value gets EAGAIN from the futex instead of missing the wakeup.
const (
	stateMask = 1<<16 - 1
	genUnit   = 1 << 16
)

func stateOf(v uint32) uint32 { return v & stateMask }

var futexWait = shm.FutexWait

// wakeOnCancel bumps the generation of every word and wakes all of its waiters once
// ctx is done. A nil Done channel registers nothing.
func wakeOnCancel(ctx context.Context, words ...*uint32) (stop func() bool) {
	if ctx.Done() == nil {
		return func() bool { return false }
	}
	return context.AfterFunc(ctx, func() {
		for _, w := range words {
			atomic.AddUint32(w, genUnit)
			_, _ = shm.FutexWake(w, 1<<30)
		}
	})
}

// semaphore is a counting semaphore living in the shared region. It starts at zero:
// a wait blocks until the other side posts.
type semaphore struct {
	word *uint32
}

func (s semaphore) post() error {
	atomic.AddUint32(s.word, 1)
	_, err := shm.FutexWake(s.word, 1)
	return err
}

// tryWait takes one post if any is available and otherwise returns the word it saw.
func (s semaphore) tryWait() (uint32, bool) {
	for {
		v := atomic.LoadUint32(s.word)
		if stateOf(v) == 0 {
			return v, false
		}
		if atomic.CompareAndSwapUint32(s.word, v, v-1) {
			return v, true
		}
	}
}

// wait suspends the caller until a post is available or ctx is done. A post that
// happened before ctx was cancelled is always consumed first. The sleep itself has
// no timeout; cancellation reaches it through wakeOnCancel.
func (s semaphore) wait(ctx context.Context) error {
	stop := wakeOnCancel(ctx, s.word)
	defer stop()
	for {
		v, ok := s.tryWait()
		if ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := futexWait(s.word, v, 0); err != nil {
			return err
		}
	}
}

// slotLock guards the frame slot. State 0 = free, 1 = held, 2 = held with waiters.
type slotLock struct {
	word *uint32
}

func (l slotLock) acquire(ctx context.Context) error {
	if v := atomic.LoadUint32(l.word); stateOf(v) == 0 && atomic.CompareAndSwapUint32(l.word, v, v|1) {
		return nil
	}
	stop := wakeOnCancel(ctx, l.word)
	defer stop()
	for {
		v := atomic.LoadUint32(l.word)
		switch stateOf(v) {
		case 0:
			// other waiters may still be parked, so keep the contended mark
			if atomic.CompareAndSwapUint32(l.word, v, v|2) {
				return nil
			}
			continue
		case 1:
			if !atomic.CompareAndSwapUint32(l.word, v, v&^stateMask|2) {
				continue
			}
			v = v&^stateMask | 2
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := futexWait(l.word, v, 0); err != nil {
			return err
		}
	}
}

func (l slotLock) release() error {
	for {
		v := atomic.LoadUint32(l.word)
		if !atomic.CompareAndSwapUint32(l.word, v, v&^stateMask) {
			continue
		}
		if stateOf(v) == 2 {
			_, err := shm.FutexWake(l.word, 1)
			return err
		}
		return nil
	}
}
