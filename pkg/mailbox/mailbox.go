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
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/codes"

	"github.com/srediag/shm-mailbox/internal/errs"
	"github.com/srediag/shm-mailbox/internal/logging"
	"github.com/srediag/shm-mailbox/internal/shm"
)

var logger = logging.Named("mailbox")

var (
	// ErrClosed is returned by operations on a closed mailbox.
	ErrClosed = errors.New("mailbox: closed")
	// ErrNotOwner is returned when a peer tries to destroy the region.
	ErrNotOwner = errors.New("mailbox: only the owner may destroy the region")
	// ErrBadKind is returned when a side sends a kind that does not travel in its direction.
	ErrBadKind = errors.New("mailbox: kind not allowed for this role")
	// ErrNotYourTurn is returned by Send while the slot still holds an unread frame.
	ErrNotYourTurn = errors.New("mailbox: slot holds an unread frame")
	// ErrCorrupt is returned when the region header is not a mailbox header.
	ErrCorrupt = errors.New("mailbox: corrupt region header")
)

// Role says which end of the mailbox a handle is.
type Role int

const (
	// Owner creates and destroys the region, sends requests and receives responses.
	Owner Role = iota
	// Peer attaches to an existing region, receives requests and sends responses.
	Peer
)

func (r Role) String() string {
	if r == Owner {
		return "owner"
	}
	return "peer"
}

func (r Role) canSend(k Kind) bool {
	if r == Owner {
		return k == Request || k == Terminate
	}
	return k.IsResponse()
}

// Mailbox is one end of a single-slot request/response channel in shared memory.
//
// Send and Receive may be called from several goroutines; the slot lock serializes
// them. Close must not race with a caller that still expects results.
type Mailbox struct {
	name   string
	dir    string
	role   Role
	region *shm.MappedRegion
	hdr    header
	data   []byte

	// inbox is the semaphore this side waits on, outbox the one it posts.
	inbox  semaphore
	outbox semaphore
	slot   slotLock

	// mu is held shared by operations and exclusively by Close.
	mu       sync.RWMutex
	closed   bool
	life     context.Context
	shutdown context.CancelFunc
	unlinked atomic.Bool

	metrics *metrics
}

// Create allocates the named region and initializes the gate. A stale region of the
// same name is replaced. The caller owns the result and must Destroy it.
func Create(ctx context.Context, name string, opts ...Option) (*Mailbox, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity <= HeaderSize || o.capacity > MaxCapacity {
		return nil, errs.New(errs.ChannelCreateFailed, "mailbox.create",
			fmt.Sprintf("capacity %d out of range (%d, %d]", o.capacity, HeaderSize, MaxCapacity))
	}
	region, err := shm.MapRegion(ctx, shm.MapOptions{
		Name:   name,
		Dir:    o.dir,
		Size:   o.capacity,
		Create: true,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ChannelCreateFailed, "mailbox.create", err)
	}
	m := newMailbox(name, o, Owner, region)
	// the magic goes last: a peer treats a zero magic as "not ready yet"
	atomic.StoreUint32(m.hdr.magic, regionMagic)
	owned.Set(region.Path, m)
	logger.Infof("mailbox created path:%s capacity:%d", region.Path, region.Size)
	return m, nil
}

// Attach maps a region created by Create. While the region does not exist yet, it is
// retried according to WithAttachRetry.
func Attach(ctx context.Context, name string, opts ...Option) (*Mailbox, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	var region *shm.MappedRegion
	op := func() error {
		r, err := shm.MapRegion(ctx, shm.MapOptions{Name: name, Dir: o.dir, Size: HeaderSize + 1})
		if err != nil {
			// not created yet, or created but not sized yet
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, shm.ErrTooSmall) {
				return err
			}
			return backoff.Permanent(err)
		}
		if atomic.LoadUint32(shm.Uint32At(r.Addr, magicOffset)) != regionMagic {
			_ = shm.UnmapRegion(ctx, r)
			return ErrCorrupt
		}
		region = r
		return nil
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.attachInterval), o.attachRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, errs.Wrap(errs.ChannelAttachFailed, "mailbox.attach", err)
	}
	m := newMailbox(name, o, Peer, region)
	logger.Infof("mailbox attached path:%s capacity:%d", region.Path, region.Size)
	return m, nil
}

func newMailbox(name string, o options, role Role, region *shm.MappedRegion) *Mailbox {
	hdr := mapHeader(region.Addr)
	life, shutdown := context.WithCancel(context.Background())
	m := &Mailbox{
		name:     name,
		dir:      o.dir,
		role:     role,
		region:   region,
		hdr:      hdr,
		data:     region.Addr[HeaderSize:],
		slot:     slotLock{word: hdr.lock},
		life:     life,
		shutdown: shutdown,
		metrics:  newMetrics(role, o),
	}
	request := semaphore{word: hdr.requestSem}
	response := semaphore{word: hdr.responseSem}
	if role == Owner {
		m.inbox, m.outbox = response, request
	} else {
		m.inbox, m.outbox = request, response
	}
	return m
}

// Name returns the region name.
func (m *Mailbox) Name() string { return m.name }

// Dir returns the directory that holds the region name.
func (m *Mailbox) Dir() string { return m.dir }

// Path returns the file backing the region.
func (m *Mailbox) Path() string { return m.region.Path }

// Role returns which end m is.
func (m *Mailbox) Role() Role { return m.role }

// Capacity returns the region size, header included.
func (m *Mailbox) Capacity() int { return m.region.Size }

// MaxPayload is the largest payload Send accepts.
func (m *Mailbox) MaxPayload() int { return m.region.Size - HeaderSize }

// enter guards an operation against a concurrent Close. The returned context is
// cancelled when either ctx is done or the mailbox is closing.
func (m *Mailbox) enter(ctx context.Context) (context.Context, func(), error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, nil, ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.life, cancel)
	return ctx, func() {
		stop()
		cancel()
		m.mu.RUnlock()
	}, nil
}

// Send places a frame without a status code in the slot and signals the other side.
func (m *Mailbox) Send(ctx context.Context, kind Kind, payload []byte) error {
	return m.SendFrame(ctx, Frame{Kind: kind, Payload: payload})
}

// SendFrame places f in the slot and signals the other side. f.Seq is ignored.
//
// A payload larger than MaxPayload fails with errs.PayloadTooLarge before the slot
// is touched. Send never waits for the other side to read the frame.
func (m *Mailbox) SendFrame(ctx context.Context, f Frame) (err error) {
	if !f.Kind.valid() || !m.role.canSend(f.Kind) {
		return fmt.Errorf("%w: %s sending %s", ErrBadKind, m.role, f.Kind)
	}
	ctx, leave, err := m.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()
	if len(f.Payload) > m.MaxPayload() {
		return errs.New(errs.PayloadTooLarge, "mailbox.send",
			fmt.Sprintf("payload of %d bytes exceeds %d", len(f.Payload), m.MaxPayload()))
	}

	ctx, span := m.metrics.startSpan(ctx, "mailbox.Send", f.Kind)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := m.slot.acquire(ctx); err != nil {
		return err
	}
	if cur := Kind(atomic.LoadUint32(m.hdr.kind)); cur != Empty {
		if rerr := m.slot.release(); rerr != nil {
			logger.Warnf("mailbox slot release: %v", rerr)
		}
		return fmt.Errorf("%w: %s pending", ErrNotYourTurn, cur)
	}
	n := copy(m.data, f.Payload)
	atomic.StoreUint32(m.hdr.length, uint32(n))
	atomic.StoreUint32(m.hdr.code, f.Code)
	seq := atomic.AddUint64(m.hdr.seq, 1)
	atomic.StoreUint32(m.hdr.kind, uint32(f.Kind))
	if err := m.slot.release(); err != nil {
		return err
	}
	if err := m.outbox.post(); err != nil {
		return err
	}
	f.Seq = seq
	m.metrics.frame(ctx, "send", f)
	logger.Tracef("%s sent %s", m.role, f)
	return nil
}

// Receive blocks until the other side has sent a frame, then takes it out of the
// slot and resets the slot to Empty. The returned payload is a copy.
//
// Without cancellation on ctx the wait is unbounded: a peer that dies before sending
// leaves the caller blocked.
func (m *Mailbox) Receive(ctx context.Context) (f Frame, err error) {
	ctx, leave, err := m.enter(ctx)
	if err != nil {
		return Frame{}, err
	}
	defer leave()

	start := time.Now()
	if err := m.inbox.wait(ctx); err != nil {
		if m.life.Err() != nil {
			return Frame{}, ErrClosed
		}
		return Frame{}, err
	}
	m.metrics.waited(time.Since(start))

	ctx, span := m.metrics.startSpan(ctx, "mailbox.Receive", Empty)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := m.slot.acquire(ctx); err != nil {
		// hand the signal back so a later Receive still sees the frame
		_ = m.inbox.post()
		return Frame{}, err
	}
	f, err = m.take()
	if rerr := m.slot.release(); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return Frame{}, err
	}
	span.SetAttributes(kindAttr(f.Kind))
	m.metrics.frame(ctx, "receive", f)
	logger.Tracef("%s received %s", m.role, f)
	return f, nil
}

// take copies the frame out and resets the slot. The slot lock must be held.
func (m *Mailbox) take() (Frame, error) {
	kind := Kind(atomic.LoadUint32(m.hdr.kind))
	length := atomic.LoadUint32(m.hdr.length)
	if !kind.valid() || m.role.canSend(kind) {
		return Frame{}, fmt.Errorf("%w: %s found %s in slot", ErrCorrupt, m.role, kind)
	}
	if int(length) > m.MaxPayload() {
		return Frame{}, fmt.Errorf("%w: length %d", ErrCorrupt, length)
	}
	f := Frame{
		Kind:    kind,
		Code:    atomic.LoadUint32(m.hdr.code),
		Seq:     atomic.LoadUint64(m.hdr.seq),
		Payload: make([]byte, length),
	}
	copy(f.Payload, m.data[:length])
	clear(m.data[:length])
	atomic.StoreUint32(m.hdr.code, 0)
	atomic.StoreUint32(m.hdr.length, 0)
	atomic.StoreUint32(m.hdr.kind, uint32(Empty))
	return f, nil
}

// Check reports whether the mapping is usable and, for the owner, whether the name
// is still present.
func (m *Mailbox) Check() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	if atomic.LoadUint32(m.hdr.magic) != regionMagic {
		return ErrCorrupt
	}
	if !shm.RegionExists(m.dir, m.name) {
		return fmt.Errorf("mailbox: region %s is no longer linked", m.region.Path)
	}
	return nil
}

// Close releases this process's mapping. It does not remove the name; the owner
// calls Destroy for that. Pending operations return ErrClosed.
func (m *Mailbox) Close() error {
	m.shutdown()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return shm.UnmapRegion(context.Background(), m.region)
}

// Destroy closes the mailbox and unlinks the region name. Only the owner may call it.
func (m *Mailbox) Destroy() error {
	if m.role != Owner {
		return ErrNotOwner
	}
	cerr := m.Close()
	var uerr error
	if m.unlinked.CompareAndSwap(false, true) {
		uerr = shm.UnlinkRegion(m.dir, m.name)
		owned.Remove(m.region.Path)
		if uerr == nil {
			logger.Infof("mailbox destroyed path:%s", m.region.Path)
		}
	}
	return errors.Join(cerr, uerr)
}
