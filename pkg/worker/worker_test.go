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

package worker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/shm-mailbox/internal/errs"
	"github.com/srediag/shm-mailbox/pkg/mailbox"
)

type fakeChannel struct {
	in  chan mailbox.Frame
	out chan mailbox.Frame
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{in: make(chan mailbox.Frame, 8), out: make(chan mailbox.Frame, 8)}
}

func (c *fakeChannel) Receive(ctx context.Context) (mailbox.Frame, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-ctx.Done():
		return mailbox.Frame{}, ctx.Err()
	}
}

func (c *fakeChannel) SendFrame(ctx context.Context, f mailbox.Frame) error {
	c.out <- f
	return nil
}

type memSink struct {
	bytes.Buffer
	closed bool
	err    error
}

func (s *memSink) Write(p []byte) error {
	if s.err != nil {
		return s.err
	}
	_, _ = s.Buffer.Write(p)
	return nil
}

func (s *memSink) Close() error {
	s.closed = true
	return nil
}

type WorkerTestSuite struct {
	suite.Suite
	ch   *fakeChannel
	sink *memSink
	w    *Worker
}

func (s *WorkerTestSuite) SetupTest() {
	s.ch = newFakeChannel()
	s.sink = &memSink{}
	s.w = New(s.ch, s.sink)
}

func (s *WorkerTestSuite) TestHandle() {
	cases := []struct {
		in   string
		kind mailbox.Kind
		code errs.Kind
		text string
	}{
		{"1.5 2.5 3", mailbox.ResponseOk, errs.Unknown, "7.00\n"},
		{"", mailbox.ResponseError, errs.EmptyInput, MsgNoNumbers},
		{"  \t", mailbox.ResponseError, errs.EmptyInput, MsgNoNumbers},
		{"3 foo 2", mailbox.ResponseError, errs.InvalidToken, MsgInvalid},
		{"1 1e39", mailbox.ResponseError, errs.NumberOutOfRange, MsgOutOfRange},
		{"3e38 3e38", mailbox.ResponseError, errs.SumOverflow, MsgSumOverflow},
	}
	for _, c := range cases {
		f, err := s.w.Handle([]byte(c.in))
		s.Equal(c.kind, f.Kind, c.in)
		s.Equal(uint32(c.code), f.Code, c.in)
		s.Equal(c.text, string(f.Payload), c.in)
		if c.kind == mailbox.ResponseOk {
			s.NoError(err)
		} else {
			s.Equal(c.code, errs.KindOf(err), c.in)
		}
	}
	s.Equal("7.00\n", s.sink.String())
}

func (s *WorkerTestSuite) TestHandleSinkFailure() {
	s.sink.err = errs.New(errs.FileWriteFailed, "test", "disk full")
	f, err := s.w.Handle([]byte("1 2"))
	s.Equal(mailbox.ResponseError, f.Kind)
	s.Equal(MsgWriteFailed, string(f.Payload))
	s.Equal(uint32(errs.FileWriteFailed), f.Code)
	s.True(errors.Is(err, errs.FileWriteFailed))

	sink := NewFileSink(filepath.Join(s.T().TempDir(), "missing", "out.txt"))
	f, err = New(s.ch, sink).Handle([]byte("1 2"))
	s.Equal(MsgWriteFailed, string(f.Payload))
	s.Equal(errs.FileOpenFailed, errs.KindOf(err))
}

func (s *WorkerTestSuite) TestRunUntilTerminate() {
	s.ch.in <- mailbox.Frame{Kind: mailbox.Request, Payload: []byte("1 2")}
	s.ch.in <- mailbox.Frame{Kind: mailbox.Request, Payload: []byte("3")}
	s.ch.in <- mailbox.Frame{Kind: mailbox.Terminate}

	s.Require().NoError(s.w.Run(context.Background()))
	s.Equal(Terminated, s.w.State())
	s.Equal(2, s.w.Served())
	s.True(s.sink.closed)
	s.Equal("3.00\n3.00\n", s.sink.String())

	first := <-s.ch.out
	second := <-s.ch.out
	s.Equal("3.00\n", string(first.Payload))
	s.Equal("3.00\n", string(second.Payload))
}

func (s *WorkerTestSuite) TestRunStopsAfterErrorResponse() {
	s.ch.in <- mailbox.Frame{Kind: mailbox.Request, Payload: []byte("3 foo 2")}
	s.ch.in <- mailbox.Frame{Kind: mailbox.Request, Payload: []byte("1")}

	err := s.w.Run(context.Background())
	s.Require().Error(err)
	s.Equal(errs.InvalidToken, errs.KindOf(err))

	resp := <-s.ch.out
	s.Equal(mailbox.ResponseError, resp.Kind)
	s.Equal(MsgInvalid, string(resp.Payload))
	// the second request was never taken
	s.Len(s.ch.in, 1)
	s.Empty(s.ch.out)
	s.Empty(s.sink.String())
}

func (s *WorkerTestSuite) TestRunIgnoresUnexpectedFrames() {
	s.ch.in <- mailbox.Frame{Kind: mailbox.ResponseOk}
	s.ch.in <- mailbox.Frame{Kind: mailbox.Terminate}
	s.NoError(s.w.Run(context.Background()))
	s.Equal(0, s.w.Served())
}

func (s *WorkerTestSuite) TestRunReceiveFailure() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.w.Run(ctx)
	s.Equal(errs.ReadFailed, errs.KindOf(err))
	s.ErrorIs(err, context.Canceled)
}

func TestWorkerTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("old content\n"), 0644))

	sink := NewFileSink(path)
	require.NoError(t, sink.Write([]byte("1.00\n")))
	require.NoError(t, sink.Write([]byte("2.00\n")))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1.00\n2.00\n", string(data))

	path = filepath.Join(t.TempDir(), "fresh.txt")
	sink = NewFileSink(path)
	require.NoError(t, sink.Write([]byte("x")))
	require.NoError(t, sink.Close())
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), st.Mode().Perm())
}

func TestWorkerOverMailbox(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("shared futexes need linux")
	}
	ctx := context.Background()
	dir := t.TempDir()
	name := "worker-" + uuid.NewString()

	owner, err := mailbox.Create(ctx, name, mailbox.WithDir(dir))
	require.NoError(t, err)
	defer func() { assert.NoError(t, owner.Destroy()) }()
	peer, err := mailbox.Attach(ctx, name, mailbox.WithDir(dir))
	require.NoError(t, err)
	defer func() { assert.NoError(t, peer.Close()) }()

	out := filepath.Join(dir, "result.txt")
	done := make(chan error, 1)
	go func() { done <- New(peer, NewFileSink(out)).Run(ctx) }()

	exchange := func(line string) mailbox.Frame {
		require.NoError(t, owner.Send(ctx, mailbox.Request, []byte(line)))
		f, err := owner.Receive(ctx)
		require.NoError(t, err)
		return f
	}
	f := exchange("1.5 2.5 3")
	assert.Equal(t, mailbox.ResponseOk, f.Kind)
	assert.Equal(t, "7.00\n", string(f.Payload))
	f = exchange("10")
	assert.Equal(t, "10.00\n", string(f.Payload))

	require.NoError(t, owner.Send(ctx, mailbox.Terminate, nil))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after Terminate")
	}
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "7.00\n10.00\n", string(data))
}
