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

// Package worker serves sum requests arriving on the peer end of a mailbox.
package worker

import (
	"context"
	"errors"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/shm-mailbox/internal/errs"
	"github.com/srediag/shm-mailbox/internal/logging"
	"github.com/srediag/shm-mailbox/pkg/mailbox"
	"github.com/srediag/shm-mailbox/pkg/sum"
)

var logger = logging.Named("worker")

// Response texts carried by ResponseError frames.
const (
	MsgNoNumbers   = "No numbers provided"
	MsgInvalid     = "Invalid character in input"
	MsgOutOfRange  = "Number out of range"
	MsgSumOverflow = "Sum overflow"
	MsgWriteFailed = "Failed to write to file"
)

// Channel is the peer end of a mailbox.
type Channel interface {
	Receive(ctx context.Context) (mailbox.Frame, error)
	SendFrame(ctx context.Context, f mailbox.Frame) error
}

// State is where the worker is in its loop.
type State int32

const (
	WaitingForRequest State = iota
	Processing
	Terminated
)

func (s State) String() string {
	switch s {
	case WaitingForRequest:
		return "WaitingForRequest"
	case Processing:
		return "Processing"
	case Terminated:
		return "Terminated"
	}
	return "Unknown"
}

// Worker answers requests until it is told to terminate or a request fails.
type Worker struct {
	ch    Channel
	sink  Sink
	state State
	// served counts answered requests.
	served int
}

// New returns a worker reading from ch and writing results to sink.
func New(ch Channel, sink Sink) *Worker {
	return &Worker{ch: ch, sink: sink}
}

// State returns the current loop state.
func (w *Worker) State() State { return w.state }

// Served returns the number of requests answered so far.
func (w *Worker) Served() int { return w.served }

// Handle evaluates one request payload and builds the response frame. The error is
// the classified failure behind a ResponseError frame, nil for ResponseOk.
func (w *Worker) Handle(payload []byte) (mailbox.Frame, error) {
	v, err := sum.Sum(string(payload))
	if err != nil {
		return errorFrame(err), err
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = sum.AppendFormat(buf.B, v)
	if err := w.sink.Write(buf.B); err != nil {
		return errorFrame(err), err
	}
	return mailbox.Frame{
		Kind:    mailbox.ResponseOk,
		Payload: append([]byte(nil), buf.B...),
	}, nil
}

func errorFrame(err error) mailbox.Frame {
	kind := errs.KindOf(err)
	return mailbox.Frame{
		Kind:    mailbox.ResponseError,
		Code:    uint32(kind),
		Payload: []byte(message(kind)),
	}
}

func message(kind errs.Kind) string {
	switch kind {
	case errs.EmptyInput:
		return MsgNoNumbers
	case errs.InvalidToken:
		return MsgInvalid
	case errs.NumberOutOfRange:
		return MsgOutOfRange
	case errs.SumOverflow:
		return MsgSumOverflow
	case errs.FileOpenFailed, errs.FileWriteFailed:
		return MsgWriteFailed
	}
	return kind.String()
}

// Run serves requests. It returns nil after a Terminate frame, and the request's
// failure after answering a request with ResponseError: one failed request ends the
// worker. The sink is closed on return.
func (w *Worker) Run(ctx context.Context) (err error) {
	defer func() {
		w.state = Terminated
		if cerr := w.sink.Close(); cerr != nil {
			logger.Warnf("close sink: %v", cerr)
			err = errors.Join(err, cerr)
		}
	}()
	for {
		w.state = WaitingForRequest
		f, err := w.ch.Receive(ctx)
		if err != nil {
			return errs.Wrap(errs.ReadFailed, "worker.receive", err)
		}
		switch f.Kind {
		case mailbox.Terminate:
			logger.Infof("terminate received after %d requests", w.served)
			return nil
		case mailbox.Request:
			w.state = Processing
			resp, herr := w.Handle(f.Payload)
			if herr != nil {
				logger.Infof("request seq:%d failed: %v", f.Seq, herr)
			}
			if err := w.ch.SendFrame(ctx, resp); err != nil {
				return errors.Join(herr, errs.Wrap(errs.Unknown, "worker.send", err))
			}
			w.served++
			if herr != nil {
				return herr
			}
		default:
			logger.Warnf("ignoring unexpected frame %s", f)
		}
	}
}
