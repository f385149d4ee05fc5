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

// Package producer drives one worker through a mailbox: it creates the mailbox,
// starts the worker, forwards input lines as requests, routes the responses and
// reaps the worker.
package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/shm-mailbox/internal/errs"
	"github.com/srediag/shm-mailbox/internal/logging"
	"github.com/srediag/shm-mailbox/pkg/health"
	"github.com/srediag/shm-mailbox/pkg/mailbox"
)

var logger = logging.Named("producer")

var errWorkerExited = errors.New("producer: worker exited")

// Options configures a Producer.
type Options struct {
	// MailboxName is the region name. Required.
	MailboxName string
	MailboxDir  string
	Capacity    int
	// Target is the file the worker writes results to.
	Target string
	// Batch exchanges every input line instead of only the first one.
	Batch bool
	// HealthAddr serves health checks during the run when set.
	HealthAddr string
	// MetricsFile receives the mailbox metrics in text format after the run when set.
	MetricsFile string
	// Registry collects mailbox metrics. A private registry is used when nil.
	Registry *prometheus.Registry
	// MailboxOptions are passed to mailbox.Create after the options above.
	MailboxOptions []mailbox.Option
}

// Producer runs the producer side of the protocol.
type Producer struct {
	opts     Options
	launcher Launcher
	pool     *ants.Pool
}

// New returns a producer that starts its worker with launcher.
func New(opts Options, launcher Launcher) (*Producer, error) {
	if opts.MailboxName == "" {
		return nil, errors.New("producer: mailbox name is required")
	}
	if opts.Capacity == 0 {
		opts.Capacity = mailbox.DefaultCapacity
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	pool, err := ants.NewPool(8, ants.WithPanicHandler(func(p any) {
		logger.Errorf("producer task panic: %v", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("producer: pool: %w", err)
	}
	return &Producer{opts: opts, launcher: launcher, pool: pool}, nil
}

// Close releases the producer's goroutine pool.
func (p *Producer) Close() {
	p.pool.Release()
}

type exitResult struct {
	status ExitStatus
	err    error
}

// Run performs one session: create the mailbox, start the worker, exchange the input,
// send Terminate, reap the worker and destroy the mailbox. Ok responses go to stdout,
// error responses to stderr.
//
// The returned error is nil only when every exchange succeeded and the worker exited
// with code 0. The mailbox is destroyed on every path.
func (p *Producer) Run(ctx context.Context, in io.Reader, stdout, stderr io.Writer) (err error) {
	mbOpts := append([]mailbox.Option{
		mailbox.WithDir(p.opts.MailboxDir),
		mailbox.WithCapacity(p.opts.Capacity),
		mailbox.WithRegisterer(p.opts.Registry),
	}, p.opts.MailboxOptions...)
	mb, err := mailbox.Create(ctx, p.opts.MailboxName, mbOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if derr := mb.Destroy(); derr != nil {
			logger.Errorf("destroy mailbox %s: %v", mb.Path(), derr)
			err = errors.Join(err, derr)
		}
		p.writeMetrics()
	}()

	proc, err := p.launcher.Launch(ctx, LaunchSpec{
		Target:      p.opts.Target,
		MailboxName: mb.Name(),
		MailboxDir:  mb.Dir(),
	})
	if err != nil {
		return errs.Wrap(errs.SpawnFailed, "producer.spawn", err)
	}

	// receives are abandoned once the worker is gone
	recvCtx, workerGone := context.WithCancelCause(ctx)
	defer workerGone(nil)
	reaped := make(chan exitResult, 1)
	if err := p.pool.Submit(func() {
		st, werr := proc.Wait()
		reaped <- exitResult{status: st, err: werr}
		workerGone(errWorkerExited)
	}); err != nil {
		_ = proc.Kill()
		st, werr := proc.Wait()
		logger.Errorf("reaper not started: %v, worker %s", err, st)
		return errors.Join(errs.Wrap(errs.WaitFailed, "producer.reap", err), werr)
	}

	if p.opts.HealthAddr != "" {
		stop := p.serveHealth(mb, proc.Pid())
		defer stop()
	}

	var xerr error
	if p.opts.Batch {
		xerr = p.batch(ctx, recvCtx, mb, in, stdout, stderr)
	} else {
		xerr = p.single(recvCtx, mb, in, stdout, stderr)
	}

	if serr := mb.Send(ctx, mailbox.Terminate, nil); serr != nil {
		// the slot still holds a request the worker never took
		logger.Warnf("send terminate: %v", serr)
	}

	var res exitResult
	select {
	case res = <-reaped:
	case <-ctx.Done():
		logger.Warnf("interrupted, killing worker pid:%d", proc.Pid())
		_ = proc.Kill()
		res = <-reaped
	}
	return errors.Join(xerr, exitError(res))
}

func (p *Producer) single(ctx context.Context, mb *mailbox.Mailbox, in io.Reader, stdout, stderr io.Writer) error {
	line, err := newLineReader(in, mb.MaxPayload()).next()
	if errors.Is(err, io.EOF) {
		logger.Debugf("empty input, nothing to send")
		return nil
	}
	if err != nil {
		return err
	}
	return p.exchange(ctx, mb, line, stdout, stderr)
}

func (p *Producer) batch(ctx, recvCtx context.Context, mb *mailbox.Mailbox, in io.Reader, stdout, stderr io.Writer) error {
	lq := newLineQueue(16)
	defer lq.dispose()
	reader := newLineReader(in, mb.MaxPayload())
	if err := p.pool.Submit(func() { lq.fill(reader) }); err != nil {
		return errs.Wrap(errs.ReadFailed, "producer.read", err)
	}
	for n := 0; ; n++ {
		line, err := lq.next(ctx)
		if errors.Is(err, io.EOF) {
			logger.Debugf("batch done after %d lines", n)
			return nil
		}
		if err != nil {
			return err
		}
		if err := p.exchange(recvCtx, mb, line, stdout, stderr); err != nil {
			return err
		}
	}
}

// exchange sends one request and routes its response by frame kind.
func (p *Producer) exchange(ctx context.Context, mb *mailbox.Mailbox, line []byte, stdout, stderr io.Writer) error {
	if err := mb.Send(ctx, mailbox.Request, line); err != nil {
		return err
	}
	f, err := mb.Receive(ctx)
	if err != nil {
		if errors.Is(context.Cause(ctx), errWorkerExited) {
			return errs.New(errs.AbnormalTermination, "producer.receive", "worker exited without responding")
		}
		return errs.Wrap(errs.Unknown, "producer.receive", err)
	}
	switch f.Kind {
	case mailbox.ResponseOk:
		if _, err := stdout.Write(f.Payload); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		return nil
	case mailbox.ResponseError:
		text := f.Payload
		if len(text) == 0 || text[len(text)-1] != '\n' {
			text = append(text, '\n')
		}
		if _, err := stderr.Write(text); err != nil {
			logger.Warnf("write error response: %v", err)
		}
		kind := errs.Kind(f.Code)
		if !kind.Valid() {
			kind = errs.Unknown
		}
		return errs.New(kind, "worker", string(f.Payload))
	}
	return fmt.Errorf("%w: unexpected %s from worker", mailbox.ErrCorrupt, f)
}

func exitError(res exitResult) error {
	if res.err != nil {
		return errs.Wrap(errs.WaitFailed, "producer.wait", res.err)
	}
	if !res.status.Success() {
		return errs.New(errs.AbnormalTermination, "producer.wait", "worker "+res.status.String())
	}
	logger.Debugf("worker exited cleanly")
	return nil
}

func (p *Producer) serveHealth(mb *mailbox.Mailbox, pid int) (stop func()) {
	ln, err := net.Listen("tcp", p.opts.HealthAddr)
	if err != nil {
		logger.Warnf("health server disabled: %v", err)
		return func() {}
	}
	srv := &http.Server{Handler: health.NewHandler(mb, pid), ReadHeaderTimeout: 5 * time.Second}
	if err := p.pool.Submit(func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("health server: %v", err)
		}
	}); err != nil {
		_ = ln.Close()
		logger.Warnf("health server disabled: %v", err)
		return func() {}
	}
	logger.Infof("health checks on http://%s", ln.Addr())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func (p *Producer) writeMetrics() {
	if p.opts.MetricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(p.opts.MetricsFile, p.opts.Registry); err != nil {
		logger.Warnf("write metrics file: %v", err)
	}
}
