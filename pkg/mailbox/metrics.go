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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/srediag/shm-mailbox/pkg/mailbox"

type metrics struct {
	role    string
	frames  *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	waits   *prometheus.HistogramVec
	tracer  trace.Tracer
	otelCnt metric.Int64Counter
}

func newMetrics(role Role, o options) *metrics {
	m := &metrics{
		role: role.String(),
		frames: register(o.registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shmsum",
			Subsystem: "mailbox",
			Name:      "frames_total",
			Help:      "Frames moved through the mailbox slot.",
		}, []string{"role", "direction", "kind"})),
		bytes: register(o.registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shmsum",
			Subsystem: "mailbox",
			Name:      "payload_bytes_total",
			Help:      "Payload bytes moved through the mailbox slot.",
		}, []string{"role", "direction"})),
		waits: register(o.registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shmsum",
			Subsystem: "mailbox",
			Name:      "receive_wait_seconds",
			Help:      "Time spent blocked in Receive.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"role"})),
		tracer: o.tracer,
	}
	// without explicit options the global providers are used; they stay no-ops until
	// the program installs an SDK
	if m.tracer == nil {
		m.tracer = otel.Tracer(instrumentationName)
	}
	meter := o.meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	cnt, err := meter.Int64Counter("shmsum.mailbox.frames",
		metric.WithDescription("Frames moved through the mailbox slot."))
	if err != nil {
		logger.Warnf("mailbox otel counter: %v", err)
		cnt, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("shmsum.mailbox.frames")
	}
	m.otelCnt = cnt
	return m
}

// register returns the collector already registered under the same descriptor, if any,
// so several mailboxes in one process share their series.
func register[C prometheus.Collector](r prometheus.Registerer, c C) C {
	if r == nil {
		return c
	}
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		logger.Warnf("mailbox metrics register: %v", err)
	}
	return c
}

func (m *metrics) startSpan(ctx context.Context, op string, kind Kind) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("mailbox.role", m.role),
		kindAttr(kind),
	))
}

func kindAttr(k Kind) attribute.KeyValue {
	return attribute.String("mailbox.kind", k.String())
}

func (m *metrics) frame(ctx context.Context, direction string, f Frame) {
	m.frames.WithLabelValues(m.role, direction, f.Kind.String()).Inc()
	m.bytes.WithLabelValues(m.role, direction).Add(float64(len(f.Payload)))
	m.otelCnt.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", m.role),
		attribute.String("direction", direction),
		attribute.String("kind", f.Kind.String()),
	))
}

func (m *metrics) waited(d time.Duration) {
	m.waits.WithLabelValues(m.role).Observe(d.Seconds())
}
