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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/shm-mailbox/internal/shm"
)

const (
	defaultAttachRetries  = 10
	defaultAttachInterval = 20 * time.Millisecond
)

// Option configures Create and Attach.
type Option func(*options)

type options struct {
	capacity       int
	dir            string
	attachRetries  uint64
	attachInterval time.Duration
	registerer     prometheus.Registerer
	tracer         trace.Tracer
	meter          metric.Meter
}

func defaultOptions() options {
	return options{
		capacity:       DefaultCapacity,
		dir:            shm.DefaultDir,
		attachRetries:  defaultAttachRetries,
		attachInterval: defaultAttachInterval,
	}
}

// WithCapacity sets the region size in bytes, header included. Create only.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithDir sets the directory that holds region names.
func WithDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.dir = dir
		}
	}
}

// WithAttachRetry bounds how long Attach waits for a region that does not exist yet.
// Zero retries fails on the first miss.
func WithAttachRetry(retries uint64, interval time.Duration) Option {
	return func(o *options) {
		o.attachRetries = retries
		if interval > 0 {
			o.attachInterval = interval
		}
	}
}

// WithRegisterer registers the mailbox's Prometheus collectors with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithTracer traces Send and Receive.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMeter records frame counts through an OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}
