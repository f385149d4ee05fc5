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

// Package config holds the settings shared by the shmsum commands. Values come from
// defaults, then SHMSUM_* environment variables, then command line flags.
package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"

	"github.com/srediag/shm-mailbox/internal/logging"
	"github.com/srediag/shm-mailbox/internal/shm"
	"github.com/srediag/shm-mailbox/pkg/mailbox"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SHMSUM"

// Config is the full set of shmsum settings.
type Config struct {
	// MailboxName names the shared region. The producer passes it to the worker.
	MailboxName string `envconfig:"MAILBOX_NAME" default:"shmsum"`
	MailboxDir  string `envconfig:"MAILBOX_DIR" default:"/dev/shm"`
	// Capacity is the region size in bytes, header included.
	Capacity       int           `envconfig:"CAPACITY" default:"4096"`
	AttachRetries  uint64        `envconfig:"ATTACH_RETRIES" default:"10"`
	AttachInterval time.Duration `envconfig:"ATTACH_INTERVAL" default:"20ms"`
	// WorkerPath is the worker binary. Empty means the running executable.
	WorkerPath  string `envconfig:"WORKER_PATH"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"warn"`
	Batch       bool   `envconfig:"BATCH"`
	HealthAddr  string `envconfig:"HEALTH_ADDR"`
	MetricsFile string `envconfig:"METRICS_FILE"`
	// UniqueName appends a random suffix to MailboxName so concurrent runs do not
	// replace each other's region.
	UniqueName bool `envconfig:"UNIQUE_NAME"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		MailboxName:    "shmsum",
		MailboxDir:     shm.DefaultDir,
		Capacity:       mailbox.DefaultCapacity,
		AttachRetries:  10,
		AttachInterval: 20 * time.Millisecond,
		LogLevel:       "warn",
	}
}

// Load reads the environment over the defaults and verifies the result.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// VerifyConfig checks that c can drive a mailbox.
func VerifyConfig(c *Config) error {
	if _, err := shm.RegionPath(c.MailboxDir, c.MailboxName); err != nil {
		return fmt.Errorf("mailbox name: %w", err)
	}
	if c.Capacity <= mailbox.HeaderSize || c.Capacity > mailbox.MaxCapacity {
		return fmt.Errorf("capacity must be in (%d, %d], got %d", mailbox.HeaderSize, mailbox.MaxCapacity, c.Capacity)
	}
	if c.AttachInterval <= 0 {
		return fmt.Errorf("attach interval must be positive, got %s", c.AttachInterval)
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// ResolveName returns the region name to create, with a random suffix when
// UniqueName is set.
func (c *Config) ResolveName() string {
	if !c.UniqueName {
		return c.MailboxName
	}
	return c.MailboxName + "-" + uuid.NewString()
}

// MailboxOptions translates c into options for mailbox.Create and mailbox.Attach.
func (c *Config) MailboxOptions() []mailbox.Option {
	return []mailbox.Option{
		mailbox.WithDir(c.MailboxDir),
		mailbox.WithCapacity(c.Capacity),
		mailbox.WithAttachRetry(c.AttachRetries, c.AttachInterval),
	}
}

// ApplyLogLevel sets the process log level from c.
func (c *Config) ApplyLogLevel() {
	if l, ok := logging.ParseLevel(c.LogLevel); ok {
		logging.SetLogLevel(l)
	}
}
