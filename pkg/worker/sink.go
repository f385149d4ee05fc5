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
	"fmt"
	"os"
	"sync"

	"github.com/srediag/shm-mailbox/internal/errs"
)

// Sink receives every formatted result.
type Sink interface {
	Write(p []byte) error
	Close() error
}

// FileSink writes results to Path. The file is opened on the first write, truncated
// once, and kept open in append mode for the writes that follow.
type FileSink struct {
	Path string

	mu sync.Mutex
	f  *os.File
}

// NewFileSink returns a sink for path. Nothing is opened yet.
func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

func (s *FileSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0600)
		if err != nil {
			return errs.Wrap(errs.FileOpenFailed, "worker.sink", err)
		}
		s.f = f
	}
	n, err := s.f.Write(p)
	if err != nil {
		return errs.Wrap(errs.FileWriteFailed, "worker.sink", err)
	}
	if n != len(p) {
		return errs.New(errs.FileWriteFailed, "worker.sink", fmt.Sprintf("short write %d of %d bytes", n, len(p)))
	}
	return nil
}

// Close closes the file if it was opened.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return errs.Wrap(errs.FileWriteFailed, "worker.sink", err)
	}
	return nil
}
