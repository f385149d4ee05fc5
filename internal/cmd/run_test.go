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

package cmd

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// A copier draining a pipe and a direct writer share one buffer, the way the worker's
// stderr and the producer's error output do during run.
func TestSharedStderrKeepsEveryWrite(t *testing.T) {
	var buf bytes.Buffer
	w := zapcore.Lock(zapcore.AddSync(&buf))

	const rounds = 200
	pr, pw := io.Pipe()
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		_, err := io.Copy(w, pr)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _ = pw.Write([]byte("worker\n"))
		}
		_ = pw.Close()
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := w.Write([]byte("producer\n"))
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	out := buf.String()
	require.Equal(t, rounds, strings.Count(out, "worker\n"))
	require.Equal(t, rounds, strings.Count(out, "producer\n"))
}
