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

package producer

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/valyala/bytebufferpool"

	"github.com/srediag/shm-mailbox/internal/errs"
)

// lineReader reads newline terminated lines. A line keeps its newline. Lines longer
// than limit are cut at limit+1 bytes, which is enough for the mailbox to refuse them.
type lineReader struct {
	br    *bufio.Reader
	limit int
}

func newLineReader(r io.Reader, limit int) *lineReader {
	return &lineReader{br: bufio.NewReader(r), limit: limit}
}

// next returns the next line, or io.EOF once nothing is left. The final line may lack
// its newline.
func (r *lineReader) next() ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for {
		chunk, err := r.br.ReadSlice('\n')
		if room := r.limit + 1 - len(buf.B); room > 0 {
			_, _ = buf.Write(chunk[:min(len(chunk), room)])
		}
		switch {
		case err == nil:
			return append([]byte(nil), buf.B...), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(buf.B) == 0 {
				return nil, io.EOF
			}
			return append([]byte(nil), buf.B...), nil
		default:
			return nil, errs.Wrap(errs.ReadFailed, "producer.read", err)
		}
	}
}

type lineItem struct {
	line []byte
	err  error
}

// lineQueue decouples reading input from exchanging it in batch mode. Reading stops
// after the first error or io.EOF, which is queued as the last item.
type lineQueue struct {
	q *queue.Queue
}

func newLineQueue(hint int64) *lineQueue {
	return &lineQueue{q: queue.New(hint)}
}

// fill reads every line of r into the queue.
func (lq *lineQueue) fill(r *lineReader) {
	for {
		line, err := r.next()
		if perr := lq.q.Put(lineItem{line: line, err: err}); perr != nil {
			// disposed: the consumer is gone
			return
		}
		if err != nil {
			return
		}
	}
}

// next blocks until a line is queued or ctx is done. Cancelling ctx disposes the
// queue, which releases the blocked Get.
func (lq *lineQueue) next(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, lq.dispose)
	defer stop()
	items, err := lq.q.Get(1)
	if err != nil || len(items) == 0 {
		if cerr := ctx.Err(); cerr != nil {
			return nil, errs.Wrap(errs.ReadFailed, "producer.read", cerr)
		}
		return nil, io.EOF
	}
	item := items[0].(lineItem)
	return item.line, item.err
}

func (lq *lineQueue) dispose() {
	lq.q.Dispose()
}
