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

package errs

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "PayloadTooLarge", PayloadTooLarge.String())
	assert.Equal(t, "AbnormalTermination", AbnormalTermination.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
	assert.False(t, Unknown.Valid())
	assert.True(t, SumOverflow.Valid())
	assert.False(t, Kind(99).Valid())
}

func TestErrorMatchesKind(t *testing.T) {
	err := Wrap(ChannelCreateFailed, "mailbox.create", io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, ChannelCreateFailed))
	assert.False(t, errors.Is(err, ChannelAttachFailed))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, "mailbox.create: ChannelCreateFailed: unexpected EOF", err.Error())

	wrapped := fmt.Errorf("run: %w", err)
	assert.Equal(t, ChannelCreateFailed, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, New(ChannelCreateFailed, "", "")))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(ReadFailed, "read", nil))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(nil))
	assert.Equal(t, Unknown, KindOf(io.EOF))
	assert.Equal(t, EmptyInput, KindOf(EmptyInput))
	assert.Equal(t, InvalidToken, KindOf(errors.Join(io.EOF, New(InvalidToken, "sum", "bad"))))
}

func TestNewMessage(t *testing.T) {
	err := New(SumOverflow, "worker", "Sum overflow")
	assert.Equal(t, "worker: SumOverflow: Sum overflow", err.Error())
	assert.Nil(t, err.Unwrap())
}
