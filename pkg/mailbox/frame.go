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
	"fmt"

	"github.com/srediag/shm-mailbox/internal/shm"
)

// region layout: magic 4 | lock 4 | request sem 4 | response sem 4 | kind 4 | length 4 | code 4 | reserved 4 | seq 8 | payload
const (
	magicOffset       = 0
	lockOffset        = magicOffset + 4
	requestSemOffset  = lockOffset + 4
	responseSemOffset = requestSemOffset + 4
	kindOffset        = responseSemOffset + 4
	lengthOffset      = kindOffset + 4
	codeOffset        = lengthOffset + 4
	seqOffset         = codeOffset + 8

	// HeaderSize is the number of bytes in front of the payload.
	HeaderSize = seqOffset + 8

	// DefaultCapacity is the reference region size.
	DefaultCapacity = 4096

	// MaxCapacity bounds the region size accepted by Create.
	MaxCapacity = 1 << 20

	regionMagic uint32 = 0x584f424d // "MBOX"
)

// Kind tags the frame currently held by the slot.
type Kind uint32

const (
	Empty Kind = iota
	Request
	ResponseOk
	ResponseError
	Terminate

	kindCount
)

var kindNames = [kindCount]string{
	Empty:         "Empty",
	Request:       "Request",
	ResponseOk:    "ResponseOk",
	ResponseError: "ResponseError",
	Terminate:     "Terminate",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint32(k))
}

// IsResponse reports whether k travels from the peer back to the owner.
func (k Kind) IsResponse() bool {
	return k == ResponseOk || k == ResponseError
}

func (k Kind) valid() bool {
	return k > Empty && k < kindCount
}

// Frame is one message exchanged through the slot.
type Frame struct {
	Kind Kind
	// Code is an application status, set on ResponseError frames.
	Code uint32
	// Seq is assigned by Send and increases by one per frame.
	Seq     uint64
	Payload []byte
}

// Len returns the payload length.
func (f Frame) Len() int { return len(f.Payload) }

func (f Frame) String() string {
	return fmt.Sprintf("%s(seq=%d code=%d len=%d)", f.Kind, f.Seq, f.Code, len(f.Payload))
}

// header points into the mapped region.
type header struct {
	magic       *uint32
	lock        *uint32
	requestSem  *uint32
	responseSem *uint32
	kind        *uint32
	length      *uint32
	code        *uint32
	seq         *uint64
}

func mapHeader(mem []byte) header {
	return header{
		magic:       shm.Uint32At(mem, magicOffset),
		lock:        shm.Uint32At(mem, lockOffset),
		requestSem:  shm.Uint32At(mem, requestSemOffset),
		responseSem: shm.Uint32At(mem, responseSemOffset),
		kind:        shm.Uint32At(mem, kindOffset),
		length:      shm.Uint32At(mem, lengthOffset),
		code:        shm.Uint32At(mem, codeOffset),
		seq:         shm.Uint64At(mem, seqOffset),
	}
}
