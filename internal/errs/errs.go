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

// Package errs holds the error taxonomy shared by the mailbox, the producer and the worker.
//
// Every failure the channel can surface has a Kind. An *Error pairs the Kind with the
// operation that failed and an optional cause, and matches a bare Kind through errors.Is:
//
//	if errors.Is(err, errs.PayloadTooLarge) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint32

const (
	Unknown Kind = iota
	ChannelCreateFailed
	ChannelAttachFailed
	SpawnFailed
	PayloadTooLarge
	InvalidToken
	NumberOutOfRange
	SumOverflow
	EmptyInput
	FileOpenFailed
	FileWriteFailed
	ReadFailed
	WaitFailed
	AbnormalTermination

	kindCount
)

var kindNames = [kindCount]string{
	Unknown:             "Unknown",
	ChannelCreateFailed: "ChannelCreateFailed",
	ChannelAttachFailed: "ChannelAttachFailed",
	SpawnFailed:         "SpawnFailed",
	PayloadTooLarge:     "PayloadTooLarge",
	InvalidToken:        "InvalidToken",
	NumberOutOfRange:    "NumberOutOfRange",
	SumOverflow:         "SumOverflow",
	EmptyInput:          "EmptyInput",
	FileOpenFailed:      "FileOpenFailed",
	FileWriteFailed:     "FileWriteFailed",
	ReadFailed:          "ReadFailed",
	WaitFailed:          "WaitFailed",
	AbnormalTermination: "AbnormalTermination",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint32(k))
}

// Error implements error so a Kind can be used as a sentinel target.
func (k Kind) Error() string { return k.String() }

// Valid reports whether k is a known kind other than Unknown.
func (k Kind) Valid() bool { return k > Unknown && k < kindCount }

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "mailbox.create".
	Op  string
	Msg string
	Err error
}

// New builds an *Error without a cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error or a bare Kind of the same kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}
