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

// Package sum parses one line of whitespace separated numbers and adds them up with
// single precision floats.
package sum

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"

	"github.com/srediag/shm-mailbox/internal/errs"
)

var (
	// ErrInvalidToken reports a token that is not a floating point literal.
	ErrInvalidToken = errs.New(errs.InvalidToken, "sum", "invalid token")
	// ErrOutOfRange reports a literal whose value is infinite in single precision.
	ErrOutOfRange = errs.New(errs.NumberOutOfRange, "sum", "number out of range")
	// ErrEmpty reports a line without any token.
	ErrEmpty = errs.New(errs.EmptyInput, "sum", "no numbers")
	// ErrSumOverflow reports a running sum that became infinite.
	ErrSumOverflow = errs.New(errs.SumOverflow, "sum", "sum overflow")
)

// isSpace matches the C locale's isspace: other Unicode spaces are token bytes.
func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Tokens yields the numbers of the first line of s. Iteration ends at the first
// newline or NUL byte, at the end of s, or right after a fault is yielded.
func Tokens(s string) iter.Seq2[float32, error] {
	if i := strings.IndexAny(s, "\n\x00"); i >= 0 {
		s = s[:i]
	}
	return func(yield func(float32, error) bool) {
		for _, tok := range strings.FieldsFunc(s, isSpace) {
			v, err := parse(tok)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

func parse(tok string) (float32, error) {
	f, err := strconv.ParseFloat(tok, 32)
	if err != nil {
		var ne *strconv.NumError
		// underflow is accepted as the rounded value, only an infinite result is a fault
		if errors.As(err, &ne) && errors.Is(ne.Err, strconv.ErrRange) {
			if math.IsInf(f, 0) {
				return 0, fmt.Errorf("%w: %q", ErrOutOfRange, tok)
			}
			return float32(f), nil
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidToken, tok)
	}
	if math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidToken, tok)
	}
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrOutOfRange, tok)
	}
	return float32(f), nil
}

// Sum adds up the numbers of the first line of s.
func Sum(s string) (float32, error) {
	var total float32
	count := 0
	for v, err := range Tokens(s) {
		if err != nil {
			return 0, err
		}
		total += v
		count++
		if math.IsInf(float64(total), 0) {
			return 0, ErrSumOverflow
		}
	}
	if count == 0 {
		return 0, ErrEmpty
	}
	return total, nil
}

// Format renders v the way results are written and returned: two decimals and a newline.
func Format(v float32) string {
	return fmt.Sprintf("%.2f\n", v)
}

// AppendFormat is Format appending to dst.
func AppendFormat(dst []byte, v float32) []byte {
	dst = strconv.AppendFloat(dst, float64(v), 'f', 2, 32)
	return append(dst, '\n')
}
