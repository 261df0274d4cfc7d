// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package multierror aggregates errors produced by concurrent work
// into a single error value.
package multierror

import (
	"fmt"
	"strings"
	"sync"
)

// Builder captures errors from concurrent goroutines. It retains at
// most a fixed number of errors and counts the ones it drops. Usage:
//
//	b := multierror.NewBuilder(10)
//	for _, o := range outcomes {
//		b.Add(check(o))
//	}
//	return b.Err()
//
// Builder methods are safe for concurrent use. A nil *Builder ignores
// everything added to it.
type Builder struct {
	mu      sync.Mutex
	max     int
	errs    []error
	dropped int
}

// NewBuilder returns a Builder that retains up to max errors. Max
// values below one are treated as one.
func NewBuilder(max int) *Builder {
	if max < 1 {
		max = 1
	}
	return &Builder{max: max}
}

// Add captures err. Nil errors are ignored. An *Error is flattened
// into the builder so that nesting does not grow the output.
func (b *Builder) Add(err error) *Builder {
	if b == nil || err == nil {
		return b
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if multi, ok := err.(*Error); ok {
		for _, e := range multi.Errs {
			b.add(e)
		}
		b.dropped += multi.Dropped
		return b
	}
	b.add(err)
	return b
}

func (b *Builder) add(err error) {
	if len(b.errs) == b.max {
		b.dropped++
		return
	}
	b.errs = append(b.errs, err)
}

// Len returns the total number of errors added, including dropped ones.
func (b *Builder) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.errs) + b.dropped
}

// Err returns nil if no errors were captured. A single error is
// returned as is; otherwise Err returns an *Error holding a snapshot
// of the captured errors.
func (b *Builder) Err() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case len(b.errs) == 0:
		return nil
	case len(b.errs) == 1 && b.dropped == 0:
		return b.errs[0]
	}
	return &Error{Errs: append([]error(nil), b.errs...), Dropped: b.dropped}
}

// Error is a collection of errors. Dropped counts errors that were
// captured but not retained.
type Error struct {
	Errs    []error
	Dropped int
}

// Error implements error.
func (e *Error) Error() string {
	s := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		s[i] = err.Error()
	}
	msg := fmt.Sprintf("[%s]", strings.Join(s, "\n"))
	if e.Dropped > 0 {
		msg += fmt.Sprintf(" [plus %d other error(s)]", e.Dropped)
	}
	return msg
}

// Unwrap returns the retained errors, so that the standard library's
// errors.Is and errors.As search each of them.
func (e *Error) Unwrap() []error {
	return e.Errs
}
