// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package errors_test

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"testing"

	"github.com/grailbio/ingest/errors"
)

func TestError(t *testing.T) {
	_, err := os.Open("/dev/notexist")
	e1 := errors.E(errors.NotExist, "opening file", err)
	if got, want := e1.Error(), "opening file: resource does not exist: open /dev/notexist: no such file or directory"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	e2 := errors.E(err)
	if got, want := e2.Error(), "resource does not exist: open /dev/notexist: no such file or directory"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	for _, e := range []error{e1, e2} {
		if !errors.Is(errors.NotExist, e) {
			t.Errorf("error %v should be NotExist", e)
		}
	}
}

func TestErrorChaining(t *testing.T) {
	err := errors.E(errors.Integrity, "no recipient for certificate")
	err = errors.E(errors.CryptoFailure, "decrypt", err)
	if got, want := err.Error(), "decrypt: cryptographic failure:\n\tno recipient for certificate: integrity error"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !errors.Is(errors.CryptoFailure, err) {
		t.Errorf("error %v should be CryptoFailure", err)
	}
	if errors.Is(errors.Integrity, err) {
		t.Errorf("error %v should not report its cause's kind through Is", err)
	}
	if !errors.Caused(errors.Integrity, err) {
		t.Errorf("error %v should retain its Integrity cause", err)
	}
	if errors.Caused(errors.Invalid, err) {
		t.Errorf("error %v has no Invalid cause", err)
	}
}

func TestKindInheritance(t *testing.T) {
	err := errors.E(errors.DuplicateEntry, "a.json")
	err = errors.E("unzip", err)
	if !errors.Is(errors.DuplicateEntry, err) {
		t.Errorf("error %v should inherit DuplicateEntry", err)
	}
	if got, want := err.Error(), "unzip: duplicate entry:\n\ta.json"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

type temporaryError string

func (t temporaryError) Error() string   { return string(t) }
func (t temporaryError) Temporary() bool { return true }

func TestIsTemporary(t *testing.T) {
	for _, c := range []struct {
		err       error
		temporary bool
	}{
		{errors.E(context.DeadlineExceeded), true},
		{errors.E(context.Canceled), false},
		{goerrors.New("no idea"), false},
		{temporaryError(""), true},
		{errors.E(temporaryError(""), errors.KeyMaterialUnavailable), true},
		{errors.E(errors.Temporary, "failed to open socket"), true},
		{errors.E("no idea"), false},
		{errors.E(errors.Fatal, "fatal error"), false},
		{errors.E(errors.Retriable, "this one you can retry"), true},
		{errors.E(fmt.Errorf("test")), false},
	} {
		if got, want := errors.IsTemporary(c.err), c.temporary; got != want {
			t.Errorf("error %v: got %v, want %v", c.err, got, want)
		}
	}
}

func TestMessage(t *testing.T) {
	for _, c := range []struct {
		err     error
		message string
	}{
		{errors.E("hello"), "hello"},
		{errors.E("hello", "world"), "hello world"},
		{errors.E(errors.ValidationInput, "tenant cannot be blank"), "tenant cannot be blank: invalid input"},
	} {
		if got, want := c.err.Error(), c.message; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestStdInterop(t *testing.T) {
	_, err := os.Open("/dev/notexist")
	wrapped := errors.E(errors.KeyMaterialUnavailable, "loading tenant", errors.E("reading bundle", err))
	if !goerrors.Is(wrapped, os.ErrNotExist) {
		t.Errorf("error %v should match os.ErrNotExist", wrapped)
	}
	var e *errors.Error
	if !goerrors.As(wrapped, &e) {
		t.Fatalf("error %v should be an *errors.Error", wrapped)
	}
	if got, want := e.Kind, errors.KeyMaterialUnavailable; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMatch(t *testing.T) {
	err := errors.E(errors.MalformedContainer, "zip: not a valid zip file")
	if !errors.Match(errors.E(errors.MalformedContainer), err) {
		t.Errorf("kind-only pattern should match %v", err)
	}
	if errors.Match(errors.E(errors.DuplicateEntry), err) {
		t.Errorf("DuplicateEntry should not match %v", err)
	}
}

func TestBadArgument(t *testing.T) {
	err := errors.E(errors.Invalid, 42)
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("error %v should be Invalid", err)
	}
}
