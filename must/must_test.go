// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package must_test

import (
	"errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/grailbio/ingest/must"
)

// TestDepth verifies that the depth passed to Func locates the caller
// of the must function.
func TestDepth(t *testing.T) {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("could not determine current file")
	}
	old := must.Func
	defer func() { must.Func = old }()
	var calls int
	must.Func = func(depth int, v ...interface{}) {
		calls++
		_, file, _, ok := runtime.Caller(depth)
		if !ok {
			t.Fatal("could not determine caller of Func")
		}
		if file != thisFile {
			t.Errorf("caller at depth %d is '%s'; should be '%s'", depth, file, thisFile)
		}
	}
	must.Nil(errors.New("x"))
	must.Nil(errors.New("x"), "loading keys")
	must.True(false)
	must.Truef(false, "tenant %s", "study-A")
	must.Nil(nil)
	must.True(true)
	if got, want := calls, 4; got != want {
		t.Errorf("got %d calls, want %d", got, want)
	}
}

func TestMessage(t *testing.T) {
	old := must.Func
	defer func() { must.Func = old }()
	var msg string
	must.Func = func(_ int, v ...interface{}) { msg = fmt.Sprint(v...) }
	must.Nil(errors.New("no such key"), "loading tenant ", "study-A")
	if got, want := msg, "loading tenant study-A: no such key"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
