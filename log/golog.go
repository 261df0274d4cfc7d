// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package log

import (
	"flag"
	"fmt"
	"io"
	golog "log"
	"sync/atomic"
)

var golevel = Info

var called int32

// AddFlags adds the standard -log level flag to the flag.CommandLine
// flag set.
func AddFlags() {
	if atomic.AddInt32(&called, 1) != 1 {
		Error.Printf("log.AddFlags: called twice!")
		return
	}
	flag.Var(new(logFlag), "log", "set log level (off, error, info, debug)")
}

const (
	Ldate         = golog.Ldate
	Ltime         = golog.Ltime
	Lmicroseconds = golog.Lmicroseconds
	Lshortfile    = golog.Lshortfile
	LstdFlags     = Ldate | Ltime
)

// SetFlags sets the output flags for the Go standard logger.
func SetFlags(flag int) {
	golog.SetFlags(flag)
}

// SetOutput sets the output destination for the Go standard logger.
func SetOutput(w io.Writer) {
	golog.SetOutput(w)
}

// SetLevel sets the log level for the Go standard logger.
// It should be called once at the beginning of a program's main.
func SetLevel(level Level) {
	golevel = level
}

// ParseLevel returns the level named by s.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "off":
		return Off, nil
	case "error":
		return Error, nil
	case "info", "":
		return Info, nil
	case "debug":
		return Debug, nil
	}
	return Off, fmt.Errorf("invalid log level %q", s)
}

type logFlag string

func (f logFlag) String() string {
	return string(f)
}

func (f *logFlag) Set(level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	golevel = l
	*f = logFlag(level)
	return nil
}

// Get implements flag.Getter.
func (logFlag) Get() interface{} {
	return golevel
}

type gologOutputter struct{}

func (gologOutputter) Level() Level { return golevel }

func (gologOutputter) Output(calldepth int, level Level, s string) error {
	if golevel < level {
		return nil
	}
	return golog.Output(calldepth+1, s)
}
