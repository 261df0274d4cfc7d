// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package upload

import (
	"context"
	"fmt"

	"github.com/grailbio/ingest/errors"
)

// Precondition says when a stage may run.
type Precondition int

const (
	// RequireSuccess stages run only while the context is successful
	// and no earlier stage asked to stop.
	RequireSuccess Precondition = iota
	// Always stages run regardless of earlier failures. They are used
	// for bookkeeping and reporting.
	Always
)

func (p Precondition) String() string {
	switch p {
	case RequireSuccess:
		return "require-success"
	case Always:
		return "always"
	default:
		return fmt.Sprintf("Precondition(%d)", int(p))
	}
}

// A Stage is one step of a validation run. Run mutates the fields of
// the Context that the stage owns and reports its outcome in a
// Result; it does not change the context's success flag itself.
type Stage interface {
	// Name identifies the stage in logs and messages.
	Name() string
	// Requires returns the stage's precondition.
	Requires() Precondition
	// Run runs the stage on c.
	Run(ctx context.Context, c *Context) Result
}

// Result is the outcome of one stage.
type Result struct {
	// Err is the stage's failure, or nil. A failing result flips the
	// context's success flag and adds a message describing Err.
	Err error
	// Stop asks the orchestrator to skip the remaining RequireSuccess
	// stages even though this stage succeeded. Always stages still
	// run.
	Stop bool
	// Messages are added to the context whether or not the stage
	// failed.
	Messages []string
}

// Continue is the result of a stage that succeeded.
func Continue(messages ...string) Result {
	return Result{Messages: messages}
}

// Fail is the result of a stage that failed with err. The error is
// given kind errors.StageFailure unless it already has a kind.
func Fail(err error) Result {
	if err == nil {
		err = errors.E(errors.StageFailure, "unknown failure")
	} else if errors.Recover(err).Kind == errors.Other {
		err = errors.E(errors.StageFailure, err)
	}
	return Result{Err: err}
}

// Failf is the result of a stage that failed for the reason given by
// format and args.
func Failf(format string, args ...interface{}) Result {
	return Result{Err: errors.E(errors.StageFailure, fmt.Sprintf(format, args...))}
}

// Halt is the result of a stage that succeeded but has determined
// that the remaining RequireSuccess stages should not run, for
// example because there is nothing left to do.
func Halt(messages ...string) Result {
	return Result{Stop: true, Messages: messages}
}

// Failed tells whether r is a failure.
func (r Result) Failed() bool { return r.Err != nil }

type funcStage struct {
	name     string
	requires Precondition
	run      func(context.Context, *Context) Result
}

// StageFunc returns a Stage with the given name and precondition that
// runs fn.
func StageFunc(name string, requires Precondition, fn func(ctx context.Context, c *Context) Result) Stage {
	return funcStage{name, requires, fn}
}

func (s funcStage) Name() string                               { return s.name }
func (s funcStage) Requires() Precondition                     { return s.requires }
func (s funcStage) Run(ctx context.Context, c *Context) Result { return s.run(ctx, c) }
