// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package upload validates uploaded data packages. A validation run
// threads a Context through a fixed, ordered list of stages:
//
//	decrypt -> unzip -> parse JSON -> transform -> persist -> report
//
// Each stage writes the Context fields it owns and reads only fields
// written before it. A stage that fails does not abort the run:
// the Task records the failure as a message and flips the context's
// success flag, skips the remaining stages that require success, and
// still runs stages that always run (reporting). A failed upload
// therefore yields the full list of problems found, not just one error.
package upload

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/log"
)

// Task runs an ordered list of stages against a Context. A Task holds
// no per-run state and may run many contexts concurrently.
type Task struct {
	stages []Stage
}

// NewTask returns a Task that runs the given stages in order.
func NewTask(stages ...Stage) *Task {
	return &Task{stages: stages}
}

// Stages returns the names of the task's stages in run order.
func (t *Task) Stages() []string {
	names := make([]string, len(t.stages))
	for i, s := range t.stages {
		names[i] = s.Name()
	}
	return names
}

// Run runs the task's stages against c and returns the terminal
// state, Completed or Failed. Stages are never interrupted; ctx is
// checked between stages, and once it is done the run fails and only
// Always stages run. Run returns an error only if c has already been
// run.
func (t *Task) Run(ctx context.Context, c *Context) (State, error) {
	if c.state != Created {
		return c.state, errors.E(errors.Precondition, fmt.Sprintf("upload: context %s has already been run (state %s)", c, c.state))
	}
	var (
		logger  = log.Prefixed(c.String())
		stopped bool
		start   = time.Now()
	)
	for _, stage := range t.stages {
		name := stage.Name()
		if stage.Requires() == RequireSuccess {
			if err := ctx.Err(); err != nil && c.success {
				c.fail(name, errors.E(errors.StageFailure, "run abandoned before stage", name, err))
				logger.Printf(log.Error, "abandoning run before stage %s: %v", name, err)
			}
			if !c.success || stopped {
				logger.Printf(log.Debug, "skipping stage %s", name)
				continue
			}
		}
		c.state, c.stage = StageRunning, name
		logger.Printf(log.Debug, "running stage %s", name)
		stageStart := time.Now()
		r := runStage(ctx, stage, c)
		c.messages = append(c.messages, r.Messages...)
		if r.Err != nil {
			c.fail(name, r.Err)
			logger.Printf(log.Error, "stage %s failed: %v", name, r.Err)
		}
		if r.Stop {
			stopped = true
		}
		c.state = StageDone
		logger.Printf(log.Debug, "stage %s done in %s", name, time.Since(stageStart))
	}
	if c.success {
		c.state = Completed
	} else {
		c.state = Failed
	}
	logger.Printf(log.Info, "validation %s in %s with %d messages", c.state, time.Since(start), len(c.messages))
	return c.state, nil
}

func (c *Context) fail(stage string, err error) {
	if c.success {
		c.failed = stage
	}
	c.success = false
	c.messages = append(c.messages, fmt.Sprintf("%s: %v", stage, err))
}

// runStage runs stage, converting a panic into a failing Result.
func runStage(ctx context.Context, stage Stage, c *Context) (r Result) {
	defer func() {
		if v := recover(); v != nil {
			log.Error.Printf("upload: stage %s panicked: %v\n%s", stage.Name(), v, debug.Stack())
			r = Result{Err: errors.E(errors.StageFailure, fmt.Sprintf("panic: %v", v))}
		}
	}()
	return stage.Run(ctx, c)
}
