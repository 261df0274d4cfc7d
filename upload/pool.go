// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package upload

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/sync/multierror"
	"golang.org/x/sync/errgroup"
)

// maxFailures bounds the number of per-upload errors retained by
// Failures.
const maxFailures = 10

// Request is one upload to validate.
type Request struct {
	Tenant string
	User   UserRef
	Upload Upload
	Data   []byte
}

// Outcome is the result of validating one Request.
type Outcome struct {
	Tenant   string
	UploadID string
	State    State
	// RecordID is set when State is Completed.
	RecordID string
	Messages []string
	// Err is set if the run could not be performed at all.
	Err error
}

// PoolOpts configures a Pool.
type PoolOpts struct {
	// Parallelism is the maximum number of uploads validated at
	// once. Zero means twice the number of available processors.
	Parallelism int
	// Progress, if set, receives progress events for each batch.
	Progress Progress
}

// Pool validates batches of uploads concurrently, each in its own
// Context.
type Pool struct {
	task *Task
	opts PoolOpts
}

// NewPool returns a Pool that runs task on each upload.
func NewPool(task *Task, opts PoolOpts) *Pool {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 2 * runtime.GOMAXPROCS(0)
	}
	return &Pool{task: task, opts: opts}
}

// ValidateAll validates every request and returns their outcomes in
// request order. The failure of one upload does not affect the others.
func (p *Pool) ValidateAll(ctx context.Context, reqs []Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))
	if p.opts.Progress != nil {
		p.opts.Progress.Init(len(reqs))
		defer p.opts.Progress.Complete()
	}
	var g errgroup.Group
	g.SetLimit(p.opts.Parallelism)
	for i := range reqs {
		i := i
		g.Go(func() error {
			if p.opts.Progress != nil {
				p.opts.Progress.Begin(i)
				defer p.opts.Progress.End(i)
			}
			outcomes[i] = p.Validate(ctx, reqs[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Validate validates a single request.
func (p *Pool) Validate(ctx context.Context, req Request) Outcome {
	c := NewContext(req.Tenant, req.User, req.Upload, req.Data)
	state, err := p.task.Run(ctx, c)
	return Outcome{
		Tenant:   req.Tenant,
		UploadID: req.Upload.ID,
		State:    state,
		RecordID: c.RecordID,
		Messages: c.Messages(),
		Err:      err,
	}
}

// Failures summarizes the outcomes that did not complete as a single
// StageFailure error, or returns nil if every upload completed. Each
// failed upload contributes an error carrying its messages; outcomes
// whose run could not be performed contribute their Err.
func Failures(outcomes []Outcome) error {
	b := multierror.NewBuilder(maxFailures)
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			b.Add(errors.E(o.Tenant, o.UploadID, o.Err))
		case o.State != Completed:
			b.Add(errors.E(errors.StageFailure, o.Tenant, o.UploadID, strings.Join(o.Messages, "; ")))
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return errors.E(errors.StageFailure, fmt.Sprintf("%d of %d uploads failed validation", b.Len(), len(outcomes)), b.Err())
}
