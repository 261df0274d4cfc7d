// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package upload

import (
	"sync"

	"github.com/grailbio/ingest/log"
)

// Progress receives events from a batch validation in a Pool. It is
// used to monitor long-running batches.
type Progress interface {
	// Init is called before the batch starts with the number of
	// uploads in it.
	Init(n int)
	// Complete is called after every upload has finished.
	Complete()

	// Begin is called when upload i starts.
	Begin(i int)
	// End is called when upload i has finished.
	End(i int)
}

// NewLogProgress returns a Progress that logs the number of queued,
// running, and finished uploads at the given level.
func NewLogProgress(name string, level log.Level) Progress {
	return &logProgress{name: name, level: level}
}

type logProgress struct {
	name  string
	level log.Level

	mu                    sync.Mutex
	queued, running, done int
}

func (p *logProgress) Init(n int) {
	p.mu.Lock()
	p.queued, p.running, p.done = n, 0, 0
	p.update()
	p.mu.Unlock()
}

func (p *logProgress) Complete() {
	p.mu.Lock()
	p.level.Printf("%s: finished %d uploads", p.name, p.done)
	p.mu.Unlock()
}

func (p *logProgress) Begin(i int) {
	p.mu.Lock()
	p.queued--
	p.running++
	p.update()
	p.mu.Unlock()
}

func (p *logProgress) End(i int) {
	p.mu.Lock()
	p.running--
	p.done++
	p.update()
	p.mu.Unlock()
}

func (p *logProgress) update() {
	p.level.Printf("%s: (queued: %d -> running: %d -> done: %d)", p.name, p.queued, p.running, p.done)
}
