// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package retry contains utilities for retrying operations that fail
// with temporary errors, such as fetching tenant key bundles from a
// remote secret store.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/grailbio/ingest/errors"
)

// A Policy is an interface that abstracts retry policies. Typically
// users will not call methods directly on a Policy but rather use
// the package functions Wait or Do.
type Policy interface {
	// Retry tells whether a new retry should be attempted,
	// and after how long.
	Retry(retry int) (bool, time.Duration)
}

// Wait queries the provided policy at the provided retry number and
// sleeps until the next try should be attempted. Wait returns an
// error if the policy prohibits further tries, if the context was
// canceled, or if its deadline would run out while waiting for the
// next try.
func Wait(ctx context.Context, policy Policy, retry int) error {
	keepgoing, wait := policy.Retry(retry)
	if !keepgoing {
		return errors.E(errors.Unavailable, fmt.Sprintf("gave up after %d tries", retry))
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
		return errors.E(errors.Timeout, "ran out of time while waiting for retry")
	}
	if wait == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls f until it succeeds, fails with an error that is not
// temporary (see errors.IsTemporary), or the policy gives up. In the
// last case the error returned by the final call to f is returned.
// A nil policy means f is called exactly once.
func Do(ctx context.Context, policy Policy, f func() error) error {
	for retries := 0; ; retries++ {
		err := f()
		if err == nil || policy == nil || !errors.IsTemporary(err) {
			return err
		}
		if werr := Wait(ctx, policy, retries); werr != nil {
			return err
		}
	}
}

type backoff struct {
	factor       float64
	initial, max time.Duration
}

// Backoff returns a Policy that initially waits for the amount of
// time specified by parameter initial; on each try this value is
// multiplied by the provided factor, up to the max duration.
func Backoff(initial, max time.Duration, factor float64) Policy {
	return &backoff{
		initial: initial,
		max:     max,
		factor:  factor,
	}
}

func (b *backoff) Retry(retries int) (bool, time.Duration) {
	wait := float64(b.initial) * math.Pow(b.factor, float64(retries))
	if wait > float64(b.max) {
		return true, b.max
	}
	return true, time.Duration(wait)
}

type maxretries struct {
	policy Policy
	max    int
}

// MaxRetries returns a policy that permits at most n retries. The
// provided policy decides the wait while retries remain. If policy
// is nil, retries are immediate.
func MaxRetries(policy Policy, n int) Policy {
	if n < 0 {
		panic("retry.MaxRetries: n < 0")
	}
	return &maxretries{policy, n}
}

func (m *maxretries) Retry(retries int) (bool, time.Duration) {
	if retries >= m.max {
		return false, 0
	}
	if m.policy != nil {
		return m.policy.Retry(retries)
	}
	return true, 0
}
