// Package loadingcache provides single-flight, lazily loaded cache
// values. A Value runs at most one load at a time; concurrent callers
// wait for the in-flight load and then share its result. Failed loads
// are never cached: callers that were waiting when a load failed receive
// its error, and the next caller to arrive loads again.
package loadingcache

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

type (
	// Value manages the loading and storing of one cached value of
	// type T. It's designed for use cases where loading is slow, such
	// as fetching key material from a remote secret store:
	//  1. Only one load is in progress at a time, even if concurrent callers request the value.
	//     Callers that arrive during a load receive its result without loading. A failure is
	//     shared the same way, unless it was the loader's own context that ended.
	//  2. Cancellation is respected for loading: a caller's load function is invoked with their
	//     context.
	//  3. Cancellation is respected for waiting: if a caller's context is canceled while they're
	//     waiting for another in-progress load, GetOrLoad returns immediately with the
	//     cancellation error.
	//
	// Value{} is ready to use. (*Value)(nil) is valid and never caches or shares a result
	// (every get loads). Value must not be copied.
	Value[T any] struct {
		// init supports at-most-once initialization of subsequent fields.
		init sync.Once
		// c is both a semaphore (limit 1) and storage for cache state.
		c chan state[T]
		// now is used for faking time in tests.
		now func() time.Time
		// loads counts completed load calls; see Loads. Callers
		// snapshot it on arrival to tell which failures they waited on.
		loads atomic.Int64
	}
	state[T any] struct {
		// ok is true if there's a previously-computed value (which may be expired).
		ok  bool
		val T
		// expiresAt is the time of expiration (according to now) when ok is true.
		// expiresAt.IsZero() means no expiration.
		expiresAt time.Time
		// err is the error of the most recent load, if it failed, and
		// errLoad is that load's sequence number (the value of loads
		// after it completed).
		err     error
		errLoad int64
	}
	// LoadFunc computes a value. It should respect cancellation.
	LoadFunc[T any] func(context.Context, *LoadOpts) (T, error)
	// LoadOpts configures how long a LoadFunc result should be cached.
	// Cache settings overwrite each other; last write wins. Default is don't cache at all.
	LoadOpts struct {
		// validFor is cache time if > 0, disables cache if == 0, infinite cache time if < 0.
		validFor time.Duration
	}
)

// GetOrLoad returns the cached value if present and unexpired, and
// otherwise runs load and caches its result as directed by the
// LoadOpts. Example:
//
//	enc, err := value.GetOrLoad(ctx, func(ctx context.Context, opts *loadingcache.LoadOpts) (*cms.Encryptor, error) {
//		opts.CacheFor(time.Hour)
//		return provider.Load(ctx, tenant)
//	})
//
// Errors are not cached. An error is returned to the caller whose load
// produced it and to the callers that were waiting on that load; later
// callers load again. A load that fails because its caller's context
// ended is not shared, and its waiters load instead. A panic inside
// load is recovered and returned as an error.
func (v *Value[T]) GetOrLoad(ctx context.Context, load LoadFunc[T]) (T, error) {
	if v == nil {
		var opts LoadOpts
		return runNoPanic(ctx, &opts, load)
	}

	v.lazyInit()
	arrived := v.loads.Load()

	var st state[T]
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case st = <-v.c:
	}
	defer func() { v.c <- st }()

	if st.ok {
		if st.expiresAt.IsZero() || v.now().Before(st.expiresAt) {
			return st.val, nil
		}
		st = state[T]{}
	}
	if st.err != nil && st.errLoad > arrived {
		var zero T
		return zero, st.err
	}

	var opts LoadOpts
	val, err := runNoPanic(ctx, &opts, load)
	n := v.loads.Add(1)
	st.err, st.errLoad = nil, 0
	if err != nil && ctx.Err() == nil {
		st.err, st.errLoad = err, n
	}
	if err == nil && opts.validFor != 0 {
		st.ok = true
		st.val = val
		if opts.validFor > 0 {
			st.expiresAt = v.now().Add(opts.validFor)
		} else {
			st.expiresAt = time.Time{}
		}
	}
	return val, err
}

// Loads returns the number of times a load function has completed
// on v. It waits for any in-flight load to finish.
func (v *Value[T]) Loads() int64 {
	if v == nil {
		return 0
	}
	v.lazyInit()
	st := <-v.c
	n := v.loads.Load()
	v.c <- st
	return n
}

func (v *Value[T]) lazyInit() {
	v.init.Do(func() {
		if v.c == nil {
			v.c = make(chan state[T], 1)
			v.c <- state[T]{}
		}
		if v.now == nil {
			v.now = time.Now
		}
	})
}

func runNoPanic[T any](ctx context.Context, opts *LoadOpts, load LoadFunc[T]) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache: recovered panic: %v, stack:\n%v", r, string(debug.Stack()))
		}
	}()
	return load(ctx, opts)
}

// setClock is for testing. It must be called before any GetOrLoad and is not concurrency-safe.
func (v *Value[T]) setClock(now func() time.Time) {
	if v == nil {
		return
	}
	v.now = now
}

// CacheFor caches the loaded value for d.
func (o *LoadOpts) CacheFor(d time.Duration) { o.validFor = d }

// CacheForever caches the loaded value until it is deleted.
func (o *LoadOpts) CacheForever() { o.validFor = -1 }
