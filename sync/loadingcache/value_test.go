package loadingcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grailbio/ingest/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recentUnixTimestamp = 1600000000 // 2020-09-13 12:26:40 +0000 UTC

func TestValueExpiration(t *testing.T) {
	var (
		ctx   = context.Background()
		v     Value[int]
		clock fakeClock
	)
	v.setClock(clock.Now)

	clock.Set(time.Unix(recentUnixTimestamp, 0))
	v1, err := v.GetOrLoad(ctx, func(_ context.Context, opts *LoadOpts) (int, error) {
		clock.Add(2 * time.Hour)
		opts.CacheFor(time.Hour)
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	clock.Add(5 * time.Minute)
	v2, err := v.GetOrLoad(ctx, loadFail)
	require.NoError(t, err)
	assert.Equal(t, 1, v2)

	clock.Add(time.Hour)
	v3, err := v.GetOrLoad(ctx, func(_ context.Context, opts *LoadOpts) (int, error) {
		opts.CacheForever()
		return 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, v3)

	clock.Add(10000 * time.Hour)
	v4, err := v.GetOrLoad(ctx, loadFail)
	assert.NoError(t, err)
	assert.Equal(t, 3, v4)
	assert.Equal(t, int64(2), v.Loads())
}

func TestValueExpiration0(t *testing.T) {
	var (
		ctx = context.Background()
		v   Value[int]
	)
	v1, err := v.GetOrLoad(ctx, func(_ context.Context, opts *LoadOpts) (int, error) {
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	// v1's cache time was 0, so v2 loads again.
	v2, err := v.GetOrLoad(ctx, func(_ context.Context, opts *LoadOpts) (int, error) {
		opts.CacheFor(time.Hour)
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v2)
}

func TestValueErrorNotCached(t *testing.T) {
	var (
		ctx = context.Background()
		v   Value[string]
	)
	_, err := v.GetOrLoad(ctx, func(_ context.Context, opts *LoadOpts) (string, error) {
		opts.CacheForever()
		return "", errors.E(errors.Unavailable, "provider down")
	})
	assert.True(t, errors.Is(errors.Unavailable, err))

	got, err := v.GetOrLoad(ctx, func(_ context.Context, opts *LoadOpts) (string, error) {
		opts.CacheForever()
		return "loaded", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "loaded", got)
	assert.Equal(t, int64(2), v.Loads())
}

func TestValuePanic(t *testing.T) {
	var v Value[int]
	_, err := v.GetOrLoad(context.Background(), func(context.Context, *LoadOpts) (int, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// The value is still usable.
	got, err := v.GetOrLoad(context.Background(), func(_ context.Context, opts *LoadOpts) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestValueNil(t *testing.T) {
	var (
		ctx = context.Background()
		v   *Value[int]
	)
	v1, err := v.GetOrLoad(ctx, func(_ context.Context, opts *LoadOpts) (int, error) {
		opts.CacheForever()
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	_, err = v.GetOrLoad(ctx, loadFail)
	assert.Error(t, err)
	assert.Equal(t, int64(0), v.Loads())
}

func TestValueConcurrentSingleLoad(t *testing.T) {
	const N = 50
	var (
		v       Value[int]
		release = make(chan struct{})
		wg      sync.WaitGroup
		results = make([]int, N)
		errs    = make([]error, N)
	)
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = v.GetOrLoad(context.Background(), func(_ context.Context, opts *LoadOpts) (int, error) {
				<-release
				opts.CacheForever()
				return 42, nil
			})
		}(i)
	}
	close(release)
	wg.Wait()
	for i := 0; i < N; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, results[i])
	}
	assert.Equal(t, int64(1), v.Loads())
}

func TestValueFailureSharedWithWaiters(t *testing.T) {
	const N = 16
	var (
		v           Value[int]
		calls       int32
		loadStarted = make(chan struct{})
		release     = make(chan struct{})
		arrived     sync.WaitGroup
		done        sync.WaitGroup
		errs        = make([]error, N)
	)
	load := func(context.Context, *LoadOpts) (int, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(loadStarted)
		}
		<-release
		return 0, errors.E(errors.Unavailable, "provider down")
	}
	done.Add(1)
	go func() {
		defer done.Done()
		_, errs[0] = v.GetOrLoad(context.Background(), load)
	}()
	<-loadStarted
	for i := 1; i < N; i++ {
		arrived.Add(1)
		done.Add(1)
		go func(i int) {
			defer done.Done()
			arrived.Done()
			_, errs[i] = v.GetOrLoad(context.Background(), load)
		}(i)
	}
	arrived.Wait()
	// Give the waiters time to block on the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()
	for i, err := range errs {
		assert.True(t, errors.Is(errors.Unavailable, err), "%d: got %v", i, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(1), v.Loads())

	// A caller arriving after the failure loads again.
	got, err := v.GetOrLoad(context.Background(), func(_ context.Context, opts *LoadOpts) (int, error) {
		opts.CacheForever()
		return 9, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, got)
	assert.Equal(t, int64(2), v.Loads())
}

func TestValueCancellation(t *testing.T) {
	var (
		v     Value[int]
		clock fakeClock
	)
	v.setClock(clock.Now)
	clock.Set(time.Unix(recentUnixTimestamp, 0))
	const cacheDuration = time.Minute

	type participant struct {
		cancel context.CancelFunc
		// participant waits for these before proceeding.
		waitGet, waitLoad chan<- struct{}
		// participant returns these signals of its progress.
		loadStarted <-chan struct{}
		result      <-chan error
	}
	makeParticipant := func(dst *int, loaded int) participant {
		ctx, cancel := context.WithCancel(context.Background())
		var (
			waitGet     = make(chan struct{})
			waitLoad    = make(chan struct{})
			loadStarted = make(chan struct{})
			result      = make(chan error)
		)
		go func() {
			<-waitGet
			val, err := v.GetOrLoad(ctx, func(ctx context.Context, opts *LoadOpts) (int, error) {
				close(loadStarted)
				select {
				case <-ctx.Done():
					return 0, ctx.Err()
				case <-waitLoad:
					opts.CacheFor(cacheDuration)
					return loaded, nil
				}
			})
			*dst = val
			result <- err
		}()
		return participant{cancel, waitGet, waitLoad, loadStarted, result}
	}

	// Start participant 1 and wait for its cache load to start.
	var v1 int
	p1 := makeParticipant(&v1, 1)
	close(p1.waitGet)
	<-p1.loadStarted

	// Start participant 2, then cancel its context and wait for its error.
	var v2 int
	p2 := makeParticipant(&v2, 2)
	p2.waitGet <- struct{}{}
	p2.cancel()
	err2 := <-p2.result
	assert.True(t, errors.Is(errors.Canceled, err2), "got: %v", err2)

	// Start participant 3, then cancel participant 1 and wait for 3 to start loading.
	var v3 int
	p3 := makeParticipant(&v3, 3)
	p3.waitGet <- struct{}{}
	p1.cancel()
	<-p3.loadStarted
	err1 := <-p1.result
	assert.True(t, errors.Is(errors.Canceled, err1), "got: %v", err1)

	// Start participant 4 later (according to clock).
	var v4 int
	p4 := makeParticipant(&v4, 4)
	clock.Add(time.Second)
	p4.waitGet <- struct{}{}

	// Let participant 3 finish loading and wait for results.
	close(p3.waitLoad)
	require.NoError(t, <-p3.result)
	require.NoError(t, <-p4.result)
	assert.Equal(t, 3, v3)
	assert.Equal(t, 3, v4) // Got cached result.

	// Start participant 5 past cache time so it recomputes.
	var v5 int
	p5 := makeParticipant(&v5, 5)
	clock.Add(cacheDuration * 2)
	p5.waitGet <- struct{}{}
	close(p5.waitLoad)
	require.NoError(t, <-p5.result)
	assert.Equal(t, 3, v3)
	assert.Equal(t, 3, v4)
	assert.Equal(t, 5, v5)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func loadFail(context.Context, *LoadOpts) (int, error) {
	panic("unexpected load")
}
