// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package multierror

import (
	goerrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/grailbio/ingest/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	for _, test := range []struct {
		errs []error
		want string
	}{
		{nil, ""},
		{[]error{nil, nil}, ""},
		{[]error{goerrors.New("FAIL")}, "FAIL"},
		{
			[]error{goerrors.New("1"), goerrors.New("2"), goerrors.New("3")},
			"[1\n2] [plus 1 other error(s)]",
		},
		{
			[]error{goerrors.New("1"), NewBuilder(2).Add(goerrors.New("a")).Add(goerrors.New("b")).Err()},
			"[1\na] [plus 1 other error(s)]",
		},
		{
			[]error{goerrors.New("1"), NewBuilder(1).Add(goerrors.New("a")).Add(goerrors.New("b")).Err()},
			"[1\na] [plus 1 other error(s)]",
		},
	} {
		b := NewBuilder(2)
		for _, err := range test.errs {
			b.Add(err)
		}
		err := b.Err()
		if test.want == "" {
			assert.NoError(t, err)
			continue
		}
		require.Error(t, err)
		assert.Equal(t, test.want, err.Error())
	}
}

func TestBuilderConcurrent(t *testing.T) {
	const N = 100
	b := NewBuilder(5)
	var wg sync.WaitGroup
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Add(fmt.Errorf("upload-%d", i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, N, b.Len())
	var multi *Error
	require.True(t, goerrors.As(b.Err(), &multi))
	assert.Len(t, multi.Errs, 5)
	assert.Equal(t, N-5, multi.Dropped)
}

func TestUnwrap(t *testing.T) {
	err := NewBuilder(3).
		Add(errors.E(errors.CryptoFailure, "study-B/u1")).
		Add(errors.E(errors.MalformedContainer, "study-A/u2")).
		Err()
	var e *errors.Error
	require.True(t, goerrors.As(err, &e))
	assert.Equal(t, errors.CryptoFailure, e.Kind)
	assert.True(t, goerrors.Is(err, e))
}

func TestNilBuilder(t *testing.T) {
	var b *Builder
	assert.Nil(t, b.Add(goerrors.New("x")))
	assert.NoError(t, b.Err())
	assert.Equal(t, 0, b.Len())
}
