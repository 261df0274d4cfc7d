// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package tenantkey_test

import (
	"context"
	"testing"

	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/security/keycrypt"
	"github.com/grailbio/ingest/tenantkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeycryptProvider(t *testing.T) {
	ctx := context.Background()
	enc := testKeys(t)["study-A"]
	bundle, err := enc.EncodePEM()
	require.NoError(t, err)
	require.NoError(t, keycrypt.Put(ctx, "mem://tenantkey-test/study-A.pem", bundle))
	require.NoError(t, keycrypt.Put(ctx, "mem://tenantkey-test/broken.pem", []byte("not pem")))

	p := tenantkey.KeycryptProvider{URLTemplate: "mem://tenantkey-test/{tenant}.pem"}
	assert.Equal(t, "mem://tenantkey-test/a%2Fb.pem", p.URL("a/b"))

	got, err := p.Load(ctx, "study-A")
	require.NoError(t, err)
	assert.Equal(t, enc.ID(), got.ID())

	_, err = p.Load(ctx, "study-B")
	assert.True(t, errors.Is(errors.NotExist, err), "got %v", err)

	_, err = p.Load(ctx, "broken")
	assert.True(t, errors.Is(errors.Invalid, err), "got %v", err)

	_, err = tenantkey.KeycryptProvider{URLTemplate: "mem://tenantkey-test/fixed.pem"}.Load(ctx, "study-A")
	assert.True(t, errors.Is(errors.Invalid, err), "got %v", err)
}
