// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package uploadarchive_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/ingest/crypto/cms"
	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/tenantkey"
	"github.com/grailbio/ingest/uploadarchive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keysOnce sync.Once
	keys     tenantkey.StaticProvider
	keysErr  error
)

func newService(t *testing.T) *uploadarchive.Service {
	keysOnce.Do(func() {
		keys = make(tenantkey.StaticProvider)
		for _, tenant := range []string{"study-A", "study-B"} {
			var enc *cms.Encryptor
			if enc, keysErr = cms.GenerateSelfSigned(tenant, time.Hour); keysErr != nil {
				return
			}
			keys[tenant] = enc
		}
	})
	require.NoError(t, keysErr)
	return uploadarchive.New(tenantkey.NewCache(keys, tenantkey.Opts{}))
}

func TestRoundTrip(t *testing.T) {
	var (
		ctx = context.Background()
		s   = newService(t)
		fz  = fuzz.New().NilChance(0).NumElements(0, 4096)
	)
	for i := 0; i < 10; i++ {
		var plaintext []byte
		fz.Fuzz(&plaintext)
		for _, tenant := range []string{"study-A", "study-B"} {
			ciphertext, err := s.Encrypt(ctx, tenant, plaintext)
			require.NoError(t, err)
			got, err := s.Decrypt(ctx, tenant, ciphertext)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(plaintext, got))
		}
	}
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	ciphertext, err := s.Encrypt(ctx, "study-A", []byte("participant data"))
	require.NoError(t, err)
	_, err = s.Decrypt(ctx, "study-B", ciphertext)
	require.Error(t, err)
	assert.True(t, errors.Is(errors.CryptoFailure, err), "got %v", err)
	assert.True(t, errors.Caused(errors.Integrity, err), "got %v", err)
}

func TestMalformedCiphertext(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	_, err := s.Decrypt(ctx, "study-A", []byte("definitely not CMS"))
	require.Error(t, err)
	assert.True(t, errors.Is(errors.CryptoFailure, err), "got %v", err)
	assert.True(t, errors.Caused(errors.Invalid, err), "got %v", err)
	assert.False(t, errors.Caused(errors.Integrity, err), "got %v", err)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	for _, c := range []struct {
		tenant  string
		payload []byte
		message string
	}{
		{"", []byte("x"), "tenant cannot be blank"},
		{"", nil, "tenant cannot be blank"},
		{"study-A", nil, "bytes cannot be null"},
	} {
		_, err := s.Encrypt(ctx, c.tenant, c.payload)
		assert.True(t, errors.Match(errors.E(errors.ValidationInput, c.message), err), "encrypt: got %v", err)
		_, err = s.Decrypt(ctx, c.tenant, c.payload)
		assert.True(t, errors.Match(errors.E(errors.ValidationInput, c.message), err), "decrypt: got %v", err)
	}
}

func TestUnknownTenant(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	_, err := s.Encrypt(ctx, "study-Z", []byte("x"))
	assert.True(t, errors.Is(errors.KeyMaterialUnavailable, err), "got %v", err)
	_, err = s.Decrypt(ctx, "study-Z", []byte("x"))
	assert.True(t, errors.Is(errors.KeyMaterialUnavailable, err), "got %v", err)
}

func TestNilKeySource(t *testing.T) {
	s := uploadarchive.New(nilKeys{})
	_, err := s.Encrypt(context.Background(), "study-A", []byte("x"))
	assert.True(t, errors.Is(errors.KeyMaterialUnavailable, err), "got %v", err)
}

type nilKeys struct{}

func (nilKeys) Get(context.Context, string) (*cms.Encryptor, error) { return nil, nil }

// TestStudyAScenario zips and encrypts a two-file package for study-A
// and checks that decrypting and unzipping reproduces it exactly.
func TestStudyAScenario(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	entries := map[string][]byte{
		"file1.json": []byte(`{"a":1}`),
		"file2.bin":  {0xDE, 0xAD},
	}
	zipped, err := s.Zip(entries)
	require.NoError(t, err)
	ciphertext, err := s.Encrypt(ctx, "study-A", zipped)
	require.NoError(t, err)

	plaintext, err := s.Decrypt(ctx, "study-A", ciphertext)
	require.NoError(t, err)
	got, err := s.Unzip(plaintext)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}
