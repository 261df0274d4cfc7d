// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package tenantkey caches per-tenant key material. Each tenant's
// CMS encryptor is loaded lazily from a Provider the first time it is
// needed and then shared by every upload for that tenant until it
// expires or is evicted.
//
// Loads are single-flight per tenant: concurrent requests for a
// tenant whose material is being loaded wait for that load instead of
// starting their own, while different tenants load in parallel. Failed
// loads are not cached: requests that waited on a failed load receive
// its error, and the next request loads again.
package tenantkey

import (
	"context"
	"time"

	"github.com/grailbio/ingest/crypto/cms"
	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/log"
	"github.com/grailbio/ingest/retry"
	"github.com/grailbio/ingest/sync/loadingcache"
)

// Opts configures a Cache.
type Opts struct {
	// TTL is how long loaded material is kept. Zero keeps it until
	// evicted.
	TTL time.Duration
	// Retry governs retries of provider errors that are temporary
	// (see errors.IsTemporary). Nil means no retries.
	Retry retry.Policy
}

// Cache is a concurrency-safe cache of tenant key material.
type Cache struct {
	provider Provider
	opts     Opts
	values   loadingcache.Map[string, *cms.Encryptor]
}

// NewCache returns a Cache that loads missing material from provider.
func NewCache(provider Provider, opts Opts) *Cache {
	return &Cache{provider: provider, opts: opts}
}

// Get returns the key material for tenant, loading it on a miss.
// Errors have kind ValidationInput for a blank tenant and
// KeyMaterialUnavailable for any load failure; the provider's error
// is retained as the cause.
func (c *Cache) Get(ctx context.Context, tenant string) (*cms.Encryptor, error) {
	if tenant == "" {
		return nil, errors.E(errors.ValidationInput, "tenant cannot be blank")
	}
	return c.values.GetOrCreate(tenant).GetOrLoad(ctx, func(ctx context.Context, opts *loadingcache.LoadOpts) (*cms.Encryptor, error) {
		return c.load(ctx, tenant, opts)
	})
}

func (c *Cache) load(ctx context.Context, tenant string, opts *loadingcache.LoadOpts) (*cms.Encryptor, error) {
	start := time.Now()
	var enc *cms.Encryptor
	err := retry.Do(ctx, c.opts.Retry, func() error {
		var err error
		enc, err = c.provider.Load(ctx, tenant)
		return err
	})
	if err != nil {
		log.Error.Printf("tenantkey: loading key material for tenant %s: %v", tenant, err)
		return nil, errors.E(errors.KeyMaterialUnavailable, "tenantkey: load", tenant, err)
	}
	if enc == nil {
		return nil, errors.E(errors.KeyMaterialUnavailable, "tenantkey: no encryptor for tenant", tenant)
	}
	if c.opts.TTL > 0 {
		opts.CacheFor(c.opts.TTL)
	} else {
		opts.CacheForever()
	}
	log.Debug.Printf("tenantkey: loaded key material %s for tenant %s in %s", enc.ID(), tenant, time.Since(start))
	return enc, nil
}

// Evict drops tenant's cached material, so that the next Get loads it
// again. This is how rotated keys are picked up before their TTL.
func (c *Cache) Evict(tenant string) {
	c.values.Delete(tenant)
}

// EvictAll drops all cached material.
func (c *Cache) EvictAll() {
	c.values.DeleteAll()
}

// Len returns the number of tenants the cache is tracking.
func (c *Cache) Len() int {
	return c.values.Len()
}
