// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package tenantkey

import (
	"context"
	"net/url"
	"strings"

	"github.com/grailbio/ingest/crypto/cms"
	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/security/keycrypt"
)

// TenantPlaceholder is replaced by the (path-escaped) tenant
// identifier in KeycryptProvider URL templates.
const TenantPlaceholder = "{tenant}"

// Provider loads a tenant's key material from wherever it is kept.
// Implementations must be safe for concurrent use. Load must not
// return a nil Encryptor without an error.
type Provider interface {
	Load(ctx context.Context, tenant string) (*cms.Encryptor, error)
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context, tenant string) (*cms.Encryptor, error)

// Load implements Provider.
func (f ProviderFunc) Load(ctx context.Context, tenant string) (*cms.Encryptor, error) {
	return f(ctx, tenant)
}

// StaticProvider serves key material from a fixed map.
type StaticProvider map[string]*cms.Encryptor

// Load implements Provider.
func (p StaticProvider) Load(_ context.Context, tenant string) (*cms.Encryptor, error) {
	enc, ok := p[tenant]
	if !ok {
		return nil, errors.E(errors.NotExist, "no key material for tenant", tenant)
	}
	return enc, nil
}

// KeycryptProvider reads PEM key bundles from keycrypt. URLTemplate
// is a keycrypt URL containing TenantPlaceholder, for example
// "kms://ingest/tenants/{tenant}.pem" or
// "file:///etc/ingest/keys/{tenant}.pem".
type KeycryptProvider struct {
	URLTemplate string
}

// URL returns the keycrypt URL of tenant's key bundle.
func (p KeycryptProvider) URL(tenant string) string {
	return strings.ReplaceAll(p.URLTemplate, TenantPlaceholder, url.PathEscape(tenant))
}

// Load implements Provider. A missing bundle is a configuration error
// reported with kind NotExist; a bundle that does not parse has kind
// Invalid.
func (p KeycryptProvider) Load(ctx context.Context, tenant string) (*cms.Encryptor, error) {
	if !strings.Contains(p.URLTemplate, TenantPlaceholder) {
		return nil, errors.E(errors.Invalid, "tenantkey: url template", p.URLTemplate, "does not contain", TenantPlaceholder)
	}
	u := p.URL(tenant)
	bundle, err := keycrypt.Get(ctx, u)
	if err != nil {
		return nil, errors.E("tenantkey: fetch", u, err)
	}
	enc, err := cms.ParsePEM(bundle)
	if err != nil {
		return nil, errors.E("tenantkey: parse", u, err)
	}
	return enc, nil
}
