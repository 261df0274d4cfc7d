// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package uploadarchive encrypts and decrypts upload payloads under
// each tenant's key material, and packs and unpacks the zip
// containers carried inside them.
//
// Each tenant's payloads are sealed for that tenant's certificate
// only: a payload encrypted for one tenant cannot be decrypted with
// another tenant's material.
package uploadarchive

import (
	"context"

	"github.com/grailbio/ingest/archive"
	"github.com/grailbio/ingest/crypto/cms"
	"github.com/grailbio/ingest/errors"
)

// KeySource returns the key material for a tenant. It is satisfied
// by *tenantkey.Cache.
type KeySource interface {
	Get(ctx context.Context, tenant string) (*cms.Encryptor, error)
}

// Service is the envelope service. It is safe for concurrent use.
type Service struct {
	keys    KeySource
	archive archive.Opts
}

// New returns a Service that looks up key material in keys. The
// optional archive options apply to Zip and Unzip.
func New(keys KeySource, opts ...archive.Opts) *Service {
	s := &Service{keys: keys, archive: archive.DefaultOpts}
	if len(opts) > 0 {
		s.archive = opts[0]
	}
	return s
}

// Encrypt seals plaintext for tenant.
func (s *Service) Encrypt(ctx context.Context, tenant string, plaintext []byte) ([]byte, error) {
	enc, err := s.encryptor(ctx, tenant, plaintext)
	if err != nil {
		return nil, err
	}
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		return nil, errors.E(errors.CryptoFailure, "uploadarchive: encrypt for tenant", tenant, err)
	}
	return ciphertext, nil
}

// Decrypt opens ciphertext that was sealed for tenant. Failures of the
// envelope itself have kind errors.CryptoFailure; the retained cause
// has kind errors.Integrity when the payload was not sealed for this
// tenant and errors.Invalid when it is not a well-formed envelope.
func (s *Service) Decrypt(ctx context.Context, tenant string, ciphertext []byte) ([]byte, error) {
	enc, err := s.encryptor(ctx, tenant, ciphertext)
	if err != nil {
		return nil, err
	}
	plaintext, err := enc.Decrypt(ciphertext)
	if err != nil {
		return nil, errors.E(errors.CryptoFailure, "uploadarchive: decrypt for tenant", tenant, err)
	}
	return plaintext, nil
}

func (s *Service) encryptor(ctx context.Context, tenant string, payload []byte) (*cms.Encryptor, error) {
	if tenant == "" {
		return nil, errors.E(errors.ValidationInput, "tenant cannot be blank")
	}
	if payload == nil {
		return nil, errors.E(errors.ValidationInput, "bytes cannot be null")
	}
	enc, err := s.keys.Get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, errors.E(errors.KeyMaterialUnavailable, "no encryptor for tenant", tenant)
	}
	return enc, nil
}

// Zip packs entries into a zip container; see archive.Zip.
func (s *Service) Zip(entries map[string][]byte) ([]byte, error) {
	return archive.Zip(entries, s.archive)
}

// Unzip unpacks a zip container; see archive.Unzip.
func (s *Service) Unzip(data []byte) (map[string][]byte, error) {
	return archive.Unzip(data, s.archive)
}
