// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package keycrypt implements an API for storing and retrieving
// opaque blobs of data, such as tenant key bundles, in a secure
// fashion. Keycrypt multiplexes several backends selected by URL
// scheme: "file" for local files, "mem" for process memory, and "kms"
// for S3 objects sealed with AWS KMS data keys.
package keycrypt

import (
	"context"
	"sync"

	"github.com/grailbio/ingest/errors"
)

// ErrNoSuchSecret is returned by Secret.Get when the secret has never
// been written. It has kind errors.NotExist.
var ErrNoSuchSecret = errors.E(errors.NotExist, "no such secret")

// Secret represents a single object. Secret objects are
// uninterpreted bytes that are stored securely.
type Secret interface {
	// Get retrieves the current value of this secret. If the secret does
	// not exist, Get returns ErrNoSuchSecret.
	Get(ctx context.Context) ([]byte, error)
	// Put writes a new value for this secret.
	Put(ctx context.Context, p []byte) error
}

// Keycrypt represents a secure secret storage.
type Keycrypt interface {
	// Lookup looks up the named secret. A secret is returned even if it
	// does not yet exist. In this case, Secret.Get will return
	// ErrNoSuchSecret.
	Lookup(name string) Secret
}

// Resolver returns the Keycrypt for a URL host.
type Resolver interface {
	Resolve(host string) Keycrypt
}

type funcResolver func(string) Keycrypt

func (f funcResolver) Resolve(host string) Keycrypt { return f(host) }

// ResolverFunc adapts a function to a Resolver.
func ResolverFunc(f func(string) Keycrypt) Resolver { return funcResolver(f) }

// Static returns a read-only Secret with the given value.
func Static(b []byte) Secret { return static(b) }

type static []byte

func (s static) Get(context.Context) ([]byte, error) { return []byte(s), nil }
func (s static) Put(context.Context, []byte) error {
	return errors.E(errors.Invalid, "keycrypt: static secrets are read-only")
}

// Mem is an in-memory Keycrypt. Each Mem is a separate namespace.
// The "mem" scheme resolves each host to its own Mem, so that
// mem://tests/study-A.pem names the secret "study-A.pem" in the
// namespace "tests" for the life of the process.
type Mem struct {
	mu      sync.Mutex
	secrets map[string][]byte
}

// Lookup implements Keycrypt.
func (m *Mem) Lookup(name string) Secret {
	return memSecret{m, name}
}

type memSecret struct {
	m    *Mem
	name string
}

func (s memSecret) Get(context.Context) ([]byte, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	p, ok := s.m.secrets[s.name]
	if !ok {
		return nil, ErrNoSuchSecret
	}
	return append([]byte(nil), p...), nil
}

func (s memSecret) Put(_ context.Context, p []byte) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.secrets == nil {
		s.m.secrets = make(map[string][]byte)
	}
	s.m.secrets[s.name] = append([]byte(nil), p...)
	return nil
}
