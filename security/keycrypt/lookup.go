// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package keycrypt

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/grailbio/ingest/errors"
)

var (
	mu        sync.Mutex
	resolvers = map[string]Resolver{}
	mems      = map[string]*Mem{}
)

func init() {
	RegisterFunc("mem", func(host string) Keycrypt {
		mu.Lock()
		defer mu.Unlock()
		m := mems[host]
		if m == nil {
			m = new(Mem)
			mems[host] = m
		}
		return m
	})
}

// Register associates a Resolver with a scheme.
func Register(scheme string, resolver Resolver) {
	mu.Lock()
	resolvers[scheme] = resolver
	mu.Unlock()
}

// RegisterFunc associates a Resolver (given by a func)
// with a scheme.
func RegisterFunc(scheme string, f func(string) Keycrypt) {
	Register(scheme, ResolverFunc(f))
}

// For testing.
func unregister(scheme string) {
	mu.Lock()
	delete(resolvers, scheme)
	mu.Unlock()
}

// Lookup retrieves a secret based on a URL, in the standard form:
// scheme://host/path. The URL is interpreted according to the
// Resolver registered with the given scheme.
func Lookup(rawurl string) (Secret, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, errors.E(errors.Invalid, "keycrypt: parse url", err)
	}
	mu.Lock()
	r := resolvers[u.Scheme]
	mu.Unlock()
	if r == nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("keycrypt: unknown scheme %q", u.Scheme))
	}
	name := u.Path
	if name != "" && name[0] == '/' {
		name = name[1:]
	}
	return r.Resolve(u.Host).Lookup(name), nil
}

// Get reads data from a keycrypt URL.
func Get(ctx context.Context, rawurl string) ([]byte, error) {
	s, err := Lookup(rawurl)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx)
}

// Put writes data to a keycrypt URL.
func Put(ctx context.Context, rawurl string, data []byte) error {
	s, err := Lookup(rawurl)
	if err != nil {
		return err
	}
	return s.Put(ctx, data)
}
