// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package file implements a file-based keycrypt. Importing it
// registers the "file" scheme: file:///etc/ingest/keys/study-A.pem
// names the file /etc/ingest/keys/study-A.pem.
package file

import (
	"context"
	"os"
	"path/filepath"

	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/security/keycrypt"
)

func init() {
	keycrypt.RegisterFunc("file", func(string) keycrypt.Keycrypt {
		return New("/")
	})
}

// New returns a Keycrypt that stores secrets as files under dir.
func New(dir string) keycrypt.Keycrypt {
	return &crypt{dir}
}

type crypt struct{ path string }

func (c *crypt) Lookup(name string) keycrypt.Secret {
	return fileSecret(filepath.Join(c.path, name))
}

type fileSecret string

func (f fileSecret) Get(context.Context) ([]byte, error) {
	p, err := os.ReadFile(string(f))
	if os.IsNotExist(err) {
		return nil, keycrypt.ErrNoSuchSecret
	}
	if err != nil {
		return nil, errors.E("keycrypt/file: read", string(f), err)
	}
	return p, nil
}

// Put writes the secret atomically, readable only by its owner.
func (f fileSecret) Put(_ context.Context, b []byte) (err error) {
	dir := filepath.Dir(string(f))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.E("keycrypt/file: mkdir", dir, err)
	}
	tmpfile, err := os.CreateTemp(dir, ".keycrypt-*")
	if err != nil {
		return errors.E("keycrypt/file: create", dir, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmpfile.Name())
		}
	}()
	if err := tmpfile.Chmod(0600); err != nil {
		_ = tmpfile.Close()
		return errors.E("keycrypt/file: chmod", tmpfile.Name(), err)
	}
	if _, err := tmpfile.Write(b); err != nil {
		_ = tmpfile.Close()
		return errors.E("keycrypt/file: write", tmpfile.Name(), err)
	}
	if err := tmpfile.Close(); err != nil {
		return errors.E("keycrypt/file: close", tmpfile.Name(), err)
	}
	return os.Rename(tmpfile.Name(), string(f))
}
