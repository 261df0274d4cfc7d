// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/ingest/crypto/cms"
	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/security/keycrypt"
	"github.com/grailbio/ingest/tenantkey"
)

// certValidity is the lifetime of certificates made by genkey.
const certValidity = 5 * 365 * 24 * time.Hour

// GenKey generates key material for each tenant named in args and
// stores it at the configured key URL.
func GenKey(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		return errors.E(errors.Invalid, "genkey requires at least one tenant")
	}
	provider := tenantkey.KeycryptProvider{URLTemplate: env.Config.Keys}
	for _, tenant := range args {
		if tenant == "" {
			return errors.E(errors.ValidationInput, "tenant cannot be blank")
		}
		enc, err := cms.GenerateSelfSigned(tenant, certValidity)
		if err != nil {
			return errors.E("genkey", tenant, err)
		}
		bundle, err := enc.EncodePEM()
		if err != nil {
			return errors.E("genkey", tenant, err)
		}
		url := provider.URL(tenant)
		if err := keycrypt.Put(ctx, url, bundle); err != nil {
			return errors.E("genkey: store", url, err)
		}
		fmt.Fprintf(env.Out, "%s\t%s\t%s\n", tenant, enc.ID(), url)
	}
	return nil
}

// Encrypt encrypts a file for a tenant.
func Encrypt(ctx context.Context, env *Env, args []string) error {
	return crypt(ctx, env, "encrypt", args, env.Service().Encrypt)
}

// Decrypt decrypts a tenant's envelope.
func Decrypt(ctx context.Context, env *Env, args []string) error {
	return crypt(ctx, env, "decrypt", args, env.Service().Decrypt)
}

func crypt(ctx context.Context, env *Env, name string, args []string, fn func(context.Context, string, []byte) ([]byte, error)) error {
	if len(args) != 3 {
		return errors.E(errors.Invalid, name, "requires tenant, input and output")
	}
	in, err := readInput(env, args[1])
	if err != nil {
		return err
	}
	out, err := fn(ctx, args[0], in)
	if err != nil {
		return err
	}
	return writeOutput(env, args[2], out)
}
