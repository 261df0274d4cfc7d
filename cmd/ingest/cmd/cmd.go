// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package cmd implements the subcommands of the ingest tool.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/retry"
	"github.com/grailbio/ingest/tenantkey"
	"github.com/grailbio/ingest/uploadarchive"
)

// Env is the environment a subcommand runs in.
type Env struct {
	Config Config
	In     io.Reader
	Out    io.Writer

	keys *tenantkey.Cache
}

// NewEnv returns an Env with the given configuration that reads from
// stdin and writes to stdout.
func NewEnv(config Config) *Env {
	return &Env{Config: config, In: os.Stdin, Out: os.Stdout}
}

func (e *Env) retryPolicy() retry.Policy {
	if e.Config.Retries == 0 {
		return nil
	}
	return retry.MaxRetries(retry.Backoff(100*time.Millisecond, 10*time.Second, 2), e.Config.Retries)
}

// Keys returns the tenant key cache, creating it on first use.
func (e *Env) Keys() *tenantkey.Cache {
	if e.keys == nil {
		e.keys = tenantkey.NewCache(
			tenantkey.KeycryptProvider{URLTemplate: e.Config.Keys},
			tenantkey.Opts{TTL: e.Config.KeyTTL, Retry: e.retryPolicy()},
		)
	}
	return e.keys
}

// Service returns the envelope service.
func (e *Env) Service() *uploadarchive.Service {
	return uploadarchive.New(e.Keys(), e.Config.archiveOpts())
}

var commands = []struct {
	name     string
	callback func(ctx context.Context, env *Env, args []string) error
	help     string
}{
	{"genkey", GenKey, `genkey tenant... generates a self-signed certificate and key for each tenant and stores the bundle at the configured key URL.`},
	{"encrypt", Encrypt, `encrypt tenant in out encrypts file in for tenant and writes the envelope to out. Use "-" for stdin or stdout.`},
	{"decrypt", Decrypt, `decrypt tenant in out decrypts the envelope in with tenant's key and writes the plaintext to out. Use "-" for stdin or stdout.`},
	{"zip", Zip, `zip out file... packs the files into the zip container out. Entries are named by the file paths as given.`},
	{"unzip", Unzip, `unzip in dir unpacks the zip container in into directory dir.`},
	{"validate", Validate, `validate [-user id] [-workers n] tenant upload... runs the validation pipeline on each encrypted upload file and prints its outcome.`},
}

// PrintHelp prints the subcommands to stderr.
func PrintHelp() {
	fmt.Fprintln(os.Stderr, "Subcommands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "%s: %s\n", c.name, c.help)
	}
}

// Run runs the subcommand named by args[0].
func Run(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		PrintHelp()
		return errors.E(errors.Invalid, "no subcommand given")
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.callback(ctx, env, args[1:])
		}
	}
	PrintHelp()
	return errors.E(errors.Invalid, "unknown command", args[0])
}

func readInput(env *Env, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(env.In)
	}
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E("read", path, err)
	}
	return p, nil
}

func writeOutput(env *Env, path string, p []byte) error {
	if path == "-" {
		_, err := env.Out.Write(p)
		return err
	}
	if err := os.WriteFile(path, p, 0600); err != nil {
		return errors.E("write", path, err)
	}
	return nil
}
