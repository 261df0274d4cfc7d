// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/log"
	"github.com/grailbio/ingest/upload"
	"github.com/grailbio/ingest/upload/awsstore"
)

// Storage returns the configured record storage: an awsstore.Store if
// a table is configured, and in-memory storage otherwise.
func (e *Env) Storage() (upload.Storage, error) {
	if e.Config.Store.Table == "" {
		return new(upload.MemStorage), nil
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(e.Config.Store.Region)})
	if err != nil {
		return nil, errors.E(errors.Unavailable, "aws session", err)
	}
	s := awsstore.New(sess, e.Config.Store.Table, e.Config.Store.Bucket)
	s.Retry = e.retryPolicy()
	return s, nil
}

// Validate runs the validation pipeline on encrypted upload files.
// Each file is one upload, identified by its base name. It prints one
// line per upload followed by its messages, and fails if any upload
// failed.
func Validate(ctx context.Context, env *Env, args []string) error {
	flags := flag.NewFlagSet("validate", flag.ContinueOnError)
	user := flags.String("user", "cli", "ID of the participant who submitted the uploads")
	workers := flags.Int("workers", env.Config.Parallelism, "number of uploads validated at once")
	if err := flags.Parse(args); err != nil {
		return errors.E(errors.Invalid, err)
	}
	if flags.NArg() < 2 {
		return errors.E(errors.Invalid, "validate requires a tenant and at least one upload")
	}
	tenant, paths := flags.Arg(0), flags.Args()[1:]
	storage, err := env.Storage()
	if err != nil {
		return err
	}
	svc := env.Service()
	task := upload.NewTask(upload.DefaultStages(svc, svc, storage, upload.LogReporter{})...)
	reqs := make([]upload.Request, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.E("validate", path, err)
		}
		var uploadedOn time.Time
		if info, err := os.Stat(path); err == nil {
			uploadedOn = info.ModTime().UTC()
		}
		reqs[i] = upload.Request{
			Tenant: tenant,
			User:   upload.UserRef{ID: *user},
			Upload: upload.Upload{ID: filepath.Base(path), Name: path, UploadedOn: uploadedOn},
			Data:   data,
		}
	}
	pool := upload.NewPool(task, upload.PoolOpts{
		Parallelism: *workers,
		Progress:    upload.NewLogProgress("validate", log.Debug),
	})
	outcomes := pool.ValidateAll(ctx, reqs)
	for _, o := range outcomes {
		fmt.Fprintf(env.Out, "%s\t%s\t%s\n", o.UploadID, o.State, o.RecordID)
		for _, m := range o.Messages {
			fmt.Fprintf(env.Out, "\t%s\n", m)
		}
	}
	return upload.Failures(outcomes)
}
