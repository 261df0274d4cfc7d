// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package kms implements a Keycrypt using AWS's KMS service and S3.
// Tenant key bundles are stored using the AWS-provided s3crypto
// package, which uses a KMS data key to perform client-side
// encryption and decryption of each bundle.
//
// Importing the package registers the "kms" scheme. The URL
// kms://ingest/tenants/study-A.pem names the object
// v1/tenants/study-A.pem in bucket "ingest-keycrypt-ingest", sealed
// under the KMS key alias "alias/ingest".
//
// Access to the bucket and the KMS key is controlled by IAM policies.
package kms

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3crypto"
	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/security/keycrypt"
)

const (
	// The prefix used for S3 object keys. This is defined so that
	// we can support future layouts.
	prefix = "v1/"
)

// DefaultRegion is the AWS region used by the registered "kms" scheme.
var DefaultRegion = "us-west-2"

func init() {
	keycrypt.RegisterFunc("kms", func(h string) keycrypt.Keycrypt {
		sess := session.Must(session.NewSession(&aws.Config{
			Region: aws.String(DefaultRegion),
		}))
		return New(sess, h)
	})
}

var _ keycrypt.Keycrypt = (*Crypt)(nil)

// Crypt implements a Keycrypt using Amazon's KMS and S3 services.
type Crypt struct {
	sess    *session.Session
	handler s3crypto.CipherDataGenerator
	bucket  string
}

// New creates a Keycrypt which stores secrets in the bucket
// ingest-keycrypt-<id>, sealed with the KMS key alias/<id>.
func New(sess *session.Session, id string) *Crypt {
	return &Crypt{
		sess:    sess,
		handler: s3crypto.NewKMSKeyGenerator(kms.New(sess), fmt.Sprintf("alias/%s", id)),
		bucket:  fmt.Sprintf("ingest-keycrypt-%s", id),
	}
}

// Lookup implements keycrypt.Keycrypt.
func (c *Crypt) Lookup(name string) keycrypt.Secret {
	return &secret{c, name}
}

type secret struct {
	*Crypt
	name string
}

func (s *secret) Get(ctx context.Context) ([]byte, error) {
	svc := s3crypto.NewDecryptionClient(s.sess)
	key := path.Join(prefix, s.name)
	resp, err := svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, keycrypt.ErrNoSuchSecret
		}
		return nil, errors.E(errors.Unavailable, errors.Temporary, "keycrypt/kms: get", s.bucket, key, err)
	}
	defer resp.Body.Close()
	p, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.E(errors.Unavailable, errors.Temporary, "keycrypt/kms: read", s.bucket, key, err)
	}
	return p, nil
}

func (s *secret) Put(ctx context.Context, p []byte) error {
	svc := s3crypto.NewEncryptionClient(s.sess, s3crypto.AESGCMContentCipherBuilder(s.handler))
	key := path.Join(prefix, s.name)
	_, err := svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Body:   bytes.NewReader(p),
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.E(errors.Unavailable, "keycrypt/kms: put", s.bucket, key, err)
	}
	return nil
}
