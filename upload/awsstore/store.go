// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package awsstore persists validated upload records in DynamoDB and
// their attachments in S3.
//
// Each record is one item in the records table, keyed by its "id"
// attribute. Each attachment is one S3 object under
// <tenant>/<record id>/<attachment id>; the record maps the
// attachment's field name to its ID. Attachments are written before
// the record, so a record never references a missing attachment.
// The table and bucket are provisioned outside this package.
package awsstore

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/log"
	"github.com/grailbio/ingest/retry"
	"github.com/grailbio/ingest/upload"
)

// DefaultRetryPolicy is used for temporary AWS errors when a Store has
// no policy of its own.
var DefaultRetryPolicy = retry.MaxRetries(retry.Backoff(100*time.Millisecond, 5*time.Second, 2), 5)

// Store is an upload.Storage backed by DynamoDB and S3.
type Store struct {
	DB     dynamodbiface.DynamoDBAPI
	S3     s3iface.S3API
	Table  string
	Bucket string
	// Retry governs retries of temporary AWS errors. Nil means
	// DefaultRetryPolicy.
	Retry retry.Policy
}

var _ upload.Storage = (*Store)(nil)

// New returns a Store using clients created from sess.
func New(sess *session.Session, table, bucket string) *Store {
	return &Store{
		DB:     dynamodb.New(sess),
		S3:     s3.New(sess),
		Table:  table,
		Bucket: bucket,
	}
}

// AttachmentKey returns the S3 key of an attachment.
func AttachmentKey(tenant, recordID, attachmentID string) string {
	return path.Join(tenant, recordID, attachmentID)
}

func (s *Store) policy() retry.Policy {
	if s.Retry != nil {
		return s.Retry
	}
	return DefaultRetryPolicy
}

// Store implements upload.Storage.
func (s *Store) Store(ctx context.Context, b *upload.RecordBuilder, attachments map[string][]byte) (string, error) {
	fields := make([]string, 0, len(attachments))
	for field := range attachments {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	ids := make(map[string]string, len(fields))
	for _, field := range fields {
		ids[field] = uuid.NewString()
	}
	r, err := b.Build(ids)
	if err != nil {
		return "", err
	}
	for _, field := range fields {
		key := AttachmentKey(r.Tenant, r.ID, ids[field])
		err := retry.Do(ctx, s.policy(), func() error {
			_, err := s.S3.PutObjectWithContext(ctx, &s3.PutObjectInput{
				Bucket: aws.String(s.Bucket),
				Key:    aws.String(key),
				Body:   bytes.NewReader(attachments[field]),
				Metadata: aws.StringMap(map[string]string{
					"field":  field,
					"record": r.ID,
					"upload": r.UploadID,
				}),
			})
			return wrap(ctx, err, "awsstore: put attachment", s.Bucket, key)
		})
		if err != nil {
			return "", err
		}
		log.Debug.Printf("awsstore: stored attachment %s for record %s at s3://%s/%s", field, r.ID, s.Bucket, key)
	}
	item, err := dynamodbattribute.MarshalMap(r)
	if err != nil {
		return "", errors.E(errors.Internal, "awsstore: marshal record", r.ID, err)
	}
	err = retry.Do(ctx, s.policy(), func() error {
		_, err := s.DB.PutItemWithContext(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.Table),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		})
		return wrap(ctx, err, "awsstore: put record", s.Table, r.ID)
	})
	if err != nil {
		return "", err
	}
	log.Debug.Printf("awsstore: stored record %s for upload %s in table %s", r.ID, r.UploadID, s.Table)
	return r.ID, nil
}

// Record reads the record with the given ID.
func (s *Store) Record(ctx context.Context, id string) (upload.Record, error) {
	var out *dynamodb.GetItemOutput
	err := retry.Do(ctx, s.policy(), func() error {
		var err error
		out, err = s.DB.GetItemWithContext(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.Table),
			Key:            map[string]*dynamodb.AttributeValue{"id": {S: aws.String(id)}},
			ConsistentRead: aws.Bool(true),
		})
		return wrap(ctx, err, "awsstore: get record", s.Table, id)
	})
	if err != nil {
		return upload.Record{}, err
	}
	if len(out.Item) == 0 {
		return upload.Record{}, errors.E(errors.NotExist, "awsstore: no record", id)
	}
	var r upload.Record
	if err := dynamodbattribute.UnmarshalMap(out.Item, &r); err != nil {
		return upload.Record{}, errors.E(errors.Invalid, "awsstore: unmarshal record", id, err)
	}
	return r, nil
}

// Attachment reads the attachment stored for field of record r.
func (s *Store) Attachment(ctx context.Context, r upload.Record, field string) ([]byte, error) {
	id, ok := r.Attachments[field]
	if !ok {
		return nil, errors.E(errors.NotExist, "awsstore: record", r.ID, "has no attachment", field)
	}
	key := AttachmentKey(r.Tenant, r.ID, id)
	var p []byte
	err := retry.Do(ctx, s.policy(), func() error {
		out, err := s.S3.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return wrap(ctx, err, "awsstore: get attachment", s.Bucket, key)
		}
		defer out.Body.Close()
		p, err = io.ReadAll(out.Body)
		return wrap(ctx, err, "awsstore: read attachment", s.Bucket, key)
	})
	return p, err
}
