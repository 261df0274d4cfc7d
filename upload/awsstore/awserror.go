// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package awsstore

import (
	"context"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/grailbio/ingest/errors"
)

// wrap converts an AWS API error into an *errors.Error whose kind and
// severity are given by kindAndSeverity. The context's error takes
// precedence, because the SDK sometimes wraps cancellations.
func wrap(ctx context.Context, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	kind, severity := kindAndSeverity(err)
	return errors.E(append(args, kind, severity, err)...)
}

// kindAndSeverity interprets an S3 or DynamoDB API error.
func kindAndSeverity(err error) (errors.Kind, errors.Severity) {
	switch err {
	case context.Canceled:
		return errors.Canceled, errors.Fatal
	case context.DeadlineExceeded:
		return errors.Timeout, errors.Fatal
	}
	for {
		if request.IsErrorThrottle(err) {
			return errors.Unavailable, errors.Temporary
		}
		if request.IsErrorRetryable(err) {
			return errors.Unavailable, errors.Temporary
		}
		aerr, ok := err.(awserr.Error)
		if !ok {
			break
		}
		switch aerr.Code() {
		case request.CanceledErrorCode:
			return errors.Canceled, errors.Fatal
		case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "NotFound",
			dynamodb.ErrCodeResourceNotFoundException:
			return errors.NotExist, errors.Fatal
		case "AccessDenied", "AccessDeniedException":
			return errors.Precondition, errors.Fatal
		case dynamodb.ErrCodeConditionalCheckFailedException, "PreconditionFailed":
			return errors.Precondition, errors.Fatal
		case "InvalidRequest", "InvalidArgument", "EntityTooLarge", "KeyTooLong",
			"ValidationException", dynamodb.ErrCodeItemCollectionSizeLimitExceededException:
			return errors.Invalid, errors.Fatal
		case "SlowDown", dynamodb.ErrCodeProvisionedThroughputExceededException,
			dynamodb.ErrCodeRequestLimitExceeded, "ServiceUnavailable":
			return errors.Unavailable, errors.Temporary
		case "InternalError", dynamodb.ErrCodeInternalServerError:
			return errors.Unavailable, errors.Retriable
		// RequestErrors and SerializationErrors caused by "connection reset"
		// are not reported retryable by the SDK.
		case request.ErrCodeRequestError, request.ErrCodeSerialization:
			return errors.Unavailable, errors.Temporary
		}
		if aerr.OrigErr() == nil {
			break
		}
		err = aerr.OrigErr()
	}
	return errors.Unavailable, errors.Unknown
}
