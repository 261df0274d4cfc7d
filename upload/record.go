// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package upload

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grailbio/ingest/errors"
)

// Record is a validated upload as it is persisted. Attachments are
// stored separately and referenced by ID.
type Record struct {
	ID           string                     `json:"id" dynamodbav:"id"`
	Tenant       string                     `json:"tenant" dynamodbav:"tenant"`
	UploadID     string                     `json:"uploadId" dynamodbav:"uploadId"`
	UserID       string                     `json:"userId" dynamodbav:"userId"`
	ExternalID   string                     `json:"externalId,omitempty" dynamodbav:"externalId,omitempty"`
	SharingScope string                     `json:"sharingScope,omitempty" dynamodbav:"sharingScope,omitempty"`
	Schema       string                     `json:"schema,omitempty" dynamodbav:"schema,omitempty"`
	CreatedOn    time.Time                  `json:"createdOn" dynamodbav:"createdOn"`
	UploadedOn   time.Time                  `json:"uploadedOn" dynamodbav:"uploadedOn"`
	Metadata     json.RawMessage            `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	Data         map[string]json.RawMessage `json:"data" dynamodbav:"data"`
	// Attachments maps record field names to attachment IDs.
	Attachments map[string]string `json:"attachments,omitempty" dynamodbav:"attachments,omitempty"`
}

// RecordBuilder accumulates a Record over the course of a validation
// run. TransformStage creates it from the parsed upload and the
// participant's consent attributes; storage finalizes it with Build.
type RecordBuilder struct {
	Tenant       string
	UploadID     string
	UserID       string
	ExternalID   string
	SharingScope string
	Schema       string
	CreatedOn    time.Time
	UploadedOn   time.Time
	Metadata     json.RawMessage

	data map[string]json.RawMessage
}

// SetData sets the data field with the given name.
func (b *RecordBuilder) SetData(field string, value json.RawMessage) {
	if b.data == nil {
		b.data = make(map[string]json.RawMessage)
	}
	b.data[field] = value
}

// Data returns the value of a data field, and whether it is set.
func (b *RecordBuilder) Data(field string) (json.RawMessage, bool) {
	v, ok := b.data[field]
	return v, ok
}

// Fields returns the names of the data fields, sorted.
func (b *RecordBuilder) Fields() []string {
	fields := make([]string, 0, len(b.data))
	for f := range b.data {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Build returns the record with a newly assigned ID, referencing the
// given attachment IDs. It fails if the record has no tenant, upload,
// or user.
func (b *RecordBuilder) Build(attachments map[string]string) (Record, error) {
	switch {
	case b.Tenant == "":
		return Record{}, errors.E(errors.Invalid, "record has no tenant")
	case b.UploadID == "":
		return Record{}, errors.E(errors.Invalid, "record has no upload ID")
	case b.UserID == "":
		return Record{}, errors.E(errors.Invalid, "record has no user ID")
	}
	r := Record{
		ID:           uuid.NewString(),
		Tenant:       b.Tenant,
		UploadID:     b.UploadID,
		UserID:       b.UserID,
		ExternalID:   b.ExternalID,
		SharingScope: b.SharingScope,
		Schema:       b.Schema,
		CreatedOn:    b.CreatedOn,
		UploadedOn:   b.UploadedOn,
		Metadata:     b.Metadata,
		Data:         make(map[string]json.RawMessage, len(b.data)),
	}
	for k, v := range b.data {
		r.Data[k] = v
	}
	if len(attachments) > 0 {
		r.Attachments = make(map[string]string, len(attachments))
		for k, v := range attachments {
			r.Attachments[k] = v
		}
	}
	return r, nil
}

// FieldName returns the record field name for an upload file name.
// Dots are not allowed in field names and are replaced with
// underscores: "audio.m4a" becomes "audio_m4a".
func FieldName(filename string) string {
	return strings.ReplaceAll(filename, ".", "_")
}
