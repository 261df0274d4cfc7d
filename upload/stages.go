// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/log"
)

// Decrypter opens a tenant's encrypted payload. It is satisfied by
// *uploadarchive.Service.
type Decrypter interface {
	Decrypt(ctx context.Context, tenant string, ciphertext []byte) ([]byte, error)
}

// Unzipper unpacks a zip container. It is satisfied by
// *uploadarchive.Service.
type Unzipper interface {
	Unzip(data []byte) (map[string][]byte, error)
}

// Stage names, in the order of DefaultStages.
const (
	DecryptStageName   = "decrypt"
	UnzipStageName     = "unzip"
	ParseJSONStageName = "parse-json"
	TransformStageName = "transform"
	PersistStageName   = "persist"
	ReportStageName    = "report"
)

// InfoFile is the name of the upload's metadata entry.
const InfoFile = "info.json"

// DefaultStages returns the validation stages in their fixed order.
// The order is part of the pipeline's contract: each stage depends on
// the fields written by the ones before it.
func DefaultStages(d Decrypter, u Unzipper, s Storage, r Reporter) []Stage {
	return []Stage{
		&DecryptStage{Decrypter: d},
		&UnzipStage{Unzipper: u},
		&ParseJSONStage{},
		&TransformStage{},
		&PersistStage{Storage: s},
		&ReportStage{Reporter: r},
	}
}

// DecryptStage decrypts Data into DecryptedData using the tenant's key
// material.
type DecryptStage struct {
	Decrypter Decrypter
}

func (*DecryptStage) Name() string           { return DecryptStageName }
func (*DecryptStage) Requires() Precondition { return RequireSuccess }

func (s *DecryptStage) Run(ctx context.Context, c *Context) Result {
	if c.Data == nil {
		return Failf("upload has no data")
	}
	p, err := s.Decrypter.Decrypt(ctx, c.Tenant, c.Data)
	if err != nil {
		return Fail(err)
	}
	c.DecryptedData = p
	return Continue()
}

// UnzipStage unpacks DecryptedData into UnzippedData.
type UnzipStage struct {
	Unzipper Unzipper
}

func (*UnzipStage) Name() string           { return UnzipStageName }
func (*UnzipStage) Requires() Precondition { return RequireSuccess }

func (s *UnzipStage) Run(_ context.Context, c *Context) Result {
	entries, err := s.Unzipper.Unzip(c.DecryptedData)
	if err != nil {
		return Fail(err)
	}
	c.UnzippedData = entries
	return Continue()
}

// ParseJSONStage moves every entry of UnzippedData that holds a JSON
// object or array into JSONData. Other entries, including ".json"
// files that fail to parse or hold a bare scalar, stay in UnzippedData
// and become attachments.
type ParseJSONStage struct{}

func (*ParseJSONStage) Name() string           { return ParseJSONStageName }
func (*ParseJSONStage) Requires() Precondition { return RequireSuccess }

func (*ParseJSONStage) Run(_ context.Context, c *Context) Result {
	c.JSONData = make(map[string]json.RawMessage)
	var messages []string
	for name, data := range c.UnzippedData {
		if !isStructuredJSON(data) {
			if strings.HasSuffix(name, ".json") {
				messages = append(messages, "parse-json: "+name+" is not a JSON object or array; keeping it as an attachment")
			}
			continue
		}
		c.JSONData[name] = json.RawMessage(data)
		delete(c.UnzippedData, name)
	}
	return Continue(messages...)
}

func isStructuredJSON(p []byte) bool {
	p = bytes.TrimSpace(p)
	if len(p) == 0 || (p[0] != '{' && p[0] != '[') {
		return false
	}
	return json.Valid(p)
}

// TransformStage builds the Record and the Attachments from the parsed
// upload. The metadata entry (InfoFile) supplies the record's metadata
// and schema name; every other JSON entry becomes a data field, and
// every remaining raw entry becomes an attachment. Field names are
// derived from file names by FieldName. The participant's consent
// attributes are copied from User.
type TransformStage struct {
	// Now returns the record creation time. It defaults to time.Now.
	Now func() time.Time
}

func (*TransformStage) Name() string           { return TransformStageName }
func (*TransformStage) Requires() Precondition { return RequireSuccess }

func (s *TransformStage) Run(_ context.Context, c *Context) Result {
	if len(c.JSONData) == 0 && len(c.UnzippedData) == 0 {
		return Failf("upload contains no data")
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	b := &RecordBuilder{
		Tenant:       c.Tenant,
		UploadID:     c.Upload.ID,
		UserID:       c.User.ID,
		ExternalID:   c.User.ExternalID,
		SharingScope: c.User.SharingScope,
		CreatedOn:    now().UTC(),
		UploadedOn:   c.Upload.UploadedOn,
	}
	for name, data := range c.JSONData {
		if name == InfoFile {
			continue
		}
		field := FieldName(name)
		if _, ok := b.Data(field); ok {
			return Failf("more than one file maps to data field %s", field)
		}
		b.SetData(field, data)
	}
	if info, ok := c.JSONData[InfoFile]; ok {
		var meta struct {
			Item   string `json:"item"`
			Schema string `json:"schema"`
		}
		if err := json.Unmarshal(info, &meta); err != nil {
			return Failf("%s: %v", InfoFile, err)
		}
		b.Metadata = info
		b.Schema = meta.Schema
		if b.Schema == "" {
			b.Schema = meta.Item
		}
	}
	attachments := make(map[string][]byte, len(c.UnzippedData))
	for name, data := range c.UnzippedData {
		field := FieldName(name)
		if _, ok := b.Data(field); ok {
			return Failf("file %s conflicts with data field %s", name, field)
		}
		if _, ok := attachments[field]; ok {
			return Failf("more than one file maps to attachment field %s", field)
		}
		attachments[field] = data
	}
	c.Record = b
	c.Attachments = attachments
	return Continue()
}

// PersistStage hands the record and attachments to Storage and
// records the resulting ID in RecordID.
type PersistStage struct {
	Storage Storage
}

func (*PersistStage) Name() string           { return PersistStageName }
func (*PersistStage) Requires() Precondition { return RequireSuccess }

func (s *PersistStage) Run(ctx context.Context, c *Context) Result {
	if c.Record == nil {
		return Failf("no record to persist")
	}
	id, err := s.Storage.Store(ctx, c.Record, c.Attachments)
	if err != nil {
		return Fail(errors.E("persist", err))
	}
	c.RecordID = id
	return Continue()
}

// ReportStage always runs. It hands the messages of a failed run to
// Reporter, and logs the record of a successful one.
type ReportStage struct {
	Reporter Reporter
}

func (*ReportStage) Name() string           { return ReportStageName }
func (*ReportStage) Requires() Precondition { return Always }

func (s *ReportStage) Run(ctx context.Context, c *Context) Result {
	if c.Success() {
		log.Printf("upload %s for tenant %s stored as record %s", c.Upload.ID, c.Tenant, c.RecordID)
		return Continue()
	}
	err := s.Reporter.Report(ctx, Report{
		Tenant:   c.Tenant,
		UploadID: c.Upload.ID,
		UserID:   c.User.ID,
		Stage:    c.FailedStage(),
		Messages: c.Messages(),
	})
	if err != nil {
		return Fail(errors.E("report", err))
	}
	return Continue()
}
