// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package upload

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/grailbio/ingest/errors"
	"github.com/grailbio/ingest/log"
)

// Storage persists validated records and their attachments.
type Storage interface {
	// Store builds the record from b, stores it and its attachments
	// (keyed by record field name), and returns the record's ID.
	Store(ctx context.Context, b *RecordBuilder, attachments map[string][]byte) (recordID string, err error)
}

// Report describes a failed validation run.
type Report struct {
	Tenant   string
	UploadID string
	UserID   string
	// Stage is the first stage that failed.
	Stage    string
	Messages []string
}

// Reporter receives the reports of failed validation runs.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc func(ctx context.Context, r Report) error

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, r Report) error { return f(ctx, r) }

// LogReporter reports failures to the error log.
type LogReporter struct{}

// Report implements Reporter.
func (LogReporter) Report(_ context.Context, r Report) error {
	log.Error.Printf("upload %s for tenant %s (user %s) failed at stage %s:\n\t%s",
		r.UploadID, r.Tenant, r.UserID, r.Stage, strings.Join(r.Messages, "\n\t"))
	return nil
}

// MemStorage is a Storage that keeps records and attachments in
// memory. It is safe for concurrent use.
type MemStorage struct {
	mu          sync.Mutex
	records     map[string]Record
	attachments map[string][]byte
}

// Store implements Storage.
func (m *MemStorage) Store(_ context.Context, b *RecordBuilder, attachments map[string][]byte) (string, error) {
	ids := make(map[string]string, len(attachments))
	for field := range attachments {
		ids[field] = uuid.NewString()
	}
	r, err := b.Build(ids)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string]Record)
		m.attachments = make(map[string][]byte)
	}
	for field, id := range ids {
		m.attachments[id] = attachments[field]
	}
	m.records[r.ID] = r
	return r.ID, nil
}

// Record returns the record with the given ID.
func (m *MemStorage) Record(id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, errors.E(errors.NotExist, "no record", id)
	}
	return r, nil
}

// Attachment returns the attachment with the given ID.
func (m *MemStorage) Attachment(id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.attachments[id]
	if !ok {
		return nil, errors.E(errors.NotExist, "no attachment", id)
	}
	return p, nil
}

// Len returns the number of stored records.
func (m *MemStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
