// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package upload

import (
	"encoding/json"
	"fmt"
	"time"
)

// UserRef identifies the participant who submitted an upload. It is
// opaque to the pipeline except for the consent attributes that are
// copied onto the record.
type UserRef struct {
	// ID is the participant's pseudonymous identifier.
	ID string
	// ExternalID is the study-assigned participant identifier, if any.
	ExternalID string
	// SharingScope is the participant's consented data sharing scope.
	SharingScope string
}

// Upload is the metadata of an uploaded payload.
type Upload struct {
	ID         string
	Name       string
	ContentMD5 string
	UploadedOn time.Time
}

// State is the position of a Context in its validation run.
type State int

const (
	// Created is the state of a Context that has not been run.
	Created State = iota
	// StageRunning is the state while a stage is running.
	StageRunning
	// StageDone is the state between stages.
	StageDone
	// Completed is the terminal state of a successful run.
	Completed
	// Failed is the terminal state of a run in which some stage failed.
	Failed
)

var stateNames = [...]string{
	Created:      "CREATED",
	StageRunning: "STAGE_RUNNING",
	StageDone:    "STAGE_DONE",
	Completed:    "COMPLETED",
	Failed:       "FAILED",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal tells whether s is Completed or Failed.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// Context carries one upload through a validation run. A Context is
// created for a single upload of a single tenant, is owned by the one
// goroutine running it, and is discarded after the run; it is not safe
// for concurrent use and cannot be run twice.
//
// Each field documents the stage that writes it and the stages that
// read it. A stage only reads fields written by stages before it.
type Context struct {
	// Tenant is the study the upload belongs to. Set by NewContext;
	// read by every stage.
	Tenant string
	// User is the participant who submitted the upload. Set by
	// NewContext; read by TransformStage.
	User UserRef
	// Upload is the upload's metadata. Set by NewContext; read by
	// TransformStage and ReportStage.
	Upload Upload
	// Data is the raw (encrypted) upload. Set by NewContext; read by
	// DecryptStage.
	Data []byte

	// DecryptedData is the decrypted upload, a zip container. Written
	// by DecryptStage; read by UnzipStage.
	DecryptedData []byte
	// UnzippedData holds the container's entries keyed by file name.
	// Written by UnzipStage. ParseJSONStage removes the entries it
	// parses; the entries that remain are read by TransformStage as
	// attachments.
	UnzippedData map[string][]byte
	// JSONData holds the parsed JSON entries keyed by file name.
	// Written by ParseJSONStage; read by TransformStage.
	JSONData map[string]json.RawMessage
	// Record is the record to be persisted. Written by
	// TransformStage; read by PersistStage.
	Record *RecordBuilder
	// Attachments holds the raw entries to be stored alongside the
	// record, keyed by record field name. Written by TransformStage;
	// read by PersistStage.
	Attachments map[string][]byte
	// RecordID is the identifier of the persisted record. Written by
	// PersistStage; read by ReportStage.
	RecordID string

	success  bool
	messages []string
	state    State
	stage    string
	failed   string
}

// NewContext returns a Context for one upload, in state Created. A
// new Context is vacuously successful: Success is true and there are
// no messages until some stage fails.
func NewContext(tenant string, user UserRef, upload Upload, data []byte) *Context {
	return &Context{
		Tenant:  tenant,
		User:    user,
		Upload:  upload,
		Data:    data,
		success: true,
		state:   Created,
	}
}

// Success tells whether every stage run so far has succeeded. Only
// the Task running the context changes it.
func (c *Context) Success() bool { return c.success }

// Messages returns a copy of the context's diagnostic messages, in
// the order they were added.
func (c *Context) Messages() []string {
	return append([]string(nil), c.messages...)
}

// AddMessage appends a diagnostic message without affecting Success.
func (c *Context) AddMessage(msg string) {
	c.messages = append(c.messages, msg)
}

// State returns the context's current state.
func (c *Context) State() State { return c.state }

// Stage returns the name of the running stage, or of the last stage
// that ran.
func (c *Context) Stage() string { return c.stage }

// FailedStage returns the name of the first stage that failed, or ""
// if none has.
func (c *Context) FailedStage() string { return c.failed }

func (c *Context) String() string {
	return fmt.Sprintf("tenant=%s upload=%s", c.Tenant, c.Upload.ID)
}
