// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"os"
	"time"

	"github.com/grailbio/ingest/archive"
	"github.com/grailbio/ingest/errors"
	"gopkg.in/yaml.v3"
)

// Config is the tool's configuration. It is read from a YAML file
// such as:
//
//	keys: kms://ingest/tenants/{tenant}.pem
//	keyTTL: 1h
//	retries: 5
//	parallelism: 8
//	archive:
//	  method: zstd
//	  maxEntrySize: 104857600
//	  maxEntries: 1000
//	store:
//	  region: us-west-2
//	  table: ingest-records
//	  bucket: ingest-attachments
type Config struct {
	// Keys is the keycrypt URL template of tenant key bundles.
	Keys string `yaml:"keys"`
	// KeyTTL is how long loaded key material is cached.
	KeyTTL time.Duration `yaml:"keyTTL"`
	// Retries is the number of retries of temporary key and storage
	// errors.
	Retries int `yaml:"retries"`
	// Parallelism is the number of uploads validated at once.
	Parallelism int `yaml:"parallelism"`

	Archive struct {
		Method       string `yaml:"method"`
		MaxEntrySize int64  `yaml:"maxEntrySize"`
		MaxEntries   int    `yaml:"maxEntries"`
	} `yaml:"archive"`

	// Store configures record storage. Records are kept in memory
	// unless Table is set.
	Store struct {
		Region string `yaml:"region"`
		Table  string `yaml:"table"`
		Bucket string `yaml:"bucket"`
	} `yaml:"store"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	var c Config
	c.Keys = "file:///etc/ingest/keys/{tenant}.pem"
	c.KeyTTL = time.Hour
	c.Retries = 3
	c.Archive.Method = "deflate"
	c.Store.Region = "us-west-2"
	return c
}

// LoadConfig reads the YAML configuration file at path. Settings the
// file does not mention keep their default values.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	p, err := os.ReadFile(path)
	if err != nil {
		return c, errors.E("reading config", path, err)
	}
	if err := yaml.Unmarshal(p, &c); err != nil {
		return c, errors.E(errors.Invalid, "parsing config", path, err)
	}
	if err := c.validate(); err != nil {
		return c, errors.E("config", path, err)
	}
	return c, nil
}

func (c Config) validate() error {
	if _, err := archive.ParseMethod(c.Archive.Method); err != nil {
		return err
	}
	if c.Store.Table != "" && c.Store.Bucket == "" {
		return errors.E(errors.Invalid, "store.bucket must be set with store.table")
	}
	if c.Retries < 0 || c.Parallelism < 0 || c.KeyTTL < 0 {
		return errors.E(errors.Invalid, "negative retries, parallelism or keyTTL")
	}
	return nil
}

func (c Config) archiveOpts() archive.Opts {
	m, _ := archive.ParseMethod(c.Archive.Method)
	return archive.Opts{
		Method:       m,
		MaxEntrySize: c.Archive.MaxEntrySize,
		MaxEntries:   c.Archive.MaxEntries,
	}
}
