// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/ingest/errors"
)

// Zip packs files into a zip container.
func Zip(ctx context.Context, env *Env, args []string) error {
	if len(args) < 2 {
		return errors.E(errors.Invalid, "zip requires an output and at least one file")
	}
	entries := make(map[string][]byte)
	for _, path := range args[1:] {
		p, err := os.ReadFile(path)
		if err != nil {
			return errors.E("zip", path, err)
		}
		entries[filepath.ToSlash(path)] = p
	}
	data, err := env.Service().Zip(entries)
	if err != nil {
		return err
	}
	return writeOutput(env, args[0], data)
}

// Unzip unpacks a zip container into a directory.
func Unzip(ctx context.Context, env *Env, args []string) error {
	if len(args) != 2 {
		return errors.E(errors.Invalid, "unzip requires an input and a directory")
	}
	data, err := readInput(env, args[0])
	if err != nil {
		return err
	}
	entries, err := env.Service().Unzip(data)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	dir := args[1]
	for _, name := range names {
		path, err := entryPath(dir, name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return errors.E("unzip", err)
		}
		if err := os.WriteFile(path, entries[name], 0600); err != nil {
			return errors.E("unzip", path, err)
		}
	}
	return nil
}

// entryPath returns the path under dir for an entry name. Names that
// would escape dir are rejected.
func entryPath(dir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.E(errors.Invalid, "unzip: entry escapes directory", name)
	}
	return filepath.Join(dir, clean), nil
}
