// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/ingest/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryPath(t *testing.T) {
	for _, name := range []string{"a.json", "photos/1.jpg", "a/../b.txt", "./c"} {
		path, err := entryPath("/out", name)
		require.NoError(t, err, name)
		assert.Equal(t, filepath.Join("/out", filepath.Clean(name)), path)
	}
	for _, name := range []string{"../evil", "/etc/passwd", "a/../../evil", ".."} {
		_, err := entryPath("/out", name)
		assert.True(t, errors.Is(errors.Invalid, err), "%s: got %v", name, err)
	}
}
