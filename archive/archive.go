// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package archive converts between zip containers and maps of entry
// names to contents. Upload packages arrive as zip files; Unzip
// flattens them into a map, and Zip builds one (deterministically) from
// a map.
//
// Entry names must be unique within a container. A container that
// repeats a name is rejected with errors.DuplicateEntry rather than
// letting the later entry silently shadow the earlier one.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/ingest/errors"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Method is the compression method used for entries written by Zip.
type Method uint16

const (
	// Deflate is the standard zip compression method, readable by
	// every zip implementation.
	Deflate Method = Method(zip.Deflate)
	// Store writes entries uncompressed.
	Store Method = Method(zip.Store)
	// Zstd compresses entries with zstandard, using the method
	// number assigned by WinZip.
	Zstd Method = zstd.ZipMethodWinZip
)

// String implements fmt.Stringer.
func (m Method) String() string {
	switch m {
	case Deflate:
		return "deflate"
	case Store:
		return "store"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

// ParseMethod returns the Method with the given name.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "", "deflate":
		return Deflate, nil
	case "store":
		return Store, nil
	case "zstd":
		return Zstd, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("archive: unknown compression method %q", name))
}

// Opts controls Zip and Unzip.
type Opts struct {
	// Method is the compression method used by Zip. The zero value
	// is Store; use Deflate for the default.
	Method Method
	// MaxEntrySize limits the uncompressed size of any single entry
	// accepted by Unzip. Zero means no limit.
	MaxEntrySize int64
	// MaxEntries limits the number of entries accepted by Unzip.
	// Zero means no limit.
	MaxEntries int
}

// DefaultOpts is used when Zip or Unzip is called without options.
var DefaultOpts = Opts{Method: Deflate}

func getOpts(opts []Opts) Opts {
	switch len(opts) {
	case 0:
		return DefaultOpts
	case 1:
		return opts[0]
	default:
		panic("archive: more than one Opts")
	}
}

// Zip writes entries into a new zip container. The output is
// deterministic: entries are written in name order and carry no
// timestamps. Names must be nonempty and must not end in "/"
// (directories are not representable in the map).
func Zip(entries map[string][]byte, opts ...Opts) (data []byte, err error) {
	o := getOpts(opts)
	switch o.Method {
	case Store, Deflate, Zstd:
	default:
		return nil, errors.E(errors.Invalid, "archive: unsupported method", o.Method.String())
	}
	if entries == nil {
		return nil, errors.E(errors.ValidationInput, "archive: entries cannot be null")
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		if name == "" || name[len(name)-1] == '/' {
			return nil, errors.E(errors.ValidationInput, fmt.Sprintf("archive: invalid entry name %q", name))
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b bytes.Buffer
	w := zip.NewWriter(&b)
	if o.Method == Zstd {
		w.RegisterCompressor(uint16(Zstd), zstd.ZipCompressor())
	}
	for _, name := range names {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: uint16(o.Method)})
		if err != nil {
			_ = w.Close()
			return nil, errors.E(errors.Internal, errors.Fatal, "archive: create", name, err)
		}
		if _, err := fw.Write(entries[name]); err != nil {
			_ = w.Close()
			return nil, errors.E(errors.Internal, errors.Fatal, "archive: write", name, err)
		}
	}
	errors.CleanUp(w.Close, &err)
	if err != nil {
		return nil, errors.E(errors.Internal, errors.Fatal, "archive: close", err)
	}
	return b.Bytes(), nil
}

// Unzip reads every entry of the zip container data, in stored order,
// into a map keyed by entry name. Directory entries are skipped. Each
// entry is read to the end so that its checksum is verified.
//
// Unzip fails with errors.MalformedContainer if data is not a zip
// container, is truncated or corrupt, uses an unsupported compression
// method, or exceeds the limits in opts; and with errors.DuplicateEntry
// at the first name that appears twice. No partial map is returned on
// error.
func Unzip(data []byte, opts ...Opts) (map[string][]byte, error) {
	o := getOpts(opts)
	if data == nil {
		return nil, errors.E(errors.ValidationInput, "archive: bytes cannot be null")
	}
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.E(errors.MalformedContainer, "archive: open", err)
	}
	r.RegisterDecompressor(uint16(Zstd), zstd.ZipDecompressor())
	if o.MaxEntries > 0 && len(r.File) > o.MaxEntries {
		return nil, errors.E(errors.MalformedContainer,
			fmt.Sprintf("archive: %d entries exceeds limit of %d", len(r.File), o.MaxEntries))
	}
	entries := make(map[string][]byte, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if _, ok := entries[f.Name]; ok {
			return nil, errors.E(errors.DuplicateEntry, fmt.Sprintf("archive: entry %q appears more than once", f.Name))
		}
		p, err := readEntry(f, o.MaxEntrySize)
		if err != nil {
			return nil, errors.E(errors.MalformedContainer, err)
		}
		entries[f.Name] = p
	}
	return entries, nil
}

func readEntry(f *zip.File, limit int64) (p []byte, err error) {
	if limit > 0 && f.UncompressedSize64 > uint64(limit) {
		return nil, errors.E(errors.MalformedContainer,
			fmt.Sprintf("archive: entry %q declares %d bytes, limit is %d", f.Name, f.UncompressedSize64, limit))
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.E(errors.MalformedContainer, "archive: open entry", f.Name, err)
	}
	defer errors.CleanUp(rc.Close, &err)
	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	p, err = io.ReadAll(r)
	if err != nil {
		return nil, errors.E(errors.MalformedContainer, "archive: read entry", f.Name, err)
	}
	if limit > 0 && int64(len(p)) > limit {
		return nil, errors.E(errors.MalformedContainer,
			fmt.Sprintf("archive: entry %q exceeds limit of %d bytes", f.Name, limit))
	}
	return p, nil
}
