// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package errors

import "fmt"

// CleanUp is defer-able syntactic sugar that calls f and reports an error, if any,
// to *dst. Pass the caller's named return error. Example usage:
//
//	func zipEntries(entries map[string][]byte) (_ []byte, err error) {
//		w := zip.NewWriter(&buf)
//		defer errors.CleanUp(w.Close, &err)
//		...
//	}
//
// If the caller returns with its own error, the clean-up error is
// appended to its message rather than replacing it.
func CleanUp(cleanUp func() error, dst *error) {
	err := cleanUp()
	if err == nil {
		return
	}
	if *dst == nil {
		*dst = err
		return
	}
	// *dst keeps its own cause; err is unrelated to it.
	*dst = E(*dst, fmt.Sprintf("second error in clean-up: %v", err))
}
