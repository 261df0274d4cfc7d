// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package cms implements per-tenant key material as a CMS (PKCS#7)
// enveloped-data encryptor. An Encryptor is bound to exactly one
// certificate and its private key. Encrypt produces DER encoded
// EnvelopedData with a single recipient, identified by the
// certificate's issuer and serial number, whose content is sealed
// with AES-128-GCM under a fresh content key. Decrypt opens such
// envelopes using the private key.
//
// Because the recipient identifier travels inside the ciphertext,
// Decrypt can tell an envelope sealed for some other certificate
// (errors.Integrity) from bytes that are not an envelope at all
// (errors.Invalid).
//
// Encryptors are immutable and safe for concurrent use.
package cms
