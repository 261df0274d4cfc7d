// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cms

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"github.com/fullsailor/pkcs7"
	"github.com/grailbio/ingest/errors"
)

func init() {
	// The package default is DES-CBC; every envelope we produce uses
	// AES-GCM. This is the only place the global is written.
	pkcs7.ContentEncryptionAlgorithm = pkcs7.EncryptionAlgorithmAES128GCM
}

// Encryptor seals and opens CMS enveloped data for one certificate
// and private key pair.
type Encryptor struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
	id   string
}

// NewEncryptor returns an Encryptor for the given certificate and
// private key. The certificate must carry an RSA public key that
// matches key.
func NewEncryptor(cert *x509.Certificate, key crypto.PrivateKey) (*Encryptor, error) {
	if cert == nil {
		return nil, errors.E(errors.Invalid, "cms: certificate cannot be null")
	}
	if key == nil {
		return nil, errors.E(errors.Invalid, "cms: private key cannot be null")
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.E(errors.Invalid, "cms: certificate public key is not RSA")
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.E(errors.Invalid, "cms: private key is not RSA")
	}
	if !pub.Equal(priv.Public()) {
		return nil, errors.E(errors.Invalid, "cms: private key does not match certificate")
	}
	sum := sha256.Sum256(cert.Raw)
	return &Encryptor{cert: cert, key: priv, id: hex.EncodeToString(sum[:8])}, nil
}

// Certificate returns the recipient certificate.
func (e *Encryptor) Certificate() *x509.Certificate {
	return e.cert
}

// ID returns a short fingerprint of the certificate, suitable for logs.
func (e *Encryptor) ID() string {
	return e.id
}

// Encrypt seals plaintext in a CMS enveloped-data structure for the
// Encryptor's certificate.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if plaintext == nil {
		return nil, errors.E(errors.Invalid, "cms: plaintext cannot be null")
	}
	der, err := pkcs7.Encrypt(plaintext, []*x509.Certificate{e.cert})
	if err != nil {
		return nil, errors.E(errors.Internal, "cms: encrypt", err)
	}
	return der, nil
}

// Decrypt opens a CMS enveloped-data structure with the Encryptor's
// private key. Errors have kind errors.Invalid if ciphertext is not a
// parseable envelope, and errors.Integrity if it is an envelope that
// this key cannot open.
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if ciphertext == nil {
		return nil, errors.E(errors.Invalid, "cms: ciphertext cannot be null")
	}
	p7, err := parse(ciphertext)
	if err != nil {
		return nil, errors.E(errors.Invalid, "cms: parse envelope", err)
	}
	plaintext, err := p7.Decrypt(e.cert, e.key)
	switch {
	case err == pkcs7.ErrNotEncryptedContent:
		return nil, errors.E(errors.Invalid, "cms: content is not enveloped data", err)
	case err == pkcs7.ErrUnsupportedAlgorithm:
		return nil, errors.E(errors.Invalid, "cms: unsupported algorithm", err)
	case err != nil:
		return nil, errors.E(errors.Integrity, "cms: open envelope for certificate "+e.id, err)
	}
	return plaintext, nil
}

// parse parses untrusted input; the BER decoder panics on some
// malformed lengths, which are reported as parse errors.
func parse(data []byte) (p7 *pkcs7.PKCS7, err error) {
	defer func() {
		if r := recover(); r != nil {
			p7, err = nil, fmt.Errorf("pkcs7: %v", r)
		}
	}()
	return pkcs7.Parse(data)
}
