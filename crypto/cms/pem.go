// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cms

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/grailbio/ingest/errors"
)

const (
	certificateBlock   = "CERTIFICATE"
	pkcs8KeyBlock      = "PRIVATE KEY"
	pkcs1KeyBlock      = "RSA PRIVATE KEY"
	generatedKeyLength = 2048
)

// ParsePEM builds an Encryptor from a PEM bundle containing a
// CERTIFICATE block and a PRIVATE KEY (PKCS#8) or RSA PRIVATE KEY
// (PKCS#1) block. Other block types are ignored. The first
// certificate and the first key are used.
func ParsePEM(bundle []byte) (*Encryptor, error) {
	var (
		cert *x509.Certificate
		key  crypto.PrivateKey
		rest = bundle
	)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		var err error
		switch block.Type {
		case certificateBlock:
			if cert != nil {
				continue
			}
			if cert, err = x509.ParseCertificate(block.Bytes); err != nil {
				return nil, errors.E(errors.Invalid, "cms: parse certificate", err)
			}
		case pkcs8KeyBlock:
			if key != nil {
				continue
			}
			if key, err = x509.ParsePKCS8PrivateKey(block.Bytes); err != nil {
				return nil, errors.E(errors.Invalid, "cms: parse private key", err)
			}
		case pkcs1KeyBlock:
			if key != nil {
				continue
			}
			if key, err = x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
				return nil, errors.E(errors.Invalid, "cms: parse private key", err)
			}
		}
	}
	if cert == nil {
		return nil, errors.E(errors.Invalid, "cms: no certificate in bundle")
	}
	if key == nil {
		return nil, errors.E(errors.Invalid, "cms: no private key in bundle")
	}
	return NewEncryptor(cert, key)
}

// EncodePEM renders the Encryptor's certificate and private key as a
// PEM bundle that ParsePEM accepts.
func (e *Encryptor) EncodePEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(e.key)
	if err != nil {
		return nil, errors.E(errors.Internal, "cms: marshal private key", err)
	}
	var b bytes.Buffer
	if err := pem.Encode(&b, &pem.Block{Type: certificateBlock, Bytes: e.cert.Raw}); err != nil {
		return nil, err
	}
	if err := pem.Encode(&b, &pem.Block{Type: pkcs8KeyBlock, Bytes: der}); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// GenerateSelfSigned creates a new RSA key and a self-signed
// certificate for it with the given common name, valid from now for
// validFor. It is used to provision new tenants and in tests.
func GenerateSelfSigned(commonName string, validFor time.Duration) (*Encryptor, error) {
	key, err := rsa.GenerateKey(rand.Reader, generatedKeyLength)
	if err != nil {
		return nil, errors.E(errors.Internal, "cms: generate key", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return nil, errors.E(errors.Internal, "cms: generate serial", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, errors.E(errors.Internal, "cms: create certificate", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.E(errors.Internal, "cms: parse generated certificate", err)
	}
	return NewEncryptor(cert, key)
}
