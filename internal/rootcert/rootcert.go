/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package rootcert stands in for the out-of-core certificate authority
// collaborator spec.md §1 explicitly scopes out ("The host-side
// certificate store (OS trust installation) and the on-the-fly leaf
// certificate minting done by the TLS acceptor"). The engine controller
// still needs *something* satisfying engine.RootCA to sequence its start
// order (spec.md §4.7: "CA trust established -> acceptors created ...");
// this package supplies a minimal self-signed CA generator so that
// sequencing is real and testable, while leaving actual OS trust-store
// installation and leaf-certificate minting to the embedder, exactly as
// spec.md scopes them.
package rootcert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// CA is a generated, in-memory root certificate authority.
type CA struct {
	key     *ecdsa.PrivateKey
	cert    *x509.Certificate
	certDER []byte
}

// Generate creates a fresh self-signed CA good for validity. org is used
// as the certificate's organization/common name, shown to the user by
// the OS trust-store UI the embedder drives.
func Generate(org string, validity time.Duration) (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("rootcert: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("rootcert: generate serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{org},
			CommonName:   org + " Local Root CA",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("rootcert: self-sign: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("rootcert: parse generated cert: %w", err)
	}

	return &CA{key: key, cert: cert, certDER: der}, nil
}

// PEM returns the CA certificate in PEM form (spec.md §6,
// "get_root_certificate_pem").
func (c *CA) PEM() string {
	block := &pem.Block{Type: "CERTIFICATE", Bytes: c.certDER}
	return string(pem.EncodeToMemory(block))
}

// Certificate returns the parsed CA certificate, for an embedder's leaf-
// minting TLS acceptor (out of core, spec.md §1) to sign against.
func (c *CA) Certificate() *x509.Certificate { return c.cert }

// PrivateKey returns the CA's signing key.
func (c *CA) PrivateKey() *ecdsa.PrivateKey { return c.key }

// EnsureTrusted is a no-op placeholder for OS trust-store installation.
// spec.md §1 explicitly scopes that responsibility to an external
// collaborator; engine.Controller still calls this so its start-order
// sequencing (spec.md §4.7) is exercised end to end even when the real
// installer is swapped in by the embedder via engine.Config.CA.
func (c *CA) EnsureTrusted() error {
	return nil
}

// PersistKeyFile writes the CA's PEM-encoded EC private key to path with
// restrictive permissions, for an embedder that wants the generated CA to
// survive a restart instead of minting a fresh one every run. Permission
// tightening is platform-specific (SPEC_FULL.md §11, §12): writeKeyFile
// is implemented per-OS in persist_unix.go/persist_windows.go.
func (c *CA) PersistKeyFile(path string) error {
	der, err := x509.MarshalECPrivateKey(c.key)
	if err != nil {
		return fmt.Errorf("rootcert: marshal key: %w", err)
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	return writeKeyFile(path, pem.EncodeToMemory(block))
}
