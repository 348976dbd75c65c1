// Package issue runs the certificate issuance pipeline: resolve the
// identity, generate the key pair and CSR, sign with the CA, assemble
// the artifact bundle, and destroy all transient secrets.
package issue

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/remiblancher/pivca/internal/audit"
	"github.com/remiblancher/pivca/internal/bundle"
	"github.com/remiblancher/pivca/internal/ca"
	"github.com/remiblancher/pivca/internal/cryptoutil"
	"github.com/remiblancher/pivca/internal/pki"
	"github.com/remiblancher/pivca/internal/profile"
	"github.com/remiblancher/pivca/internal/secret"
	"github.com/remiblancher/pivca/internal/x509util"
)

// Passphrase sizes in random bytes; hex doubles them on display.
const (
	keyPassphraseBytes = 16 // 32 hex characters
	p12PassphraseBytes = 8  // 16 hex characters
)

// Request holds the resolved parameters for one issuance.
type Request struct {
	// CommonName is the certificate subject CN.
	CommonName string

	// Profile selects server or client issuance.
	Profile profile.Profile

	// Algorithm is the leaf key algorithm.
	Algorithm cryptoutil.AlgorithmID

	// Validity is the certificate lifetime.
	Validity time.Duration

	// OutDir is the parent directory; artifacts go to OutDir/<cn>/.
	OutDir string

	// PrintKey also displays the decrypted private key and writes the
	// CSR for diagnostics.
	PrintKey bool
}

// Result lists the artifacts of a successful issuance.
type Result struct {
	Dir           string
	CertPath      string
	FullchainPath string
	P12Path       string
	ZipPath       string

	Certificate *x509.Certificate
}

// Issuer wires the pipeline's capabilities: the CA, the secret display
// sink, and the audit trail.
type Issuer struct {
	CA    *ca.CA
	Sink  secret.Sink
	Audit audit.Writer
}

// Issue runs the pipeline. Transient secrets (key file, CSR file,
// passphrase buffers) are registered with a cleaner as soon as they
// exist and destroyed on every exit path, including signing failures.
func (i *Issuer) Issue(ctx context.Context, req Request) (*Result, error) {
	// Everything up to here must fail before the first side effect, so
	// the identity is resolved before the output directory exists.
	ext, err := req.Profile.Resolve(req.CommonName, req.Algorithm)
	if err != nil {
		return nil, err
	}

	cn := req.CommonName
	dir := filepath.Join(req.OutDir, cn)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	cleaner := &secret.Cleaner{}
	cleanupDone := false
	cleanup := func() error {
		if cleanupDone {
			return nil
		}
		cleanupDone = true
		if err := cleaner.Run(); err != nil {
			i.log(audit.NewEvent(audit.EventCleanup, audit.ResultFailure).
				WithObject(audit.Object{Type: "key", Path: dir}).
				WithContext(audit.Context{Reason: err.Error()}))
			return err
		}
		i.log(audit.NewEvent(audit.EventCleanup, audit.ResultSuccess).
			WithObject(audit.Object{Type: "key", Path: dir}))
		return nil
	}
	defer func() { _ = cleanup() }()

	// Key pair and passphrase. The passphrase exists before the key so
	// the key is encrypted at its first write.
	keyPass, err := secret.Passphrase(keyPassphraseBytes)
	if err != nil {
		return nil, err
	}
	cleaner.AddBuffer(keyPass)

	keyPair, err := cryptoutil.GenerateKeyPair(req.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	i.log(audit.NewEvent(audit.EventKeyGenerated, audit.ResultSuccess).
		WithObject(audit.Object{Type: "key", Subject: cn}).
		WithContext(audit.Context{Profile: req.Profile.Kind(), Algorithm: string(req.Algorithm)}))

	keyPath := filepath.Join(dir, cn+".key")
	cleaner.AddFile(keyPath)
	if err := cryptoutil.SavePrivateKeyPEM(keyPair.PrivateKey, keyPath, keyPass); err != nil {
		return nil, err
	}

	// CSR with the request-time extensions. SKID and AKID are added by
	// the CA at signing time.
	reqExts, err := ext.RequestExtensions()
	if err != nil {
		return nil, err
	}
	signer, err := cryptoutil.NewSoftwareSigner(keyPair)
	if err != nil {
		return nil, err
	}
	csr, err := x509util.CreateCSR(x509util.CSRRequest{
		Subject:         ext.Subject,
		DNSNames:        ext.DNSNames,
		EmailAddresses:  ext.EmailAddresses,
		IPAddresses:     ext.IPAddresses,
		ExtraExtensions: reqExts,
		Signer:          signer,
	})
	if err != nil {
		return nil, err
	}
	i.log(audit.NewEvent(audit.EventCSRCreated, audit.ResultSuccess).
		WithObject(audit.Object{Type: "csr", Subject: cn}))

	if req.PrintKey {
		csrPath := filepath.Join(dir, cn+".csr")
		cleaner.AddFile(csrPath)
		if err := os.WriteFile(csrPath, x509util.EncodeCSRPEM(csr), 0600); err != nil {
			return nil, fmt.Errorf("failed to write CSR: %w", err)
		}
	}

	// Sign. A failure here is fatal and consumes a serial; the deferred
	// cleaner still destroys the key material.
	cert, err := i.CA.Issue(ctx, ca.IssueRequest{
		CSR:        csr,
		Extensions: ext,
		Validity:   req.Validity,
	})
	if err != nil {
		i.log(audit.NewEvent(audit.EventCertIssued, audit.ResultFailure).
			WithObject(audit.Object{Type: "certificate", Subject: cn}).
			WithContext(audit.Context{Profile: req.Profile.Kind(), Reason: err.Error()}))
		if _, ok := err.(*pki.SignError); ok {
			return nil, err
		}
		return nil, fmt.Errorf("issuance failed: %w", err)
	}

	serial := fmt.Sprintf("0x%X", cert.SerialNumber.Bytes())
	i.log(audit.NewEvent(audit.EventCertIssued, audit.ResultSuccess).
		WithObject(audit.Object{Type: "certificate", Serial: serial, Subject: cert.Subject.String()}).
		WithContext(audit.Context{Profile: req.Profile.Kind(), Algorithm: cert.SignatureAlgorithm.String()}))

	res := &Result{
		Dir:           dir,
		CertPath:      filepath.Join(dir, cn+".crt"),
		FullchainPath: filepath.Join(dir, cn+".fullchain.pem"),
		P12Path:       filepath.Join(dir, cn+".p12"),
		ZipPath:       filepath.Join(dir, cn+".zip"),
		Certificate:   cert,
	}

	if err := os.WriteFile(res.CertPath, x509util.EncodeCertificatePEM(cert), 0644); err != nil {
		return nil, fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := bundle.WriteFullchain(res.FullchainPath, cert, i.CA.Certificate()); err != nil {
		return nil, err
	}

	p12Pass, err := secret.Passphrase(p12PassphraseBytes)
	if err != nil {
		return nil, err
	}
	cleaner.AddBuffer(p12Pass)
	if err := bundle.WritePKCS12(res.P12Path, keyPair.PrivateKey, cert, i.CA.Certificate(), string(p12Pass)); err != nil {
		return nil, err
	}
	i.log(audit.NewEvent(audit.EventBundleExported, audit.ResultSuccess).
		WithObject(audit.Object{Type: "bundle", Serial: serial, Path: res.P12Path}))

	// One-shot display on the terminal device, never on stdout.
	if err := i.Sink.Show("Key passphrase", keyPass); err != nil {
		return nil, err
	}
	if err := i.Sink.Show("PKCS#12 passphrase", p12Pass); err != nil {
		return nil, err
	}
	if req.PrintKey {
		keyPEM, err := cryptoutil.EncodePrivateKeyPEM(keyPair.PrivateKey, nil)
		if err != nil {
			return nil, err
		}
		cleaner.AddBuffer(keyPEM)
		if err := i.Sink.Show("Private key", keyPEM); err != nil {
			return nil, err
		}
		i.log(audit.NewEvent(audit.EventKeyAccessed, audit.ResultSuccess).
			WithObject(audit.Object{Type: "key", Subject: cn}))
	}

	// Destroy the key and CSR files now so the archive never contains
	// them, then archive what remains.
	if err := cleanup(); err != nil {
		return nil, fmt.Errorf("failed to clean up key material: %w", err)
	}

	if err := bundle.WriteZip(res.ZipPath, dir, cn+".key", cn+".csr"); err != nil {
		return nil, err
	}

	return res, nil
}

// log writes an audit event, ignoring writer errors on the failure path:
// audit must not mask the primary error.
func (i *Issuer) log(event *audit.Event) {
	if i.Audit != nil {
		_ = i.Audit.Write(event)
	}
}
