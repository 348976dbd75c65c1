package ca

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/remiblancher/pivca/internal/cryptoutil"
	"github.com/remiblancher/pivca/internal/pki"
	"github.com/remiblancher/pivca/internal/profile"
	"github.com/remiblancher/pivca/internal/x509util"
)

// newTestCA builds a self-signed CA with a software signer, standing in
// for the token-resident key.
func newTestCA(t *testing.T, alg cryptoutil.AlgorithmID) *CA {
	t.Helper()

	kp, err := cryptoutil.GenerateKeyPair(alg)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := cryptoutil.NewSoftwareSigner(kp)
	if err != nil {
		t.Fatal(err)
	}

	skid, err := x509util.SubjectKeyID(kp.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		SubjectKeyId:          skid,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, kp.PublicKey, signer)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}

	return New(cert, signer, &FileSerialStore{Path: filepath.Join(t.TempDir(), "ca.srl")})
}

func newTestCSR(t *testing.T, cn string, alg cryptoutil.AlgorithmID, set *profile.ExtensionSet) (*x509.CertificateRequest, *cryptoutil.KeyPair) {
	t.Helper()

	kp, err := cryptoutil.GenerateKeyPair(alg)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := cryptoutil.NewSoftwareSigner(kp)
	if err != nil {
		t.Fatal(err)
	}
	exts, err := set.RequestExtensions()
	if err != nil {
		t.Fatal(err)
	}
	csr, err := x509util.CreateCSR(x509util.CSRRequest{
		Subject:         set.Subject,
		DNSNames:        set.DNSNames,
		EmailAddresses:  set.EmailAddresses,
		IPAddresses:     set.IPAddresses,
		ExtraExtensions: exts,
		Signer:          signer,
	})
	if err != nil {
		t.Fatal(err)
	}
	return csr, kp
}

func TestU_CA_Issue_Server(t *testing.T) {
	testCA := newTestCA(t, cryptoutil.AlgECDSAP384)

	set, err := profile.Server{}.Resolve("www.example.com", cryptoutil.AlgECDSAP256)
	if err != nil {
		t.Fatal(err)
	}
	csr, _ := newTestCSR(t, "www.example.com", cryptoutil.AlgECDSAP256, set)

	cert, err := testCA.Issue(context.Background(), IssueRequest{
		CSR:        csr,
		Extensions: set,
		Validity:   90 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if cert.Subject.CommonName != "www.example.com" {
		t.Errorf("CN = %q", cert.Subject.CommonName)
	}
	if cert.IsCA {
		t.Error("leaf must not be a CA")
	}
	if len(cert.ExtKeyUsage) != 1 || cert.ExtKeyUsage[0] != x509.ExtKeyUsageServerAuth {
		t.Errorf("ExtKeyUsage = %v", cert.ExtKeyUsage)
	}
	if cert.SignatureAlgorithm != x509.ECDSAWithSHA384 {
		t.Errorf("SignatureAlgorithm = %v, digest should match the P-384 CA key", cert.SignatureAlgorithm)
	}

	// Chain identifiers.
	if !bytes.Equal(cert.AuthorityKeyId, testCA.Certificate().SubjectKeyId) {
		t.Error("AKID should equal the issuer SKID")
	}
	wantSKID, err := x509util.SubjectKeyID(csr.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(cert.SubjectKeyId, wantSKID) {
		t.Error("SKID should derive from the subject public key")
	}

	// The leaf must verify against the issuer.
	roots := x509.NewCertPool()
	roots.AddCert(testCA.Certificate())
	if _, err := cert.Verify(x509.VerifyOptions{
		Roots:     roots,
		DNSName:   "www.example.com",
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}); err != nil {
		t.Errorf("chain verification failed: %v", err)
	}

	if remaining := cert.NotAfter.Sub(cert.NotBefore); remaining != 90*24*time.Hour {
		t.Errorf("validity = %v, want 90 days", remaining)
	}
}

func TestU_CA_Issue_SerialAdvances(t *testing.T) {
	testCA := newTestCA(t, cryptoutil.AlgECDSAP256)
	set, err := profile.Client{}.Resolve("alice", cryptoutil.AlgECDSAP256)
	if err != nil {
		t.Fatal(err)
	}

	csr1, _ := newTestCSR(t, "alice", cryptoutil.AlgECDSAP256, set)
	csr2, _ := newTestCSR(t, "alice", cryptoutil.AlgECDSAP256, set)

	cert1, err := testCA.Issue(context.Background(), IssueRequest{CSR: csr1, Extensions: set, Validity: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	cert2, err := testCA.Issue(context.Background(), IssueRequest{CSR: csr2, Extensions: set, Validity: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	if cert1.SerialNumber.Cmp(cert2.SerialNumber) >= 0 {
		t.Errorf("serials not increasing: %v then %v", cert1.SerialNumber, cert2.SerialNumber)
	}
}

func TestU_CA_Issue_CancelledContext(t *testing.T) {
	testCA := newTestCA(t, cryptoutil.AlgECDSAP256)
	set, err := profile.Client{}.Resolve("alice", cryptoutil.AlgECDSAP256)
	if err != nil {
		t.Fatal(err)
	}
	csr, _ := newTestCSR(t, "alice", cryptoutil.AlgECDSAP256, set)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := testCA.Issue(ctx, IssueRequest{CSR: csr, Extensions: set, Validity: time.Hour}); !errors.Is(err, context.Canceled) {
		t.Errorf("Issue() error = %v, want context.Canceled", err)
	}
}

// faultySigner models a token fault: the key looks present but every
// signing operation fails.
type faultySigner struct {
	pub crypto.PublicKey
}

func (s *faultySigner) Public() crypto.PublicKey          { return s.pub }
func (s *faultySigner) Algorithm() cryptoutil.AlgorithmID { return cryptoutil.AlgECDSAP256 }
func (s *faultySigner) Sign(io.Reader, []byte, crypto.SignerOpts) ([]byte, error) {
	return nil, errors.New("CKR_DEVICE_REMOVED")
}

func TestU_CA_Issue_SignFailure(t *testing.T) {
	goodCA := newTestCA(t, cryptoutil.AlgECDSAP256)

	otherKP, err := cryptoutil.GenerateKeyPair(cryptoutil.AlgECDSAP256)
	if err != nil {
		t.Fatal(err)
	}
	brokenCA := New(goodCA.Certificate(), &faultySigner{pub: otherKP.PublicKey}, &FileSerialStore{Path: filepath.Join(t.TempDir(), "ca.srl")})

	set, err := profile.Client{}.Resolve("alice", cryptoutil.AlgECDSAP256)
	if err != nil {
		t.Fatal(err)
	}
	csr, _ := newTestCSR(t, "alice", cryptoutil.AlgECDSAP256, set)

	_, err = brokenCA.Issue(context.Background(), IssueRequest{CSR: csr, Extensions: set, Validity: time.Hour})
	if err == nil {
		t.Fatal("Issue() should fail with a mismatched signer")
	}
	if !errors.Is(err, pki.ErrSigningFailure) {
		t.Errorf("error = %v, want ErrSigningFailure", err)
	}
	var signErr *pki.SignError
	if !errors.As(err, &signErr) {
		t.Fatal("error should be a *pki.SignError")
	}
	if signErr.Serial == "" {
		t.Error("SignError should carry the consumed serial")
	}
}

func TestU_LoadCertificate_Missing(t *testing.T) {
	_, err := LoadCertificate(filepath.Join(t.TempDir(), "absent.crt"))
	if !errors.Is(err, pki.ErrMissingCA) {
		t.Errorf("error = %v, want ErrMissingCA", err)
	}
}
