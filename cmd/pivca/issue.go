package main

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/remiblancher/pivca/internal/audit"
	"github.com/remiblancher/pivca/internal/ca"
	"github.com/remiblancher/pivca/internal/config"
	"github.com/remiblancher/pivca/internal/cryptoutil"
	"github.com/remiblancher/pivca/internal/issue"
	"github.com/remiblancher/pivca/internal/pki"
	"github.com/remiblancher/pivca/internal/profile"
	"github.com/remiblancher/pivca/internal/secret"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a certificate signed by the token-resident CA key",
}

var issueServerCmd = &cobra.Command{
	Use:   "server <common-name>",
	Short: "Issue a TLS server certificate",
	Long: `Issue a TLS server certificate. The common name becomes the subject CN
and a DNS SAN; --ip adds an IP SAN.

Examples:
  # Basic server certificate, RSA-2048 by default
  pivca issue server www.example.com --ca-cert ca.crt

  # ECDSA P-384 with an IP SAN
  pivca issue server vpn.example.com --ip 203.0.113.10 --algorithm secp384r1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ip net.IP
		if issueIP != "" {
			ip = net.ParseIP(issueIP)
			if ip == nil {
				return fmt.Errorf("%w: %q is not a valid IP address", pki.ErrInvalidInput, issueIP)
			}
		}
		return runIssue(cmd, args[0], &profile.Server{IP: ip})
	},
}

var issueClientCmd = &cobra.Command{
	Use:   "client <common-name>",
	Short: "Issue a TLS client certificate",
	Long: `Issue a TLS client certificate. With --email the address goes into the
subject DN and an rfc822Name SAN; without it the CN is used as a DNS SAN.

Examples:
  # Client certificate bound to an email address
  pivca issue client alice --email alice@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIssue(cmd, args[0], &profile.Client{Email: issueEmail})
	},
}

var (
	issueCACert      string
	issueDays        int
	issueOutDir      string
	issueAlgorithm   string
	issueModule      string
	issueToken       string
	issueTokenSerial string
	issueSlot        uint
	issueKeyLabel    string
	issueKeyID       string
	issuePrintKey    bool
	issueIP          string
	issueEmail       string
)

func init() {
	flags := issueCmd.PersistentFlags()
	flags.StringVar(&issueCACert, "ca-cert", "", "CA certificate file (PEM)")
	flags.IntVar(&issueDays, "days", config.DefaultValidityDays, "Certificate validity in days")
	flags.StringVarP(&issueOutDir, "out-dir", "o", "", "Parent directory for the output bundle")
	flags.StringVarP(&issueAlgorithm, "algorithm", "a", "", "Leaf key algorithm (rsa-2048, 2048, ecdsa-p384, secp384r1, ...)")
	flags.StringVar(&issueModule, "module", "", "PKCS#11 provider library (discovered when not set)")
	flags.StringVar(&issueToken, "token", "", "Token label")
	flags.StringVar(&issueTokenSerial, "token-serial", "", "Token serial number")
	flags.UintVar(&issueSlot, "slot", 0, "Token slot ID")
	flags.StringVar(&issueKeyLabel, "ca-key-label", "", "CKA_LABEL of the CA private key")
	flags.StringVar(&issueKeyID, "ca-key-id", "", "CKA_ID of the CA private key (hex)")
	flags.BoolVar(&issuePrintKey, "print-key", false, "Also display the decrypted private key on the terminal")

	issueServerCmd.Flags().StringVar(&issueIP, "ip", "", "IP address SAN")
	issueClientCmd.Flags().StringVar(&issueEmail, "email", "", "Email address for the subject DN and SAN")

	issueCmd.AddCommand(issueServerCmd)
	issueCmd.AddCommand(issueClientCmd)
}

func runIssue(cmd *cobra.Command, commonName string, prof profile.Profile) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// The config file can name the audit log too.
	if err := initAudit(cfg.AuditLog); err != nil {
		return err
	}

	alg, err := cryptoutil.ParseAlgorithm(cfg.Algorithm, cryptoutil.AlgRSA2048)
	if err != nil {
		return fmt.Errorf("%w: %v", pki.ErrInvalidInput, err)
	}

	// Pre-flight: everything that can fail without leaving artifacts
	// behind fails here, in exit-code order. The identity is checked
	// before the token is touched.
	if _, err := prof.Resolve(commonName, alg); err != nil {
		return err
	}
	modulePath, err := cfg.ResolveModule()
	if err != nil {
		return err
	}
	if err := cfg.CheckCACert(); err != nil {
		return err
	}

	caCert, err := ca.LoadCertificate(cfg.CACert)
	if err != nil {
		return err
	}

	pin, err := cfg.ResolvePIN()
	if err != nil {
		return err
	}

	signer, err := cryptoutil.NewPKCS11Signer(cryptoutil.PKCS11Config{
		ModulePath:  modulePath,
		TokenLabel:  cfg.PKCS11.Token,
		TokenSerial: cfg.PKCS11.TokenSerial,
		PIN:         pin,
		KeyLabel:    cfg.PKCS11.KeyLabel,
		KeyID:       cfg.PKCS11.KeyID,
		SlotID:      cfg.PKCS11.Slot,
	})
	if err != nil {
		_ = auditWriter.Write(audit.NewEvent(audit.EventAuthFailed, audit.ResultFailure).
			WithObject(audit.Object{Type: "token", Path: modulePath}).
			WithContext(audit.Context{Reason: err.Error()}))
		return pki.NewSignError("open-session", err)
	}
	defer signer.Close()

	issuer := &issue.Issuer{
		CA:    ca.New(caCert, signer, &ca.FileSerialStore{Path: serialPath(cfg.CACert)}),
		Sink:  &secret.TTYSink{},
		Audit: auditWriter,
	}

	res, err := issuer.Issue(cmd.Context(), issue.Request{
		CommonName: commonName,
		Profile:    prof,
		Algorithm:  alg,
		Validity:   time.Duration(cfg.ValidityDays) * 24 * time.Hour,
		OutDir:     cfg.OutDir,
		PrintKey:   cfg.PrintKey,
	})
	if err != nil {
		return err
	}

	printIssueResult(res)
	return nil
}

// resolveConfig merges the three configuration sources: the YAML file,
// PIVCA_* environment variables, then flags, later sources winning.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("ca-cert") {
		cfg.CACert = issueCACert
	}
	if flags.Changed("days") {
		cfg.ValidityDays = issueDays
	}
	if flags.Changed("out-dir") {
		cfg.OutDir = issueOutDir
	}
	if flags.Changed("algorithm") {
		cfg.Algorithm = issueAlgorithm
	}
	if flags.Changed("module") {
		cfg.PKCS11.Module = issueModule
	}
	if flags.Changed("token") {
		cfg.PKCS11.Token = issueToken
	}
	if flags.Changed("token-serial") {
		cfg.PKCS11.TokenSerial = issueTokenSerial
	}
	if flags.Changed("slot") {
		slot := issueSlot
		cfg.PKCS11.Slot = &slot
	}
	if flags.Changed("ca-key-label") {
		cfg.PKCS11.KeyLabel = issueKeyLabel
	}
	if flags.Changed("ca-key-id") {
		cfg.PKCS11.KeyID = issueKeyID
	}
	if flags.Changed("print-key") {
		cfg.PrintKey = issuePrintKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// serialPath places the serial counter next to the CA certificate,
// following openssl's .srl convention.
func serialPath(caCertPath string) string {
	ext := filepath.Ext(caCertPath)
	return strings.TrimSuffix(caCertPath, ext) + ".srl"
}

// printIssueResult displays the issued certificate and artifact paths.
// Passphrases went to the terminal device, never through here.
func printIssueResult(res *issue.Result) {
	cert := res.Certificate
	fmt.Printf("Certificate issued successfully!\n")
	fmt.Printf("  Subject:    %s\n", cert.Subject.String())
	fmt.Printf("  Serial:     %X\n", cert.SerialNumber.Bytes())
	fmt.Printf("  Not Before: %s\n", cert.NotBefore.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Not After:  %s\n", cert.NotAfter.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Issuer:     %s\n", cert.Issuer.String())
	fmt.Printf("  Certificate: %s\n", res.CertPath)
	fmt.Printf("  Fullchain:   %s\n", res.FullchainPath)
	fmt.Printf("  PKCS#12:     %s\n", res.P12Path)
	fmt.Printf("  Archive:     %s\n", res.ZipPath)
}
