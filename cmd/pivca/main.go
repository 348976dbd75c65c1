// Command pivca issues TLS server and client certificates signed by a
// CA private key held on a YubiKey PIV token.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remiblancher/pivca/internal/audit"
	"github.com/remiblancher/pivca/internal/cryptoutil"
	"github.com/remiblancher/pivca/internal/pki"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath   string
	auditLogPath string
)

// auditWriter is the process-wide audit trail. It stays a NopWriter until
// an audit log path is configured.
var auditWriter audit.Writer = audit.NopWriter{}

func main() {
	// Setup signal handler for clean PKCS#11 shutdown
	setupSignalHandler()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cryptoutil.CloseAllPools() // Cleanup PKCS#11 before exit
		closeAudit()
		os.Exit(pki.ExitCode(err))
	}

	// Cleanup PKCS#11 session pools on normal exit
	cryptoutil.CloseAllPools()
}

// setupSignalHandler sets up a signal handler to cleanup PKCS#11 resources
// on SIGINT/SIGTERM. This prevents SIGSEGV crashes during program exit when
// token sessions are active.
func setupSignalHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cryptoutil.CloseAllPools() // Cleanup PKCS#11 before exit
		os.Exit(1)
	}()
}

var rootCmd = &cobra.Command{
	Use:   "pivca",
	Short: "Issue TLS certificates with a YubiKey-resident CA key",
	Long: `pivca issues TLS server and client certificates signed by a CA whose
private key lives on a YubiKey PIV token and never leaves it. Signing
happens over PKCS#11; the leaf key is generated in software, encrypted
at rest, and destroyed once the artifact bundle is written.

Each issuance produces, under <out-dir>/<common-name>/:
  <cn>.crt            leaf certificate (PEM)
  <cn>.fullchain.pem  leaf followed by the CA certificate
  <cn>.p12            PKCS#12 bundle (key + chain)
  <cn>.zip            archive of the above

The key and PKCS#12 passphrases are displayed once on the controlling
terminal and are not stored anywhere.

Examples:
  # Issue a server certificate
  pivca issue server www.example.com --ca-cert ca.crt

  # Server certificate with an IP SAN and an ECDSA P-384 key
  pivca issue server vpn.example.com --ip 203.0.113.10 --algorithm secp384r1

  # Client certificate bound to an email address
  pivca issue client alice --email alice@example.com`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Check for audit log path from environment if not set via flag
		if auditLogPath == "" {
			auditLogPath = os.Getenv("PIVCA_AUDIT_LOG")
		}
		return initAudit(auditLogPath)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeAudit()
	},
}

// initAudit opens the hash-chained audit log. Calling it again with an
// empty path, or with the log already open, is a no-op so the config
// file can supply the path after flag parsing.
func initAudit(path string) error {
	if path == "" {
		return nil
	}
	if _, ok := auditWriter.(audit.NopWriter); !ok {
		return nil
	}
	w, err := audit.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to initialize audit log: %w", err)
	}
	auditWriter = w
	return nil
}

func closeAudit() error {
	return auditWriter.Close()
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&auditLogPath, "audit-log", "",
		"Path to audit log file (or set PIVCA_AUDIT_LOG env var)")

	rootCmd.AddCommand(issueCmd)   // pivca issue ...
	rootCmd.AddCommand(versionCmd) // pivca version
}
