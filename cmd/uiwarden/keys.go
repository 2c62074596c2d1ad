package main

import (
	"fmt"
	"time"

	"github.com/cuemby/uiwarden/pkg/security"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the configuration signing keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate and store a new signing key pair",
	Long: `Generate an RSA 4096 key pair with a self-signed certificate.

The public key is encrypted with the public password (600,000 PBKDF2
iterations) and the private key with the private password (1,000,000
iterations). Existing key files are never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		pub, err := requirePassword(cmd, "public-password")
		if err != nil {
			return err
		}
		priv, err := requirePassword(cmd, "private-password")
		if err != nil {
			return err
		}

		rec, closeAudit := rt.openAudit()
		defer closeAudit()

		fmt.Println("Generating RSA 4096 key pair...")
		pair, err := rt.keyVault(publisher(rec)).Initialize(pub, priv)
		if err != nil {
			return fmt.Errorf("failed to initialize keys: %w", err)
		}

		fmt.Println("✓ Keys initialized")
		fmt.Printf("  Directory:  %s\n", rt.cfg.KeyDir)
		fmt.Printf("  Thumbprint: %s\n", pair.Thumbprint)
		return nil
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the signing certificate",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}

		kv := rt.keyVault(nil)
		if !kv.IsInitialized() {
			return security.ErrNotInitialized
		}
		cert, err := kv.LoadCertificate()
		if err != nil {
			return err
		}

		info := security.GetCertInfo(cert)
		fmt.Printf("Directory:  %s\n", kv.Dir())
		fmt.Printf("Subject:    %v\n", info["subject"])
		fmt.Printf("Serial:     %v\n", info["serial_number"])
		fmt.Printf("Not before: %v\n", info["not_before"])
		fmt.Printf("Not after:  %v\n", info["not_after"])
		fmt.Printf("Key usage:  %v\n", info["key_usage"])
		fmt.Printf("Thumbprint: %v\n", info["thumbprint"])

		threshold, _ := cmd.Flags().GetDuration("rotation-threshold")
		if security.CertNeedsRotation(cert, threshold) {
			fmt.Printf("\n⚠ Certificate expires within %s, generate new keys and re-sign the configuration\n", threshold)
		}

		if pub, _ := passwordFlag(cmd, "public-password"); pub != "" {
			loaded, err := kv.LoadKeys(pub, "")
			if err != nil {
				return fmt.Errorf("public key check failed: %w", err)
			}
			loaded.Destroy()
			fmt.Println("✓ Public key decrypts and matches the certificate")
		}
		return nil
	},
}

func init() {
	addPasswordFlags(keysInitCmd, true, true)
	addPasswordFlags(keysShowCmd, true, false)
	keysShowCmd.Flags().Duration("rotation-threshold", 30*24*time.Hour, "Warn when the certificate expires within this duration")

	keysCmd.AddCommand(keysInitCmd)
	keysCmd.AddCommand(keysShowCmd)
	rootCmd.AddCommand(keysCmd)
}
