package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Sign and verify the configuration document",
}

var configSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign the configuration document",
	Long: `Sign the configuration document with the private key.

With --include-binaries the hashes of every configured binary are written
into the document as "binaryHashes" before signing, so the signature
covers them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		priv, err := requirePassword(cmd, "private-password")
		if err != nil {
			return err
		}
		include, _ := cmd.Flags().GetBool("include-binaries")

		rec, closeAudit := rt.openAudit()
		defer closeAudit()
		pub := publisher(rec)

		ci := rt.configIntegrity(pub, rt.keyVault(pub), rt.binaryChecker(pub))
		sig, err := ci.SignConfig(priv, include)
		if err != nil {
			return fmt.Errorf("failed to sign configuration: %w", err)
		}

		fmt.Println("✓ Configuration signed")
		fmt.Printf("  Config:     %s\n", rt.cfg.ConfigPath)
		fmt.Printf("  Signature:  %s\n", ci.SignaturePath())
		fmt.Printf("  SHA-256:    %s\n", sig.ConfigHash)
		fmt.Printf("  Thumbprint: %s\n", sig.Thumbprint)
		if include {
			fmt.Printf("  Binaries:   %d\n", len(rt.cfg.Binaries))
		}
		return nil
	},
}

var configVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the configuration signature",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		pw, err := requirePassword(cmd, "public-password")
		if err != nil {
			return err
		}

		rec, closeAudit := rt.openAudit()
		defer closeAudit()
		pub := publisher(rec)

		ci := rt.configIntegrity(pub, rt.keyVault(pub), rt.binaryChecker(pub))
		verified, err := ci.VerifyConfig(pw)
		if err != nil {
			return fmt.Errorf("configuration rejected: %w", err)
		}

		if verified.Bypassed {
			fmt.Println("⚠ Signature check bypassed, configuration NOT verified")
			return nil
		}

		fmt.Println("✓ Configuration signature valid")
		fmt.Printf("  Signed:     %s\n", verified.Signature.Timestamp)
		fmt.Printf("  Thumbprint: %s\n", verified.Signature.Thumbprint)

		names := make([]string, 0, len(verified.BinaryHashes))
		for name := range verified.BinaryHashes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  Binary:     %s (%s)\n", name, verified.BinaryHashes[name].Path)
		}
		return nil
	},
}

func init() {
	addPasswordFlags(configSignCmd, false, true)
	configSignCmd.Flags().Bool("include-binaries", false, "Embed binary hashes before signing")
	addPasswordFlags(configVerifyCmd, true, false)

	configCmd.AddCommand(configSignCmd)
	configCmd.AddCommand(configVerifyCmd)
	rootCmd.AddCommand(configCmd)
}
