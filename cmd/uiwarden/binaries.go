package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/uiwarden/pkg/types"
	"github.com/spf13/cobra"
)

var binariesCmd = &cobra.Command{
	Use:   "binaries",
	Short: "Hash and verify the protected binaries",
}

var binariesHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Print the hash manifest of the configured binaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}

		manifest, err := rt.binaryChecker(nil).Manifest(rt.cfg.Binaries)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	},
}

var binariesVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify binaries against the signed manifest",
	Long: `Verify the configuration signature, then hash every binary listed in
its "binaryHashes" section and compare.`,
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

		checker := rt.binaryChecker(pub)
		ci := rt.configIntegrity(pub, rt.keyVault(pub), checker)
		verified, err := ci.VerifyConfig(pw)
		if err != nil {
			return fmt.Errorf("configuration rejected: %w", err)
		}

		report := checker.VerifyAll(verified.BinaryHashes)
		if report.Bypassed {
			fmt.Println("⚠ Binary integrity checks bypassed")
			return nil
		}
		if len(report.Results) == 0 {
			fmt.Println("No binaries listed in the signed configuration")
		}

		for _, r := range report.Results {
			printIntegrityResult(r)
		}
		if !report.AllValid {
			return fmt.Errorf("binary integrity check failed")
		}
		return nil
	},
}

func printIntegrityResult(r types.IntegrityResult) {
	if r.Valid {
		fmt.Printf("✓ %-20s %s\n", r.Name, r.Path)
		return
	}
	fmt.Printf("✗ %-20s %s: %s\n", r.Name, r.Path, r.Kind)
	if r.Kind == types.IntegrityHashMismatch {
		fmt.Printf("    expected %s\n    actual   %s\n", r.Expected, r.Actual)
	}
}

func init() {
	addPasswordFlags(binariesVerifyCmd, true, false)

	binariesCmd.AddCommand(binariesHashCmd)
	binariesCmd.AddCommand(binariesVerifyCmd)
	rootCmd.AddCommand(binariesCmd)
}
