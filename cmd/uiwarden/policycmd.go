package main

import (
	"fmt"

	"github.com/cuemby/uiwarden/pkg/policy"
	"github.com/spf13/cobra"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Evaluate the process allow/deny policy",
}

var policyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a process may be automated",
	Long: `Check a process against the configured policy.

Examples:
  uiwarden policy check --name notepad.exe
  uiwarden policy check --path 'C:\Windows\System32\calc.exe' --signer 'Microsoft Windows'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		path, _ := cmd.Flags().GetString("path")
		signer, _ := cmd.Flags().GetString("signer")

		rec, closeAudit := rt.openAudit()
		defer closeAudit()

		engine, err := rt.policyEngine(publisher(rec))
		if err != nil {
			return err
		}

		var d policy.Decision
		if signer != "" {
			d = engine.CheckProcessWithSignature(name, path, signer)
		} else {
			d = engine.CheckProcess(name, path)
		}

		if d.Allowed {
			fmt.Printf("✓ allowed (%s): %s\n", d.Code, d.Reason)
			return nil
		}
		fmt.Printf("✗ denied (%s): %s\n", d.Code, d.Reason)
		return fmt.Errorf("process denied")
	},
}

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Path utilities",
}

var pathValidateCmd = &cobra.Command{
	Use:   "validate <path>...",
	Short: "Validate Windows absolute paths",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		invalid := 0
		for _, p := range args {
			if policy.ValidatePath(p) {
				fmt.Printf("✓ %s\n", p)
			} else {
				fmt.Printf("✗ %s\n", p)
				invalid++
			}
		}
		if invalid > 0 {
			return fmt.Errorf("%d invalid path(s)", invalid)
		}
		return nil
	},
}

func init() {
	policyCheckCmd.Flags().String("name", "", "Process name, e.g. notepad.exe")
	policyCheckCmd.Flags().String("path", "", "Absolute executable path")
	policyCheckCmd.Flags().String("signer", "", "Signer of the executable")

	policyCmd.AddCommand(policyCheckCmd)
	pathCmd.AddCommand(pathValidateCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(pathCmd)
}
