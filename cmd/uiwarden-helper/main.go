package main

import (
	"os"

	"github.com/cuemby/uiwarden/pkg/config"
	"github.com/cuemby/uiwarden/pkg/helper"
	"github.com/cuemby/uiwarden/pkg/log"
	"github.com/spf13/cobra"
)

// exitCode is set by the root command; cobra itself only sees success
var exitCode = helper.ExitSuccess

var rootCmd = &cobra.Command{
	Use:   "uiwarden-helper <command> [args...]",
	Short: "Privileged helper, invoked by the orchestrator with a session token",
	Long: `uiwarden-helper authenticates the session token handed over in
MCP_SESSION_TOKEN and MCP_SESSION_SECRET, runs one command and prints its
JSON result on stdout. Logs go to stderr.

Exit codes: 0 success, 1 not found, 2 invalid arguments, 3 action failed,
4 read-back failed, 5 element not found, 10 session authentication failed.`,
	// Arguments belong to the command, including anything that looks like a flag
	DisableFlagParsing: true,
	Args:               cobra.ArbitraryArgs,
	SilenceUsage:       true,
	SilenceErrors:      true,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Default()
		config.ApplyEnv(cfg, os.LookupEnv)
		cfg.Log.Level = log.WarnLevel
		cfg.Log.JSON = true

		logger := log.WithComponent(log.New(cfg.LogConfig()), "helper")

		runner := helper.NewRunner(helper.RunnerOptions{
			Auth:   helper.AuthOptionsFromConfig(cfg, logger),
			Lookup: os.LookupEnv,
			Stdout: cmd.OutOrStdout(),
			Logger: logger,
		})
		exitCode = runner.Run(cmd.Context(), args)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(helper.ExitInvalidArgs)
	}
	os.Exit(exitCode)
}
