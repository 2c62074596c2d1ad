package main

import (
	"fmt"

	"github.com/cuemby/uiwarden/pkg/events"
	"github.com/cuemby/uiwarden/pkg/log"
	"github.com/cuemby/uiwarden/pkg/security"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue and verify helper session tokens",
}

func tokenAuthenticator(cmd *cobra.Command, rt *runtime, pub events.Publisher) (*security.SessionTokenAuthenticator, error) {
	secretHex, _ := cmd.Flags().GetString("secret")

	var secret []byte
	if secretHex != "" {
		s, err := security.SecretFromHex(secretHex)
		if err != nil {
			return nil, err
		}
		secret = s
	}

	return security.NewSessionTokenAuthenticator(security.SessionOptions{
		Secret:  secret,
		DevMode: rt.cfg.Development,
		Bypass:  rt.cfg.Bypass.SessionAuth,
		Logger:  log.WithComponent(rt.logger, "session"),
		Events:  pub,
	})
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a session token",
	Long: `Issue a session token. Without --secret a new random secret is
generated and printed along with the token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		auth, err := tokenAuthenticator(cmd, rt, nil)
		if err != nil {
			return err
		}

		token, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		fmt.Printf("MCP_SESSION_SECRET=%s\n", auth.SecretHex())
		fmt.Printf("MCP_SESSION_TOKEN=%s\n", token)
		return nil
	},
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Verify a session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		if s, _ := cmd.Flags().GetString("secret"); s == "" && !rt.cfg.Bypass.SessionAuth {
			return fmt.Errorf("--secret is required")
		}

		rec, closeAudit := rt.openAudit()
		defer closeAudit()

		auth, err := tokenAuthenticator(cmd, rt, publisher(rec))
		if err != nil {
			return err
		}

		if err := auth.VerifyToken(args[0]); err != nil {
			return fmt.Errorf("token rejected (%s): %w", security.ErrorCode(err), err)
		}
		fmt.Printf("✓ token valid (window %s)\n", auth.Window())
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().String("secret", "", "Hex-encoded 32-byte session secret")
	tokenVerifyCmd.Flags().String("secret", "", "Hex-encoded 32-byte session secret")

	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenVerifyCmd)
	rootCmd.AddCommand(tokenCmd)
}
