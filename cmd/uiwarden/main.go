package main

import (
	"fmt"
	"os"

	"github.com/cuemby/uiwarden/pkg/audit"
	"github.com/cuemby/uiwarden/pkg/config"
	"github.com/cuemby/uiwarden/pkg/events"
	"github.com/cuemby/uiwarden/pkg/log"
	"github.com/cuemby/uiwarden/pkg/policy"
	"github.com/cuemby/uiwarden/pkg/security"
	"github.com/cuemby/uiwarden/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "uiwarden",
	Short: "uiwarden - security gate for the UI automation helper",
	Long: `uiwarden manages the signing keys, signed configuration, binary
manifest, session tokens and process policy that protect the privileged
UI automation helper.

Nothing reaches the helper unless the configuration signature, every
binary hash and a fresh session token check out.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"uiwarden version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "", "uiwarden YAML settings file (defaults apply when empty)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")
}

// runtime is the resolved configuration plus the shared components a
// command needs
type runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	applied []string
}

func loadRuntime(cmd *cobra.Command) (*runtime, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applied := config.ApplyEnv(cfg, os.LookupEnv)

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = log.Level(level)
	}
	if asJSON, _ := cmd.Flags().GetBool("log-json"); asJSON {
		cfg.Log.JSON = true
	}

	rt := &runtime{
		cfg:     cfg,
		logger:  log.New(cfg.LogConfig()),
		applied: applied,
	}
	if len(applied) > 0 {
		rt.logger.Debug().Strs("env", applied).Msg("Environment overrides applied")
	}
	return rt, nil
}

func (rt *runtime) keyVault(pub events.Publisher) *security.KeyVault {
	return security.NewKeyVault(security.KeyVaultOptions{
		Dir:    rt.cfg.KeyDir,
		Logger: log.WithComponent(rt.logger, "keyvault"),
		Events: pub,
	})
}

func (rt *runtime) binaryChecker(pub events.Publisher) *security.BinaryIntegrityChecker {
	return security.NewBinaryIntegrityChecker(security.BinaryIntegrityOptions{
		BaseDir: rt.cfg.BinariesDir,
		Bypass:  rt.cfg.Bypass.IntegrityCheck,
		Logger:  log.WithComponent(rt.logger, "binaries"),
		Events:  pub,
	})
}

func (rt *runtime) configIntegrity(pub events.Publisher, keys *security.KeyVault, checker *security.BinaryIntegrityChecker) *security.ConfigIntegrity {
	return security.NewConfigIntegrity(security.ConfigIntegrityOptions{
		ConfigPath:    rt.cfg.ConfigPath,
		SignaturePath: rt.cfg.SignaturePath,
		Keys:          keys,
		Binaries:      checker,
		BinaryPaths:   rt.cfg.Binaries,
		Bypass:        rt.cfg.Bypass.ConfigSignature,
		Logger:        log.WithComponent(rt.logger, "config"),
		Events:        pub,
	})
}

func (rt *runtime) policyEngine(pub events.Publisher) (*policy.Engine, error) {
	p := policy.Default()
	if rt.cfg.PolicyPath != "" {
		loaded, err := policy.LoadFile(rt.cfg.PolicyPath)
		if err != nil {
			return nil, err
		}
		p = loaded
	}
	return policy.NewEngine(p, policy.Options{
		DevMode: rt.cfg.Development,
		Logger:  log.WithComponent(rt.logger, "policy"),
		Events:  pub,
	}), nil
}

// openAudit opens the audit journal. A journal that cannot be opened, for
// example because `serve` holds its lock, disables auditing for this command.
func (rt *runtime) openAudit() (*audit.Recorder, func()) {
	store, err := storage.NewBoltStore(rt.cfg.AuditDir)
	if err != nil {
		rt.logger.Warn().Err(err).Str("dir", rt.cfg.AuditDir).Msg("Audit journal unavailable, events will not be recorded")
		return nil, func() {}
	}
	rec := audit.NewRecorder(store, log.WithComponent(rt.logger, "audit"))
	return rec, func() {
		if err := store.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("Failed to close audit journal")
		}
	}
}

// publisher converts a possibly nil recorder into an events.Publisher
func publisher(rec *audit.Recorder) events.Publisher {
	if rec == nil {
		return nil
	}
	return rec
}

// passwordFlag reads a password flag, falling back to the file flag next to it
func passwordFlag(cmd *cobra.Command, name string) (string, error) {
	pw, _ := cmd.Flags().GetString(name)
	if pw != "" {
		return pw, nil
	}
	file, _ := cmd.Flags().GetString(name + "-file")
	if file == "" {
		return "", nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s file: %v", name, err)
	}
	return string(trimNewline(data)), nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func addPasswordFlags(cmd *cobra.Command, public, private bool) {
	if public {
		cmd.Flags().String("public-password", "", "Password protecting the public key file")
		cmd.Flags().String("public-password-file", "", "File containing the public key password")
	}
	if private {
		cmd.Flags().String("private-password", "", "Password protecting the private key file")
		cmd.Flags().String("private-password-file", "", "File containing the private key password")
	}
}

func requirePassword(cmd *cobra.Command, name string) (string, error) {
	pw, err := passwordFlag(cmd, name)
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", fmt.Errorf("--%s or --%s-file is required", name, name)
	}
	return pw, nil
}
