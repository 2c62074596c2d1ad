package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/uiwarden/pkg/api"
	"github.com/cuemby/uiwarden/pkg/audit"
	"github.com/cuemby/uiwarden/pkg/events"
	"github.com/cuemby/uiwarden/pkg/health"
	"github.com/cuemby/uiwarden/pkg/helper"
	"github.com/cuemby/uiwarden/pkg/log"
	"github.com/cuemby/uiwarden/pkg/metrics"
	"github.com/cuemby/uiwarden/pkg/orchestrator"
	"github.com/cuemby/uiwarden/pkg/reconciler"
	"github.com/cuemby/uiwarden/pkg/security"
	"github.com/cuemby/uiwarden/pkg/storage"
	"github.com/spf13/cobra"
)

// stack is a fully wired orchestrator
type stack struct {
	gate         *orchestrator.Gate
	orchestrator *orchestrator.Orchestrator
	launcher     *helper.Launcher
}

// buildStack wires every component to pub and runs the startup gate. The
// returned stack is usable even when the gate blocked; err reports the block.
func buildStack(rt *runtime, pub events.Publisher, publicPassword string) (*stack, error) {
	keys := rt.keyVault(pub)
	checker := rt.binaryChecker(pub)
	ci := rt.configIntegrity(pub, keys, checker)

	gate := orchestrator.NewGate(orchestrator.GateOptions{
		Keys:      keys,
		Config:    ci,
		Binaries:  checker,
		HelperKey: rt.cfg.HelperKey,
		Logger:    log.WithComponent(rt.logger, "gate"),
		Events:    pub,
	})

	engine, err := rt.policyEngine(pub)
	if err != nil {
		return nil, err
	}

	auth, err := security.NewSessionTokenAuthenticator(security.SessionOptions{
		DevMode: rt.cfg.Development,
		Bypass:  rt.cfg.Bypass.SessionAuth,
		Logger:  log.WithComponent(rt.logger, "session"),
		Events:  pub,
	})
	if err != nil {
		return nil, err
	}

	helperPath := rt.cfg.HelperPath()
	if helperPath == "" {
		return nil, fmt.Errorf("helper %q is not listed under binaries", rt.cfg.HelperKey)
	}
	launcher, err := helper.NewLauncher(helper.LauncherOptions{
		Path:       helperPath,
		Auth:       auth,
		Timeout:    rt.cfg.HelperTimeout,
		DevMode:    rt.cfg.Development,
		BypassAuth: rt.cfg.Bypass.SessionAuth,
		Logger:     log.WithComponent(rt.logger, "launcher"),
	})
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Gate:     gate,
		Policy:   engine,
		Launcher: launcher,
		Logger:   log.WithComponent(rt.logger, "orchestrator"),
	})
	if err != nil {
		return nil, err
	}

	_, err = gate.Run(publicPassword)
	return &stack{gate: gate, orchestrator: orch, launcher: launcher}, err
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the startup checks and serve health and metrics",
	Long: `Run the startup integrity gate and keep serving /health, /ready,
/live, /status and /metrics. Security events are recorded in the audit journal
while the server runs, and the integrity checks are repeated every
recheckInterval together with a helper ping.

A blocked gate keeps the server up but not ready, so the failure stays
visible to monitoring. Use --exit-on-block to exit instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		pw, err := requirePassword(cmd, "public-password")
		if err != nil {
			return err
		}
		exitOnBlock, _ := cmd.Flags().GetBool("exit-on-block")
		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			rt.cfg.MetricsAddr = addr
		}

		metrics.SetVersion(Version)
		for _, name := range rt.cfg.Bypass.Active() {
			log.Bypass(rt.logger, name, "enabled by configuration")
		}

		store, err := storage.NewBoltStore(rt.cfg.AuditDir)
		if err != nil {
			return fmt.Errorf("failed to open audit journal: %v", err)
		}
		defer store.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		recorder := audit.NewRecorder(store, log.WithComponent(rt.logger, "audit"))
		recorder.Start(broker)
		defer recorder.Stop()

		st, gateErr := buildStack(rt, broker, pw)
		if st == nil {
			return gateErr
		}
		if gateErr != nil {
			status := st.gate.Status()
			fmt.Fprintf(os.Stderr, "✗ Startup blocked at %s: %s (%s)\n", status.Stage, status.Message, status.Code)
			if exitOnBlock {
				return gateErr
			}
		} else {
			fmt.Println("✓ Startup integrity checks passed")
		}

		if rt.cfg.Recheck > 0 {
			rec := reconciler.NewReconciler(reconciler.Options{
				Gate:           st.gate,
				PublicPassword: pw,
				Checker:        health.NewHelperChecker(st.launcher),
				Interval:       rt.cfg.Recheck,
				Logger:         log.WithComponent(rt.logger, "reconciler"),
			})
			rec.Start()
			defer rec.Stop()
		}

		hs := api.NewHealthServer(st.gate, Version)
		errCh := make(chan error, 1)
		go func() {
			if err := hs.Start(rt.cfg.MetricsAddr); err != nil {
				errCh <- fmt.Errorf("health server error: %v", err)
			}
		}()

		fmt.Printf("Serving health and metrics on %s. Press Ctrl+C to stop.\n", rt.cfg.MetricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		var runErr error
		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case runErr = <-errCh:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("Health server shutdown failed")
		}
		if failed, discarded := recorder.Dropped(), broker.Dropped(); failed > 0 || discarded > 0 {
			rt.logger.Warn().
				Int("store_failures", failed).
				Uint64("broker_dropped", discarded).
				Msg("Some security events were not recorded")
		}
		return runErr
	},
}

var invokeCmd = &cobra.Command{
	Use:   "invoke <command> [args...]",
	Short: "Run the startup checks, then send one command to the helper",
	Long: `Run the startup gate, check the target process against the policy and
invoke the helper with a fresh session token. The helper's JSON result is
printed and its exit code is returned.

Examples:
  uiwarden invoke ping
  uiwarden invoke --name notepad.exe focus`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		pw, err := requirePassword(cmd, "public-password")
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		path, _ := cmd.Flags().GetString("path")
		signer, _ := cmd.Flags().GetString("signer")

		rec, closeAudit := rt.openAudit()
		defer closeAudit()

		st, err := buildStack(rt, publisher(rec), pw)
		if err != nil {
			return err
		}

		var target *orchestrator.Target
		if name != "" || path != "" {
			target = &orchestrator.Target{Name: name, Path: path, Signer: signer}
		}

		outcome, err := st.orchestrator.Invoke(cmd.Context(), target, args[0], args[1:]...)
		if err != nil {
			return err
		}
		if err := outcome.Result.Write(os.Stdout); err != nil {
			return err
		}
		if outcome.ExitCode != helper.ExitSuccess {
			return fmt.Errorf("helper exited with code %d", outcome.ExitCode)
		}
		return nil
	},
}

func init() {
	addPasswordFlags(serveCmd, true, false)
	serveCmd.Flags().String("metrics-addr", "", "Listen address for health and metrics (overrides settings)")
	serveCmd.Flags().Bool("exit-on-block", false, "Exit when the startup gate blocks")

	addPasswordFlags(invokeCmd, true, false)
	invokeCmd.Flags().String("name", "", "Target process name")
	invokeCmd.Flags().String("path", "", "Target executable path")
	invokeCmd.Flags().String("signer", "", "Signer of the target executable")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(invokeCmd)
}
