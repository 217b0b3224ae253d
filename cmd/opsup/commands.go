package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsup/opsup"
	"github.com/opsup/opsup/internal/config"
	"github.com/opsup/opsup/internal/logger"
	"github.com/opsup/opsup/internal/store"
	"github.com/opsup/opsup/pkg/client"
)

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "opsup",
		Short: "Supervise a local CLI that serves an HTTP/JSON API",
		Long: "opsup launches an externally-installed CLI against a working directory,\n" +
			"discovers the port and path prefix its API bound to, keeps probing its\n" +
			"health, and exposes status and diagnostics to local tooling.",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newRestartCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newDoctorCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var flags ServeFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor daemon and its control API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(flags)
		},
	}
	cmd.Flags().StringVarP(&flags.ConfigPath, "config", "c", "", "path to TOML config file")
	cmd.Flags().StringVarP(&flags.WorkDir, "workdir", "w", "", "working directory for the CLI (defaults to the last one used)")
	cmd.Flags().BoolVar(&flags.NoStart, "no-start", false, "do not start the CLI immediately")
	return cmd
}

func runServe(flags ServeFlags) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Color)
	if err := opsup.RegisterMetricsDefault(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	kv, err := opsup.NewStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = kv.Close() }()
	ctx := context.Background()
	if err := kv.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("store schema: %w", err)
	}

	// Working directory resolution: explicit flag wins, then config, then
	// the last one persisted across sessions.
	workDir := flags.WorkDir
	if workDir == "" {
		workDir = cfg.Supervisor.WorkingDirectory
	}
	if workDir == "" {
		if last, ok, _ := kv.Get(ctx, store.KeyLastWorkingDirectory); ok {
			workDir = last
		}
	}
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	cfg.Supervisor.WorkingDirectory = workDir
	_ = kv.Set(ctx, store.KeyLastWorkingDirectory, workDir)

	sup := opsup.New(cfg.Supervisor, opsup.Options{Logger: log})
	defer func() { _ = sup.Shutdown() }()

	unsubscribe := sup.Subscribe(func(status opsup.Status, lastError string) {
		if lastError != "" {
			log.Warn("status changed", "status", status.String(), "error", lastError)
			return
		}
		log.Info("status changed", "status", status.String())
		if status == opsup.StatusConnected {
			_ = kv.Set(ctx, store.KeyLastEndpoint, sup.APIURL())
		}
	})
	defer unsubscribe()

	srv, err := opsup.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, sup)
	if err != nil {
		return fmt.Errorf("control api: %w", err)
	}
	log.Info("control api listening", "addr", cfg.Server.Listen)

	if !flags.NoStart {
		if err := sup.Start(); err != nil {
			log.Warn("start not enqueued", "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return nil
}

func addClientFlags(cmd *cobra.Command, flags *ClientFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", client.DefaultConfig().BaseURL, "control API base URL of the running daemon")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", client.DefaultConfig().Timeout, "control API request timeout")
}

func newClient(flags ClientFlags) *client.Client {
	return client.New(client.Config{BaseURL: flags.APIUrl, Timeout: flags.APITimeout})
}

func newStartCmd() *cobra.Command {
	var flags ClientFlags
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Ask the daemon to start the CLI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return newClient(flags).Start(cmd.Context())
		},
	}
	addClientFlags(cmd, &flags)
	return cmd
}

func newStopCmd() *cobra.Command {
	var flags ClientFlags
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the daemon to stop the CLI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return newClient(flags).Stop(cmd.Context())
		},
	}
	addClientFlags(cmd, &flags)
	return cmd
}

func newRestartCmd() *cobra.Command {
	var flags ClientFlags
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Ask the daemon to restart the CLI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return newClient(flags).Restart(cmd.Context())
		},
	}
	addClientFlags(cmd, &flags)
	return cmd
}

func newStatusCmd() *cobra.Command {
	var flags ClientFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's current status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := newClient(flags).Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("status:        %s\n", st.Status)
			if st.APIURL != "" {
				fmt.Printf("api url:       %s\n", st.APIURL)
			}
			fmt.Printf("cli available: %v\n", st.CliAvailable)
			if st.LastError != "" {
				fmt.Printf("last error:    %s\n", st.LastError)
			}
			return nil
		},
	}
	addClientFlags(cmd, &flags)
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var flags ClientFlags
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Render a diagnostic report from the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), newClient(flags))
		},
	}
	addClientFlags(cmd, &flags)
	return cmd
}

// runDoctor renders the human-readable diagnostic report: manager state,
// last exit code and error, and per-endpoint probe outcomes. The report lets
// a human distinguish "CLI never started", "CLI started but API never came
// up", and "API up but one endpoint failing".
func runDoctor(ctx context.Context, c *client.Client) error {
	dbg, err := c.Debug(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("status:            %s\n", dbg.Status)
	fmt.Printf("cli path:          %s\n", orNone(dbg.CliPath))
	fmt.Printf("mode:              %s\n", orNone(dbg.Mode))
	fmt.Printf("working directory: %s\n", orNone(dbg.WorkingDirectory))
	fmt.Printf("api url:           %s\n", orNone(dbg.APIURL))
	fmt.Printf("starts/restarts:   %d/%d\n", dbg.StartCount, dbg.RestartCount)
	if dbg.PID != 0 {
		fmt.Printf("pid:               %d\n", dbg.PID)
	}
	if dbg.LastExitCode != nil {
		fmt.Printf("last exit code:    %d\n", *dbg.LastExitCode)
	}
	if dbg.LastError != "" {
		fmt.Printf("last error:        %s\n", dbg.LastError)
	}

	if dbg.APIURL == "" {
		fmt.Println("\nno api address resolved; endpoint probes skipped")
		return nil
	}
	results, err := c.Doctor(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\nendpoints:")
	for _, r := range results {
		mark := "ok"
		if !r.OK {
			mark = "FAIL"
		}
		fmt.Printf("  %-14s %-4s %4dms  %s\n", r.Name, mark, r.ElapsedMS, r.Summary)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
