package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/gpubox/pkg/api"
	"github.com/cuemby/gpubox/pkg/auth"
	"github.com/cuemby/gpubox/pkg/engine"
	"github.com/cuemby/gpubox/pkg/events"
	"github.com/cuemby/gpubox/pkg/lifecycle"
	"github.com/cuemby/gpubox/pkg/log"
	"github.com/cuemby/gpubox/pkg/metrics"
	"github.com/cuemby/gpubox/pkg/ports"
	"github.com/cuemby/gpubox/pkg/reconciler"
	"github.com/cuemby/gpubox/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gpubox API server",
	Long: `Run the gpubox API server.

The server opens the database, checks that the container engine answers,
starts the periodic orphan sweep and serves the REST API until it receives
SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("api-addr", "", "Address for the REST API (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := log.WithComponent("serve")
	metrics.SetVersion(Version)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	metrics.ReportError(metrics.ComponentStore, nil)

	eng := engine.NewCLI(cfg.Docker, cfg.Timeouts, engine.NewCommandFactory())
	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Default)
	err = eng.Ping(pingCtx)
	cancel()
	metrics.ReportError(metrics.ComponentEngine, err)
	if err != nil {
		// keep serving; /ready reports the engine until it answers
		logger.Warn().Err(err).Msg("Container engine is not reachable")
	}

	alloc, err := ports.NewAllocator(store, cfg.Ports.Min, cfg.Ports.Max)
	if err != nil {
		return err
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	audit := broker.Subscribe()
	go auditLoop(audit, log.WithComponent("audit"))
	defer broker.Unsubscribe(audit)

	source := telemetry.NewSystem()
	opts := lifecycle.OptionsFromConfig(cfg)
	if host, err := source.Host(); err != nil {
		logger.Warn().Err(err).Msg("Host capacity unknown, CPU quota check disabled")
	} else {
		opts.MaxCPUs = host.LogicalCPUs
		logger.Info().
			Int("cpus", host.LogicalCPUs).
			Uint64("memory_bytes", host.MemoryTotalBytes).
			Int("gpus", host.GPUs).
			Msg("Host capacity")
	}
	mgr := lifecycle.NewManager(store, eng, alloc, broker, opts)

	authn, err := auth.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, store)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	recon := reconciler.NewReconciler(mgr, cfg.SweepInterval, cfg.Timeouts.Default)
	recon.Start()
	defer recon.Stop()

	server := api.NewServer(mgr, authn, source, map[string]api.Probe{
		metrics.ComponentStore: func(ctx context.Context) error {
			_, err := store.ListUsers()
			return err
		},
		metrics.ComponentEngine: eng.Ping,
	})
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.APIAddr)
	}()

	logger.Info().
		Str("addr", cfg.APIAddr).
		Str("data_dir", cfg.DataDir).
		Int("port_min", cfg.Ports.Min).
		Int("port_max", cfg.Ports.Max).
		Str("version", Version).
		Msg("gpubox is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
	}

	// in-flight creates may be inside a long image pull
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Run)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("API server did not shut down cleanly")
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}

// auditLoop writes every lifecycle event to the audit log
func auditLoop(sub events.Subscriber, logger zerolog.Logger) {
	for event := range sub {
		e := logger.Info()
		if event.Type == events.EventPartialFailure || event.Type == events.EventOrphansDetected {
			e = logger.Warn()
		}
		e.Str("event_id", event.ID).
			Str("type", string(event.Type)).
			Str("container", event.Container).
			Uint64("actor_id", event.ActorID).
			Time("at", event.Timestamp).
			Fields(metadataFields(event.Metadata)).
			Msg(event.Message)
	}
}

func metadataFields(meta map[string]string) map[string]interface{} {
	fields := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		fields[k] = v
	}
	return fields
}
