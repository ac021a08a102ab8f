package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/appkins-org/gceapi/api/instances"
	"github.com/appkins-org/gceapi/pkg/client"
	"github.com/appkins-org/gceapi/pkg/config"
	"github.com/appkins-org/gceapi/pkg/gce"
	"github.com/appkins-org/gceapi/pkg/operations"
	"github.com/appkins-org/gceapi/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "gceapi",
		Short:         "GCE compatible instance API for OpenStack",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the instances API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Log)
			return run(cmd.Context(), cfg)
		},
	}
	root.AddCommand(serve)

	return root
}

// setupLogging configures the global zerolog logger.
func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func run(ctx context.Context, cfg *config.Config) error {
	log.Info().
		Str("auth_url", cfg.OpenStack.AuthURL).
		Str("bind_addr", cfg.Server.BindAddr).
		Str("bind_port", cfg.Server.BindPort).
		Msg("Starting gceapi service")

	clients, err := client.NewClients(ctx, cfg.OpenStack)
	if err != nil {
		return fmt.Errorf("failed to create OpenStack clients: %w", err)
	}

	store := operations.NewStore(cfg.Operations.DBPath)
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize operation store: %w", err)
	}
	defer store.Close()

	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewMetrics(cfg.Metrics.Namespace)
	}

	qualifier := gce.NewQualifier(cfg.Server.PublicURL)
	register := operations.NewRegister(store, qualifier, metrics, log.Logger.With().Str("component", "operations").Logger())

	handler := &instances.Handler{
		Controller: &instances.Controller{
			Instances:  &client.InstanceAPI{Clients: clients},
			Addresses:  &client.AddressAPI{Clients: clients},
			Disks:      &client.DiskAPI{Clients: clients},
			Operations: register,
			Projector: &instances.Projector{
				Qualifier: qualifier,
				Log:       log.Logger.With().Str("component", "projector").Logger(),
			},
		},
		Operations: register,
		Metrics:    metrics,
		Log:        log.Logger.With().Str("component", "http").Logger(),
	}

	addr, err := netip.ParseAddrPort(fmt.Sprintf("%s:%s", cfg.Server.BindAddr, cfg.Server.BindPort))
	if err != nil {
		return fmt.Errorf("failed to parse bind address: %w", err)
	}

	server := &http.Server{
		Handler:      handler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Serve until an interrupt signal asks for a graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("address", addr.String()).Msg("Starting HTTP server")
	if err := instances.ListenAndServe(ctx, addr, server); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}
