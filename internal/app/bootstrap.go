// Package app bootstraps the gateway: it loads configuration, brings up
// both telemetry sinks, builds the registry, resolver, and dispatcher, and
// runs the MCP server plus the optional dashboard until the context ends.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"govgate/internal/auth"
	"govgate/internal/config"
	"govgate/internal/dashboard"
	"govgate/internal/dispatch"
	"govgate/internal/gateway"
	"govgate/internal/ops"
	"govgate/internal/platform"
	"govgate/internal/registry"
	"govgate/internal/telemetry"
	"govgate/pkg/logging"
)

// Config carries the command line switches into bootstrapping.
type Config struct {
	Debug     bool
	ConfigDir string
	Version   string
}

// Application owns every long-lived component of one gateway process.
type Application struct {
	config    config.GatewayConfig
	journal   *telemetry.Journal
	store     *telemetry.Store
	recorder  *telemetry.Recorder
	registry  *registry.Registry
	resolver  *auth.Resolver
	gateway   *gateway.Server
	dashboard *dashboard.Server
}

// NewApplication loads configuration and wires all components together.
// Nothing is serving yet when it returns; call Run.
func NewApplication(cfg Config) (*Application, error) {
	var (
		gatewayCfg config.GatewayConfig
		err        error
	)
	if cfg.ConfigDir != "" {
		gatewayCfg, err = config.LoadConfigFromPath(cfg.ConfigDir)
	} else {
		gatewayCfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	level := logging.ParseLevel(gatewayCfg.GlobalSettings.LogLevel)
	if cfg.Debug {
		level = logging.LevelDebug
	}
	// Stdout carries the stdio MCP transport, so logs go to stderr and
	// optionally a file.
	if gatewayCfg.GlobalSettings.LogFile != "" {
		if err := logging.InitWithFile(level, gatewayCfg.GlobalSettings.LogFile); err != nil {
			return nil, err
		}
	} else {
		logging.Init(level, os.Stderr)
	}

	journal, err := telemetry.OpenJournal(gatewayCfg.Telemetry.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("open telemetry journal: %w", err)
	}

	// The relational sink is best effort: a store that cannot open leaves
	// the gateway running on the journal alone.
	var store *telemetry.Store
	if gatewayCfg.Telemetry.StorePath != "" {
		store, err = telemetry.OpenStore(gatewayCfg.Telemetry.StorePath)
		if err != nil {
			logging.Warn("Bootstrap", "Relational telemetry store unavailable, continuing with journal only: %v", err)
			store = nil
		}
	}

	recorder := telemetry.NewRecorder(journal, store)

	environments := make([]auth.Environment, 0, len(gatewayCfg.Environments))
	for _, env := range gatewayCfg.Environments {
		environments = append(environments, auth.Environment{
			Name:              env.Name,
			BaseURL:           env.BaseURL,
			DefaultTenantRoot: env.DefaultTenantRoot,
		})
	}
	defaultEnv, ok := gatewayCfg.DefaultEnvironment()
	if !ok {
		journal.Close()
		store.Close()
		return nil, fmt.Errorf("no environments configured")
	}

	resolver, err := auth.NewResolver(environments, defaultEnv.Name, nil)
	if err != nil {
		journal.Close()
		store.Close()
		return nil, fmt.Errorf("build auth resolver: %w", err)
	}

	reg := registry.New()
	dispatcher := dispatch.New(reg, recorder, resolver)

	if err := ops.RegisterAll(ops.Deps{
		Registry: reg,
		Recorder: recorder,
		Resolver: resolver,
		Invoker: func() ops.Invoker {
			return platform.NewClient(resolver.Environment().BaseURL)
		},
		Version: cfg.Version,
	}); err != nil {
		journal.Close()
		store.Close()
		return nil, fmt.Errorf("register operations: %w", err)
	}

	if len(gatewayCfg.Groups.Enabled) > 0 {
		if _, err := reg.EnableGroups(gatewayCfg.Groups.Enabled); err != nil {
			journal.Close()
			store.Close()
			return nil, fmt.Errorf("enable configured groups: %w", err)
		}
	}

	app := &Application{
		config:   gatewayCfg,
		journal:  journal,
		store:    store,
		recorder: recorder,
		registry: reg,
		resolver: resolver,
		gateway: gateway.New(gateway.Config{
			Name:      "govgate",
			Version:   cfg.Version,
			Transport: gatewayCfg.Server.Transport,
			Host:      gatewayCfg.Server.Host,
			Port:      gatewayCfg.Server.Port,
		}, reg, dispatcher),
	}
	if gatewayCfg.Dashboard.Listen != "" {
		app.dashboard = dashboard.New(gatewayCfg.Dashboard.Listen, store)
	}

	// Sessions always record: the journal is the required sink, and store
	// writes already degrade to no-ops on their own when the store is
	// missing or disabled.
	app.recorder.StartSession(app.gateway.SessionID(), os.Getenv("USER"), true)

	return app, nil
}

// Run serves until the context ends or an interrupt arrives, then shuts
// everything down in reverse order.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.gateway.Start(ctx); err != nil {
		a.shutdown(context.Background())
		return fmt.Errorf("start gateway: %w", err)
	}
	if a.dashboard != nil {
		if err := a.dashboard.Start(); err != nil {
			logging.Error("Bootstrap", err, "Dashboard failed to start, continuing without it")
			a.dashboard = nil
		}
	}

	logging.Info("Bootstrap", "Gateway running (session %s, environment %s)",
		a.gateway.SessionID(), a.resolver.Environment().Name)

	<-ctx.Done()
	return a.shutdown(context.Background())
}

func (a *Application) shutdown(ctx context.Context) error {
	logging.Info("Bootstrap", "Shutting down")

	if a.dashboard != nil {
		if err := a.dashboard.Stop(ctx); err != nil {
			logging.Error("Bootstrap", err, "Error stopping dashboard")
		}
	}
	if err := a.gateway.Stop(ctx); err != nil {
		logging.Error("Bootstrap", err, "Error stopping gateway")
	}

	if a.store != nil {
		a.store.Flush()
		if err := a.store.Close(); err != nil {
			logging.Error("Bootstrap", err, "Error closing telemetry store")
		}
	}
	if err := a.journal.Close(); err != nil {
		logging.Error("Bootstrap", err, "Error closing telemetry journal")
	}

	logging.Close()
	return nil
}
