// Command policyguard runs the policy compliance daemon: it loads the
// policy file, connects to the configured cloud provider, and evaluates
// every policy on its own cadence until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/catherinevee/policyguard/internal/cache"
	"github.com/catherinevee/policyguard/internal/config"
	"github.com/catherinevee/policyguard/internal/daemon"
	"github.com/catherinevee/policyguard/internal/engine"
	"github.com/catherinevee/policyguard/internal/events"
	"github.com/catherinevee/policyguard/internal/logger"
	"github.com/catherinevee/policyguard/internal/monitoring"
	"github.com/catherinevee/policyguard/internal/policy"
	"github.com/catherinevee/policyguard/internal/providers"
	"github.com/catherinevee/policyguard/internal/remediation"
	"github.com/catherinevee/policyguard/internal/resilience"
	"github.com/catherinevee/policyguard/internal/state"
)

func main() {
	configPath := flag.String("config", "policyguard.yaml", "path to the daemon configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "policyguard: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger.Initialize(logger.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	log := logger.New("main")

	policies, err := policy.Load(cfg.PolicyFile)
	if err != nil {
		return err
	}

	provider, err := providers.New(providers.Config{
		Provider:          cfg.CloudProvider,
		SubscriptionID:    cfg.SubscriptionID,
		ManagementGroupID: cfg.ManagementGroupID,
		Region:            cfg.Region,
	})
	if err != nil {
		return err
	}

	store, err := state.NewFileStore(cfg.StateFile)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	bus.Register(events.NewLogSink())

	metrics := monitoring.NewRecorder(prometheus.DefaultRegisterer)

	retry := resilience.RemediationRetryConfig()
	retry.MaxAttempts = cfg.RetryAttempts
	controller := remediation.NewController(provider, store, bus, metrics,
		remediation.WithRetryConfig(retry))

	resourceCache := cache.New(time.Duration(cfg.CacheTTLSeconds) * time.Second)
	eng := engine.New(provider, resourceCache, controller)

	d := daemon.New(eng, policies, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		return err
	}

	log.Info("Policy daemon running",
		logger.String("provider", provider.Name()),
		logger.Int("policies", len(policies)),
		logger.String("state_file", cfg.StateFile))

	<-ctx.Done()
	log.Info("Shutdown signal received")
	d.Stop()
	return nil
}
