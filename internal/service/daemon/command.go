package daemon

import (
	"context"
	"fmt"

	"github.com/lucasschonrock/spring-input-boolean/internal/api/admin"
	"github.com/lucasschonrock/spring-input-boolean/internal/config"
	"github.com/lucasschonrock/spring-input-boolean/internal/guard"
	"github.com/lucasschonrock/spring-input-boolean/internal/logger"
	"github.com/lucasschonrock/spring-input-boolean/internal/metrics"
	"github.com/lucasschonrock/spring-input-boolean/internal/notify"
	"github.com/lucasschonrock/spring-input-boolean/internal/override"
	"github.com/lucasschonrock/spring-input-boolean/internal/repository/registry"
	"github.com/lucasschonrock/spring-input-boolean/internal/scheduler"
	"github.com/lucasschonrock/spring-input-boolean/internal/transport/mqtt"
)

// Options controls the daemon process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// HTTPAddress provides an optional listen address override for the admin API.
	HTTPAddress string
	// RegistryFile specifies the path to persist the entity registry JSON.
	RegistryFile string
}

// Run starts the daemon and blocks until the context is canceled.
// Loads configuration first, then wires the broker bridge, loop guard,
// override channel, scheduler and admin API.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "spring-daemon")

	// Load configuration first to get broker and entity settings.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}

	// Use paths from config unless overridden by command line options.
	registryFile := settings.RegistryFile
	if opts.RegistryFile != "" {
		registryFile = opts.RegistryFile
	}

	httpAddress := settings.HTTPAddress
	if opts.HTTPAddress != "" {
		httpAddress = opts.HTTPAddress
	}

	// Connect to the broker; this retries until the context is canceled.
	bridge, err := mqtt.Connect(ctx, mqtt.Config{
		BrokerURL:   settings.BrokerURL,
		ClientID:    settings.ClientID,
		TopicPrefix: settings.TopicPrefix,
	})
	if err != nil {
		return fmt.Errorf("connect bridge: %w", err)
	}

	//nolint:errcheck // Disconnecting from the broker does not fail.
	defer bridge.Close()

	// The bridge doubles as the snapshot reader for the causation guard.
	loopGuard, err := guard.New(guard.Config{
		Strategy: guard.Strategy(settings.Guard.Strategy),
		Window:   settings.Guard.Window,
		Grace:    settings.Guard.Grace,
		Capacity: settings.Guard.Capacity,
	}, bridge)
	if err != nil {
		return fmt.Errorf("initialise loop guard: %w", err)
	}

	m := metrics.New()
	overrides := override.NewStore(settings.OverrideTTL)
	notifier := notify.NewDispatcher(bridge, settings.FallbackTarget, m)
	sched := scheduler.New(loopGuard, overrides, bridge, bridge, notifier, m)

	svc, err := newService(ctx, settings, sched, registry.NewFileRepository(registryFile))
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	changes, err := bridge.SubscribeChanges(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to state events: %w", err)
	}

	err = bridge.SubscribeActions(ctx, func(ctx context.Context, raw string) {
		action, ok := overrides.Apply(ctx, raw)
		if !ok {
			return
		}

		m.OverridesTotal.WithLabelValues(string(action.Kind)).Inc()
	})
	if err != nil {
		return fmt.Errorf("subscribe to override actions: %w", err)
	}

	if httpAddress != "" {
		api := admin.NewServer(sched, overrides, m, logger.Logger().Desugar())

		go func() {
			if err := api.Run(ctx, httpAddress); err != nil {
				logger.Errorf(ctx, "Admin API stopped: %v", err)
			}
		}()
	}

	logger.InfoKV(ctx, "Daemon running",
		"broker", settings.BrokerURL,
		"topic_prefix", settings.TopicPrefix,
		"guard_strategy", settings.Guard.Strategy,
	)

	runErr := sched.Run(ctx, svc.pump(ctx, changes))

	// Persist the registry with a fresh context; ctx is canceled here.
	if err := svc.saveRegistry(context.WithoutCancel(ctx)); err != nil {
		logger.Errorf(ctx, "Failed to persist registry on shutdown: %v", err)
	}

	logger.Info(ctx, "Daemon stopped")

	return runErr
}
