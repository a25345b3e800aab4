package action

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lucasschonrock/spring-input-boolean/internal/config"
	"github.com/lucasschonrock/spring-input-boolean/internal/logger"
	"github.com/lucasschonrock/spring-input-boolean/internal/override"
	"github.com/lucasschonrock/spring-input-boolean/internal/transport/mqtt"
)

// Options configures a single override action publish.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// BrokerURL overrides the broker address from config when specified.
	BrokerURL string

	// EntityID is the target entity key.
	EntityID string

	// Kind names the override: "off10", "off20" or "reactivate".
	Kind string
}

// ErrUnknownKind indicates an unsupported override kind argument.
var ErrUnknownKind = errors.New("unknown override kind")

// Run publishes one override action to the daemon's action topic and
// returns once the broker acknowledges it.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "spring-override")

	kind, err := parseKind(opts.Kind)
	if err != nil {
		return err
	}

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Use broker address from options if provided, otherwise use config.
	brokerURL := cfg.BrokerURL
	if opts.BrokerURL != "" {
		brokerURL = opts.BrokerURL
	}

	bridge, err := mqtt.Connect(ctx, mqtt.Config{
		BrokerURL:   brokerURL,
		ClientID:    cfg.ClientID + "-override",
		TopicPrefix: cfg.TopicPrefix,
	})
	if err != nil {
		return fmt.Errorf("connect bridge: %w", err)
	}

	//nolint:errcheck // Disconnecting from the broker does not fail.
	defer bridge.Close()

	raw := override.FormatAction(kind, opts.EntityID)

	if err := bridge.PublishAction(ctx, raw); err != nil {
		return fmt.Errorf("publish action: %w", err)
	}

	logger.InfoKV(ctx, "Override published", "entity", opts.EntityID, "action", raw)

	return nil
}

// parseKind maps the CLI argument to the wire-level override kind.
func parseKind(s string) (override.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off10":
		return override.KindOff10, nil
	case "off20":
		return override.KindOff20, nil
	case "reactivate", "":
		return override.KindReactivate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}
