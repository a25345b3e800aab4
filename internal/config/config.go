package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon settings loaded from YAML.
type Config struct {
	// BrokerURL is the MQTT broker address (tcp://, ssl:// or ws://).
	BrokerURL string `yaml:"broker_url"`
	// ClientID is the MQTT client identifier base; a random suffix is
	// appended at connect time.
	ClientID string `yaml:"client_id"`
	// TopicPrefix is the root of all MQTT topics used by the daemon.
	TopicPrefix string `yaml:"topic_prefix"`
	// HTTPAddress is the listen address of the admin HTTP API.
	// Empty disables the API.
	HTTPAddress string `yaml:"http_address"`
	// LogLevel is the minimum level for log output.
	LogLevel string `yaml:"log_level"`
	// RegistryFile is where the monitored-entity registry is persisted.
	RegistryFile string `yaml:"registry_file"`
	// EntityPrefix restricts auto-discovery to keys with this prefix.
	EntityPrefix string `yaml:"entity_prefix"`
	// AutoDiscover enrolls unknown entities matching EntityPrefix with
	// default settings. Enabled when unset.
	AutoDiscover *bool `yaml:"auto_discover"`
	// OverrideTTL expires unconsumed override delays. Zero keeps them
	// valid until consumed.
	OverrideTTL time.Duration `yaml:"override_ttl"`
	// FallbackTarget receives one broadcast attempt when a direct
	// notification delivery fails.
	FallbackTarget string `yaml:"fallback_target"`
	// Guard selects and tunes the loop guard.
	Guard GuardConfig `yaml:"guard"`
	// Defaults apply to every entity without an explicit override.
	Defaults EntityDefaults `yaml:"defaults"`
	// Entities configures individual monitored entities.
	Entities []EntityConfig `yaml:"entities"`
}

// GuardConfig tunes the loop guard.
type GuardConfig struct {
	// Strategy is "window" or "causation".
	Strategy string `yaml:"strategy"`
	// Window is the suppression window (window strategy).
	Window time.Duration `yaml:"window"`
	// Grace is the post-reversal read-back delay (causation strategy).
	Grace time.Duration `yaml:"grace"`
	// Capacity bounds the causation token set (causation strategy).
	Capacity int `yaml:"capacity"`
}

// EntityDefaults are the settings applied to entities that do not
// override them.
type EntityDefaults struct {
	// Delay is the reversal delay.
	Delay time.Duration `yaml:"delay"`
	// EnableNotifications turns on off-transition notifications.
	// Enabled when unset.
	EnableNotifications *bool `yaml:"enable_notifications"`
	// NotificationTargets lists default notification targets.
	NotificationTargets []string `yaml:"notification_targets"`
	// ProcessActorless reverses changes lacking an actor id.
	ProcessActorless bool `yaml:"process_actorless"`
}

// EntityConfig overrides defaults for one monitored entity.
type EntityConfig struct {
	// EntityID is the monitored entity key.
	EntityID string `yaml:"entity_id"`
	// Label is the friendly name used in notifications.
	Label string `yaml:"label"`
	// Delay overrides the default reversal delay when set.
	Delay *time.Duration `yaml:"delay"`
	// EnableNotifications overrides the default when set.
	EnableNotifications *bool `yaml:"enable_notifications"`
	// NotificationTargets overrides the default target list when set.
	NotificationTargets []string `yaml:"notification_targets"`
	// ProcessActorless overrides the default when set.
	ProcessActorless *bool `yaml:"process_actorless"`
}

// EntitySettings is the flat, fully resolved per-entity behaviour.
type EntitySettings struct {
	// Label is the friendly name used in notifications.
	Label string
	// Delay is the reversal delay.
	Delay time.Duration
	// EnableNotifications turns on off-transition notifications.
	EnableNotifications bool
	// NotificationTargets lists notification targets.
	NotificationTargets []string
	// ProcessActorless reverses changes lacking an actor id.
	ProcessActorless bool
}

const (
	// DefaultConfigFilename is the default settings file name.
	DefaultConfigFilename = "spring-settings.yaml"

	// DefaultRegistryFilename is the default entity registry file name.
	DefaultRegistryFilename = "spring-entities.json"

	// DefaultClientID is the MQTT client identifier base.
	DefaultClientID = "spring-daemon"

	// DefaultTopicPrefix roots the daemon's MQTT topics.
	DefaultTopicPrefix = "spring"

	// DefaultHTTPAddress is the admin API listen address.
	DefaultHTTPAddress = ":8099"

	// DefaultEntityPrefix restricts discovery to boolean helper keys.
	DefaultEntityPrefix = "input_boolean."

	// DefaultDelay is the reversal delay applied without overrides.
	DefaultDelay = 30 * time.Second

	// MaxDelay bounds every configured reversal delay.
	MaxDelay = 60 * time.Second

	// DefaultFilePermissions is the file mode for written settings.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errBrokerRequired is returned when the broker URL is missing.
	errBrokerRequired = errors.New("broker URL must be provided")
	// errDelayOutOfRange is returned for delays outside 0..60s.
	errDelayOutOfRange = errors.New("reversal delay must be between 0s and 60s")
	// errEntityIDRequired is returned for entity entries without a key.
	errEntityIDRequired = errors.New("entity_id must be provided")
)

// Load reads configuration from the provided path, validates it and
// fills in defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and value bounds, and fills defaults
// for everything left unset.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.BrokerURL == "" {
		return errBrokerRequired
	}

	if _, err := url.Parse(cfg.BrokerURL); err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}

	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}

	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}

	if cfg.RegistryFile == "" {
		cfg.RegistryFile = DefaultRegistryFilename
	}

	if cfg.EntityPrefix == "" {
		cfg.EntityPrefix = DefaultEntityPrefix
	}

	if cfg.Defaults.Delay == 0 {
		cfg.Defaults.Delay = DefaultDelay
	}

	if err := validateDelay(cfg.Defaults.Delay); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	for i := range cfg.Entities {
		ec := &cfg.Entities[i]
		if ec.EntityID == "" {
			return errEntityIDRequired
		}

		if ec.Delay != nil {
			if err := validateDelay(*ec.Delay); err != nil {
				return fmt.Errorf("entity %s: %w", ec.EntityID, err)
			}
		}
	}

	switch cfg.Guard.Strategy {
	case "", "window", "causation":
	default:
		return fmt.Errorf("guard strategy %q is not supported", cfg.Guard.Strategy)
	}

	return nil
}

// AutoDiscoverEnabled reports whether unknown entities should be
// enrolled automatically. Enabled unless explicitly switched off.
func (c *Config) AutoDiscoverEnabled() bool {
	return c.AutoDiscover == nil || *c.AutoDiscover
}

// DefaultSettings returns the resolved settings applied to entities
// without explicit configuration, such as auto-discovered ones.
func (c *Config) DefaultSettings() EntitySettings {
	notifications := true
	if c.Defaults.EnableNotifications != nil {
		notifications = *c.Defaults.EnableNotifications
	}

	delay := c.Defaults.Delay
	if delay == 0 {
		delay = DefaultDelay
	}

	return EntitySettings{
		Delay:               delay,
		EnableNotifications: notifications,
		NotificationTargets: c.Defaults.NotificationTargets,
		ProcessActorless:    c.Defaults.ProcessActorless,
	}
}

// SettingsFor resolves the effective settings for an entity by merging
// its explicit configuration over the defaults.
func (c *Config) SettingsFor(entityID string) EntitySettings {
	settings := c.DefaultSettings()

	for i := range c.Entities {
		ec := &c.Entities[i]
		if ec.EntityID != entityID {
			continue
		}

		settings.Label = ec.Label

		if ec.Delay != nil {
			settings.Delay = *ec.Delay
		}

		if ec.EnableNotifications != nil {
			settings.EnableNotifications = *ec.EnableNotifications
		}

		if ec.NotificationTargets != nil {
			settings.NotificationTargets = ec.NotificationTargets
		}

		if ec.ProcessActorless != nil {
			settings.ProcessActorless = *ec.ProcessActorless
		}

		break
	}

	return settings
}

// validateDelay enforces the 0..60s bound on reversal delays.
func validateDelay(delay time.Duration) error {
	if delay < 0 || delay > MaxDelay {
		return errDelayOutOfRange
	}

	return nil
}
