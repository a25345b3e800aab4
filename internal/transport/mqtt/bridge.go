package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/lucasschonrock/spring-input-boolean/internal/domain/entity"
	"github.com/lucasschonrock/spring-input-boolean/internal/logger"
	"github.com/lucasschonrock/spring-input-boolean/internal/notify"
)

const (
	// connectTimeout bounds a single broker connection attempt.
	connectTimeout = 10 * time.Second
	// publishTimeout bounds a single publish acknowledgement wait.
	publishTimeout = 5 * time.Second
	// subscribeTimeout bounds a single subscribe acknowledgement wait.
	subscribeTimeout = 5 * time.Second
	// changeBufferSize buffers the change stream between the paho
	// callback and the scheduler's consumer loop.
	changeBufferSize = 256
	// clientIDSuffixLength is how many characters of a random UUID are
	// appended to the configured client id.
	clientIDSuffixLength = 8
)

var (
	// errConnectTimeout is returned when a connection attempt stalls.
	errConnectTimeout = errors.New("broker connection timeout")
	// errPublishTimeout is returned when a publish is not acknowledged.
	errPublishTimeout = errors.New("publish timeout")
	// errSubscribeTimeout is returned when a subscribe is not acknowledged.
	errSubscribeTimeout = errors.New("subscribe timeout")
)

// Config carries the broker connection settings.
type Config struct {
	// BrokerURL is the broker address.
	BrokerURL string
	// ClientID is the client identifier base.
	ClientID string
	// TopicPrefix roots all topics used by the bridge.
	TopicPrefix string
}

// Bridge connects the daemon to the MQTT event bridge. It is the event
// source (state change subscription), the actuator (command publishes),
// the notification sender and the override action feed, and it keeps a
// cache of last-seen snapshots for the scheduler's validation step.
type Bridge struct {
	// client is the underlying paho MQTT client.
	client paho.Client
	// topics builds and parses the bridge's topic names.
	topics topicSet
	// cache holds the last snapshot seen per entity.
	cache *snapshotCache
	// changes delivers parsed state changes to the consumer.
	changes chan entity.Change
}

// Connect dials the broker, retrying the initial connection with
// exponential backoff until the context is canceled.
func Connect(ctx context.Context, cfg Config) (*Bridge, error) {
	clientID := cfg.ClientID + "-" + uuid.NewString()[:clientIDSuffixLength]

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetOrderMatters(true)

	client := paho.NewClient(opts)

	attempt := func() error {
		token := client.Connect()
		if !token.WaitTimeout(connectTimeout) {
			return errConnectTimeout
		}

		return token.Error()
	}

	if err := backoff.Retry(attempt, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	logger.InfoKV(ctx, "Connected to MQTT broker", "broker", cfg.BrokerURL, "client_id", clientID)

	return &Bridge{
		client:  client,
		topics:  newTopicSet(cfg.TopicPrefix),
		cache:   newSnapshotCache(),
		changes: make(chan entity.Change, changeBufferSize),
	}, nil
}

// SubscribeChanges subscribes to the state event topics and returns the
// ordered change stream. Every event also refreshes the snapshot cache,
// including events for entities that are not monitored.
func (b *Bridge) SubscribeChanges(ctx context.Context) (<-chan entity.Change, error) {
	handler := func(_ paho.Client, msg paho.Message) {
		change, err := b.decodeChange(msg.Topic(), msg.Payload())
		if err != nil {
			logger.DebugKV(ctx, "Ignoring undecodable state event", "topic", msg.Topic(), "error", err)

			return
		}

		b.cache.store(change.Snapshot())

		select {
		case b.changes <- change:
		default:
			// Dropping is preferable to stalling the paho router; the
			// validation step catches up with reality either way.
			logger.WarnKV(ctx, "Change stream full, dropping event", "entity", change.Key)
		}
	}

	if err := b.subscribe(b.topics.stateWildcard(), 1, handler); err != nil {
		return nil, err
	}

	return b.changes, nil
}

// SubscribeActions subscribes to the override action topic and invokes
// the handler with each raw action string.
func (b *Bridge) SubscribeActions(ctx context.Context, apply func(context.Context, string)) error {
	handler := func(_ paho.Client, msg paho.Message) {
		apply(ctx, string(msg.Payload()))
	}

	return b.subscribe(b.topics.action(), 1, handler)
}

// SetValue publishes a command asking the event bridge to set the
// entity to the desired value. The call waits for the broker's
// acknowledgement so callers can clear per-key state afterwards.
func (b *Bridge) SetValue(_ context.Context, key string, value entity.Value) error {
	payload, err := encodeCommand(value)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	return b.publish(b.topics.command(key), 1, payload)
}

// Send publishes a notification message to a single target. Implements
// the notify.Sender interface.
func (b *Bridge) Send(_ context.Context, target string, msg notify.Message) error {
	payload, err := encodeNotification(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	return b.publish(b.topics.notify(target), 1, payload)
}

// PublishAction publishes a raw override action string to the action
// topic, the same one SubscribeActions listens on.
func (b *Bridge) PublishAction(_ context.Context, raw string) error {
	return b.publish(b.topics.action(), 1, []byte(raw))
}

// CurrentSnapshot returns the last snapshot seen for the key, or nil
// when the entity has never been observed.
func (b *Bridge) CurrentSnapshot(_ context.Context, key string) (*entity.Snapshot, error) {
	return b.cache.current(key), nil
}

// Close disconnects from the broker.
func (b *Bridge) Close() error {
	b.client.Disconnect(uint(publishTimeout.Milliseconds()))

	return nil
}

// decodeChange parses a state event message into a domain change.
func (b *Bridge) decodeChange(topic string, payload []byte) (entity.Change, error) {
	key, err := b.topics.keyFromStateTopic(topic)
	if err != nil {
		return entity.Change{}, err
	}

	return decodeStateEvent(key, payload)
}

// subscribe wraps paho subscription with a bounded acknowledgement wait.
func (b *Bridge) subscribe(topic string, qos byte, handler paho.MessageHandler) error {
	token := b.client.Subscribe(topic, qos, handler)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribe %s: %w", topic, errSubscribeTimeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	return nil
}

// publish wraps paho publishing with a bounded acknowledgement wait.
func (b *Bridge) publish(topic string, qos byte, payload []byte) error {
	token := b.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: %w", topic, errPublishTimeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	return nil
}
