package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lucasschonrock/spring-input-boolean/internal/logger"
	"github.com/lucasschonrock/spring-input-boolean/internal/metrics"
	"github.com/lucasschonrock/spring-input-boolean/internal/override"
)

// defaultTitle is the notification title used for all messages.
const defaultTitle = "Spring Input Boolean"

// tagPrefix prefixes the short stable tag derived from the entity key.
const tagPrefix = "spring_"

// tagHashLength is how many hex characters of the key hash the tag
// keeps. Platform collapse-identifier limits forbid using long raw
// entity keys directly.
const tagHashLength = 8

// Message is a notification payload with actionable hints.
type Message struct {
	// Title is the notification headline.
	Title string `json:"title"`
	// Body is the human-readable notification text.
	Body string `json:"message"`
	// Tag is a short stable identifier so later notifications for the
	// same entity collapse instead of stacking.
	Tag string `json:"tag"`
	// Actions are the override hints the receiving system can trigger.
	Actions []Action `json:"actions"`
}

// Action is a single actionable hint carried by a notification.
type Action struct {
	// ID is the action string to post back on the override channel.
	ID string `json:"action"`
	// Title is the label shown to the user.
	Title string `json:"title"`
}

// Sender delivers a message to a single target.
type Sender interface {
	Send(ctx context.Context, target string, msg Message) error
}

// Dispatcher sends best-effort notifications about reversible
// transitions. Dispatch never blocks or fails the reversal pipeline:
// per-target errors are logged, one fallback attempt is made, and
// nothing propagates to the caller.
type Dispatcher struct {
	// sender performs the actual delivery.
	sender Sender
	// fallback is the broadcast target tried once when a direct
	// delivery fails. Empty disables the fallback.
	fallback string
	// metrics counts dispatch outcomes.
	metrics *metrics.Metrics
}

// NewDispatcher wires a dispatcher over the provided sender.
func NewDispatcher(sender Sender, fallback string, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		fallback: fallback,
		metrics:  m,
	}
}

// Dispatch builds the message for the entity and sends it to every
// target. Called synchronously before the reversal delay starts so the
// user can still override the delay.
func (d *Dispatcher) Dispatch(ctx context.Context, key, label string, targets []string, delay time.Duration) {
	if len(targets) == 0 {
		logger.DebugKV(ctx, "No notification targets configured, skipping", "entity", key)

		return
	}

	msg := BuildMessage(key, label, delay)

	failed := false

	for _, target := range targets {
		if err := d.sender.Send(ctx, target, msg); err != nil {
			failed = true

			logger.WarnKV(ctx, "Failed to send notification",
				"entity", key,
				"target", target,
				"error", err,
			)

			d.metrics.NotificationsTotal.WithLabelValues(metrics.ResultFailure).Inc()

			continue
		}

		d.metrics.NotificationsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	}

	if !failed || d.fallback == "" {
		return
	}

	// One best-effort broadcast attempt, then give up.
	if err := d.sender.Send(ctx, d.fallback, msg); err != nil {
		logger.WarnKV(ctx, "Fallback notification failed, dropping",
			"entity", key,
			"target", d.fallback,
			"error", err,
		)

		return
	}

	d.metrics.NotificationsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
}

// BuildMessage constructs the notification payload for an entity whose
// reversal will fire after the given delay.
func BuildMessage(key, label string, delay time.Duration) Message {
	if label == "" {
		label = key
	}

	body := fmt.Sprintf("'%s' was turned off and will reactivate in %d seconds",
		label, int(delay.Seconds()))

	return Message{
		Title: defaultTitle,
		Body:  body,
		Tag:   ShortTag(key),
		Actions: []Action{
			{ID: override.FormatAction(override.KindOff10, key), Title: "Off for 10s"},
			{ID: override.FormatAction(override.KindOff20, key), Title: "Off for 20s"},
			{ID: override.FormatAction(override.KindReactivate, key), Title: "Reactivate now"},
		},
	}
}

// ShortTag derives a fixed-width stable tag from the entity key.
func ShortTag(key string) string {
	sum := sha256.Sum256([]byte(key))

	return tagPrefix + hex.EncodeToString(sum[:])[:tagHashLength]
}
