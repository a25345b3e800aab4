package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lucasschonrock/spring-input-boolean/internal/metrics"
)

var errTestSend = errors.New("test send error")

// fakeSender is a minimal Sender implementation for tests.
type fakeSender struct {
	// failing lists targets whose deliveries fail.
	failing map[string]bool

	// mu protects sent.
	mu sync.Mutex
	// sent records the targets of successful deliveries in order.
	sent []string
}

// Send records the delivery or fails it, per the failing map.
func (f *fakeSender) Send(_ context.Context, target string, _ Message) error {
	if f.failing[target] {
		return errTestSend
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, target)

	return nil
}

// TestDispatcher_SendsToAllTargets ensures every configured target gets
// a delivery attempt.
func TestDispatcher_SendsToAllTargets(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	d := NewDispatcher(sender, "", metrics.New())

	d.Dispatch(context.Background(), "input_boolean.porch", "Porch", []string{"phone_a", "phone_b"}, 30*time.Second)

	require.Equal(t, []string{"phone_a", "phone_b"}, sender.sent)
}

// TestDispatcher_FallbackOnFailure ensures one broadcast attempt is made
// when a direct delivery fails, and remaining targets are still tried.
func TestDispatcher_FallbackOnFailure(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{failing: map[string]bool{"phone_a": true}}
	d := NewDispatcher(sender, "everyone", metrics.New())

	d.Dispatch(context.Background(), "input_boolean.porch", "", []string{"phone_a", "phone_b"}, 30*time.Second)

	require.Equal(t, []string{"phone_b", "everyone"}, sender.sent)
}

// TestDispatcher_FallbackFailureIsDropped ensures a failing fallback
// never propagates anywhere.
func TestDispatcher_FallbackFailureIsDropped(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{failing: map[string]bool{"phone_a": true, "everyone": true}}
	d := NewDispatcher(sender, "everyone", metrics.New())

	d.Dispatch(context.Background(), "input_boolean.porch", "", []string{"phone_a"}, 30*time.Second)

	require.Empty(t, sender.sent)
}

// TestDispatcher_NoTargetsSkips ensures nothing is sent without targets.
func TestDispatcher_NoTargetsSkips(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	d := NewDispatcher(sender, "everyone", metrics.New())

	d.Dispatch(context.Background(), "input_boolean.porch", "", nil, 30*time.Second)

	require.Empty(t, sender.sent)
}

// TestBuildMessage asserts the payload shape: body text, label fallback
// and the three override action hints.
func TestBuildMessage(t *testing.T) {
	t.Parallel()

	msg := BuildMessage("input_boolean.porch", "Porch Light", 30*time.Second)

	require.Equal(t, "Spring Input Boolean", msg.Title)
	require.Equal(t, "'Porch Light' was turned off and will reactivate in 30 seconds", msg.Body)
	require.Len(t, msg.Actions, 3)
	require.Equal(t, "OFF_10::input_boolean.porch", msg.Actions[0].ID)
	require.Equal(t, "OFF_20::input_boolean.porch", msg.Actions[1].ID)
	require.Equal(t, "REACTIVATE::input_boolean.porch", msg.Actions[2].ID)

	// Without a label the raw key is used.
	unlabeled := BuildMessage("input_boolean.porch", "", 10*time.Second)
	require.Contains(t, unlabeled.Body, "'input_boolean.porch'")
}

// TestShortTag ensures tags are stable, bounded and distinct per key.
func TestShortTag(t *testing.T) {
	t.Parallel()

	tag := ShortTag("input_boolean.some_very_long_entity_key_name")

	require.True(t, strings.HasPrefix(tag, "spring_"))
	require.Len(t, tag, len("spring_")+8)
	require.Equal(t, tag, ShortTag("input_boolean.some_very_long_entity_key_name"))
	require.NotEqual(t, tag, ShortTag("input_boolean.other"))
}
