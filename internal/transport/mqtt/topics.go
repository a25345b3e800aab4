package mqtt

import (
	"errors"
	"strings"
)

// Topic layout under the configured prefix:
//
//	<prefix>/event/state/<key>  state change events (subscribed)
//	<prefix>/command/<key>      reversal commands (published)
//	<prefix>/notify/<target>    notification messages (published)
//	<prefix>/action             override action strings (subscribed)
type topicSet struct {
	// prefix roots every topic, without a trailing slash.
	prefix string
}

// errUnexpectedTopic is returned when a message arrives on a topic that
// does not match the bridge's layout.
var errUnexpectedTopic = errors.New("unexpected topic")

// newTopicSet builds the topic layout for a prefix.
func newTopicSet(prefix string) topicSet {
	return topicSet{prefix: strings.TrimSuffix(prefix, "/")}
}

// stateWildcard is the subscription filter for all state events.
// The key segment uses the multi-level wildcard because entity keys
// such as "input_boolean.porch" are a single topic level, but a broker
// bridge may expand them into several.
func (t topicSet) stateWildcard() string {
	return t.prefix + "/event/state/#"
}

// keyFromStateTopic extracts the entity key from a state event topic.
func (t topicSet) keyFromStateTopic(topic string) (string, error) {
	key, found := strings.CutPrefix(topic, t.prefix+"/event/state/")
	if !found || key == "" {
		return "", errUnexpectedTopic
	}

	return key, nil
}

// command is the publish topic for a reversal command.
func (t topicSet) command(key string) string {
	return t.prefix + "/command/" + key
}

// notify is the publish topic for a notification target.
func (t topicSet) notify(target string) string {
	return t.prefix + "/notify/" + target
}

// action is the subscription topic for override action strings.
func (t topicSet) action() string {
	return t.prefix + "/action"
}
