package eventbus

import "fmt"

// Topic identifies an event routed through the bus. The set of topics is
// closed: every valid value is declared below, so a misspelled event is a
// compile error instead of a silently unrouted emission.
type Topic uint8

const (
	// topicInvalid is the zero value and never routes.
	topicInvalid Topic = iota

	// TopicTranslationCompleted fires after a translation finishes.
	// Payload: translation.Result.
	TopicTranslationCompleted

	// TopicPlaybackStarted fires when speech playback begins.
	// Payload: tts.PlaybackEvent.
	TopicPlaybackStarted

	// TopicPlaybackCompleted fires when speech playback ends.
	// Payload: tts.PlaybackEvent.
	TopicPlaybackCompleted

	// TopicConfigChanged fires after the application configuration changes.
	// Payload: config.Config.
	TopicConfigChanged

	topicCount
)

var topicNames = [...]string{
	topicInvalid:              "",
	TopicTranslationCompleted: "translation:completed",
	TopicPlaybackStarted:      "tts:playback:started",
	TopicPlaybackCompleted:    "tts:playback:completed",
	TopicConfigChanged:        "config:changed",
}

// String returns the wire name of the topic, e.g. "translation:completed".
func (t Topic) String() string {
	if !t.Valid() {
		return fmt.Sprintf("topic(%d)", uint8(t))
	}
	return topicNames[t]
}

// Valid reports whether t is one of the declared topics.
func (t Topic) Valid() bool {
	return t > topicInvalid && t < topicCount
}

// AllTopics returns every declared topic in declaration order.
func AllTopics() []Topic {
	topics := make([]Topic, 0, int(topicCount)-1)
	for t := topicInvalid + 1; t < topicCount; t++ {
		topics = append(topics, t)
	}
	return topics
}

// ParseTopic maps a wire name back to its Topic.
func ParseTopic(name string) (Topic, error) {
	for t := topicInvalid + 1; t < topicCount; t++ {
		if topicNames[t] == name {
			return t, nil
		}
	}
	return topicInvalid, fmt.Errorf("%w: %q", ErrUnknownTopic, name)
}
