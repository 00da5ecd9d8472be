package publisher

import (
	"strings"
	"sync"
)

// FakePublisher records published messages in order. Set PublishError to make
// every Publish fail. It is safe for concurrent use.
type FakePublisher struct {
	Messages     []Message
	PublishError error
	Closed       bool

	mu sync.Mutex
}

func (f *FakePublisher) Publish(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Messages = append(f.Messages, msg)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Find returns the most recent message published to topic.
func (f *FakePublisher) Find(topic string) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Messages) - 1; i >= 0; i-- {
		if f.Messages[i].Topic == topic {
			return f.Messages[i], true
		}
	}
	return Message{}, false
}

// Topics lists, in publish order, the topics starting with prefix.
func (f *FakePublisher) Topics(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.Messages {
		if strings.HasPrefix(m.Topic, prefix) {
			out = append(out, m.Topic)
		}
	}
	return out
}

// Count returns how many messages have been published.
func (f *FakePublisher) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Messages)
}
