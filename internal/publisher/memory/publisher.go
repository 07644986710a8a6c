// Package memory keeps archive notices in process instead of sending them.
// It backs the pubsub.backend=memory dry-run mode, where each notice is
// encoded exactly as the Pub/Sub publisher would and then logged.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// PublishedMessage captures one Publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
	// Data is the JSON body that would have been sent.
	Data []byte
}

// Publisher implements neo.Publisher in memory.
type Publisher struct {
	defaultTopic string
	logger       *zap.Logger

	mu       sync.RWMutex
	messages []PublishedMessage
}

// New returns an empty Publisher. defaultTopic is used when Publish is
// called without a topic.
func New(defaultTopic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{defaultTopic: defaultTopic, logger: logger}
}

// Publish encodes payload, records it, and returns a sequential pseudo id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		topic = p.defaultTopic
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload, Data: data})
	p.mu.Unlock()

	p.logger.Info("archive notice recorded",
		zap.String("topic", topic),
		zap.String("message_id", id),
		zap.Int("bytes", len(data)),
	)
	return id, nil
}

// Messages returns a copy of the recorded messages in publish order.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PublishedMessage(nil), p.messages...)
}
