// Package events publishes audit events over Watermill so sibling
// instances and downstream consumers can observe issuance activity.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/CatastropheArena/Catastrophe-Genesis/ports"
)

// Topics carrying issuance audit events.
const (
	TopicKeysIssued     = "citadel.keys_issued"
	TopicSessionCreated = "citadel.session_created"
	TopicLogout         = "citadel.logout"
)

// KeysIssuedEvent records a successful key fetch. No key material is ever
// published, only counts and correlation ids.
type KeysIssuedEvent struct {
	Address   string `json:"address"`
	RequestID string `json:"request_id"`
	KeyCount  int    `json:"key_count"`
}

// SessionCreatedEvent records a minted session token.
type SessionCreatedEvent struct {
	Address string `json:"address"`
	TokenID string `json:"token_id"`
}

// LogoutEvent records a revoked session token.
type LogoutEvent struct {
	Address string `json:"address"`
	TokenID string `json:"token_id"`
}

// WatermillPublisher implements ports.EventPublisher over any Watermill
// transport.
type WatermillPublisher struct {
	publisher message.Publisher
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// NewWatermillPublisher wraps a Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishKeysIssued publishes a key issuance event.
func (p *WatermillPublisher) PublishKeysIssued(_ context.Context, address, requestID string, keyCount int) error {
	return p.publish(TopicKeysIssued, requestID, KeysIssuedEvent{
		Address:   address,
		RequestID: requestID,
		KeyCount:  keyCount,
	})
}

// PublishSessionCreated publishes a session creation event.
func (p *WatermillPublisher) PublishSessionCreated(_ context.Context, address, tokenID string) error {
	return p.publish(TopicSessionCreated, tokenID, SessionCreatedEvent{
		Address: address,
		TokenID: tokenID,
	})
}

// PublishLogout publishes a logout event.
func (p *WatermillPublisher) PublishLogout(_ context.Context, address, tokenID string) error {
	return p.publish(TopicLogout, tokenID, LogoutEvent{
		Address: address,
		TokenID: tokenID,
	})
}

func (p *WatermillPublisher) publish(topic, msgID string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if msgID == "" {
		msgID = uuid.NewString()
	}
	msg := message.NewMessage(msgID, payload)
	msg.Metadata.Set("producer", "citadel")

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// NoopPublisher satisfies ports.EventPublisher when no broker is
// configured, e.g. in the CLI or local runs.
type NoopPublisher struct{}

var _ ports.EventPublisher = NoopPublisher{}

func (NoopPublisher) PublishKeysIssued(context.Context, string, string, int) error { return nil }
func (NoopPublisher) PublishSessionCreated(context.Context, string, string) error  { return nil }
func (NoopPublisher) PublishLogout(context.Context, string, string) error          { return nil }

// NewLogger returns the Watermill logger adapter used when wiring the Redis
// stream publisher.
func NewLogger(debug bool) watermill.LoggerAdapter {
	return watermill.NewStdLogger(debug, false)
}
