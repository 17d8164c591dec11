package ports

import "context"

// EventPublisher publishes audit events to notify other instances.
type EventPublisher interface {
	PublishKeysIssued(ctx context.Context, user string, requestID string, keyCount int) error
	PublishSessionCreated(ctx context.Context, user string, tokenID string) error
	PublishLogout(ctx context.Context, user string, tokenID string) error
}
