package ports

import (
	"context"
	"time"
)

// Store interface for session-token revocation. Tokens already rotate on
// restart (the HMAC key is ephemeral), so the store only needs to outlive
// the longest token TTL.
type Store interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}
