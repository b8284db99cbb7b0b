package core

import (
	"context"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/domain"
)

// ExpiryMessage is the payload sent to the expiry channel on session creation.
type ExpiryMessage struct {
	SessionID domain.SessionID `json:"sessionId"`
	SentAt    time.Time        `json:"sentAt"`
}

// ExpiryNotifier is a one-way, at-least-once channel. Notify must not block
// on the consumer.
type ExpiryNotifier interface {
	Notify(ctx context.Context, msg ExpiryMessage) error
}
