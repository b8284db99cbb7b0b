// Package expiry schedules eventual teardown of sessions. The engine sends
// one message per created session; the worker ends sessions whose TTL has
// passed. Delivery is at-least-once and handling is idempotent.
package expiry

import (
	"context"
	"errors"

	"github.com/ghaditya/spotify-group-session/internal/core"
)

var ErrQueueFull = errors.New("expiry queue full")

// Queue is an in-process bounded channel. Notify never waits for the worker.
type Queue struct {
	ch chan core.ExpiryMessage
}

var _ core.ExpiryNotifier = (*Queue)(nil)

func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan core.ExpiryMessage, max(size, 1))}
}

func (q *Queue) Notify(ctx context.Context, msg core.ExpiryMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) Messages() <-chan core.ExpiryMessage { return q.ch }
