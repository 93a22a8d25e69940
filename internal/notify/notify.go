// Package notify broadcasts status notifications to subscribed clients.
package notify

import (
	"context"

	"transcriber/internal/models"
)

// Publisher broadcasts a notification on a channel. Publishing is
// fire-and-forget: failures are logged, never returned.
type Publisher interface {
	Publish(ctx context.Context, channel string, n models.Notification)
}

// Subscriber streams raw JSON payloads published on a channel until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Broker is both ends of the notification transport.
type Broker interface {
	Publisher
	Subscriber
	Close() error
}
