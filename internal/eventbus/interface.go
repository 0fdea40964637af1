package eventbus

import (
	"context"

	"go-agent-fleet/internal/core"
)

// Bus defines publish/subscribe semantics for events. Delivery is
// fire-and-forget per live subscriber; nothing is retained after dispatch.
type Bus interface {
	Publish(ctx context.Context, topic string, event core.Event) error
	Subscribe(ctx context.Context, topic string) (<-chan core.Event, error)
	SubscribePattern(ctx context.Context, pattern string) (<-chan core.Event, error)
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}
