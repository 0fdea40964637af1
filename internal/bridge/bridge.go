// Package bridge offers a synchronous request/reply facade over the
// fire-and-forget event bus, for callers that need one answer now.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-agent-fleet/internal/core"
	"go-agent-fleet/internal/eventbus"
)

// ErrTimeout is returned when no outcome arrives before the deadline. It is
// distinct from a ReplyError: the fleet may still be working, or down.
var ErrTimeout = errors.New("timeout waiting for response")

// ReplyError carries an explicit action.failed outcome from the dispatcher.
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("agent reported failure: %s", e.Message)
}

// Options tune a single Ask call.
type Options struct {
	Platform string        // defaults to "web"
	UserID   string        // defaults to "web-user"
	Deadline time.Duration // defaults to 55s
	Settle   time.Duration // wait after subscribing before publishing, defaults to 300ms
}

func (o Options) withDefaults() Options {
	if o.Platform == "" {
		o.Platform = "web"
	}
	if o.UserID == "" {
		o.UserID = "web-user"
	}
	if o.Deadline <= 0 {
		o.Deadline = 55 * time.Second
	}
	if o.Settle <= 0 {
		o.Settle = 300 * time.Millisecond
	}
	return o
}

// Ask publishes text as a message.received for conversationID and blocks
// until the matching action.completed or action.failed arrives. Both outcome
// topics are subscribed before publishing so a fast reply cannot be lost.
func Ask(ctx context.Context, bus eventbus.Bus, conversationID, text string, opts Options) (string, error) {
	opts = opts.withDefaults()

	completed, err := bus.Subscribe(ctx, core.TopicActionCompleted)
	if err != nil {
		return "", fmt.Errorf("subscribe %s: %w", core.TopicActionCompleted, err)
	}
	defer bus.Unsubscribe(ctx, core.TopicActionCompleted)
	failed, err := bus.Subscribe(ctx, core.TopicActionFailed)
	if err != nil {
		return "", fmt.Errorf("subscribe %s: %w", core.TopicActionFailed, err)
	}
	defer bus.Unsubscribe(ctx, core.TopicActionFailed)

	select {
	case <-time.After(opts.Settle):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	err = bus.Publish(ctx, core.TopicMessageReceived, core.Event{
		Payload: core.EncodePayload(core.MessageReceived{
			Platform:       opts.Platform,
			UserID:         opts.UserID,
			ConversationID: conversationID,
			Text:           text,
		}),
	})
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", core.TopicMessageReceived, err)
	}

	deadline := time.NewTimer(opts.Deadline)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-completed:
			if !ok {
				return "", ErrTimeout
			}
			var done core.ActionCompleted
			if decodeErr := core.DecodePayload(ev.Payload, &done); decodeErr != nil {
				continue
			}
			if done.ConversationID == conversationID && done.Result.Output != "" {
				return done.Result.Output, nil
			}
		case ev, ok := <-failed:
			if !ok {
				return "", ErrTimeout
			}
			var fail core.ActionFailed
			if decodeErr := core.DecodePayload(ev.Payload, &fail); decodeErr != nil {
				continue
			}
			if fail.ConversationID == conversationID && fail.Error != "" {
				return "", &ReplyError{Message: fail.Error}
			}
		case <-deadline.C:
			return "", ErrTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
