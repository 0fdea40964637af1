package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"go-agent-fleet/internal/core"
	"go-agent-fleet/internal/eventbus"
)

func setup(t *testing.T) (*eventbus.RedisBus, *eventbus.RedisBus) {
	t.Helper()
	mr := miniredis.RunT(t)
	opts := &redis.Options{Addr: mr.Addr()}

	asker := eventbus.NewRedisBus(opts, "bridge-test", nil)
	t.Cleanup(func() { asker.Close() })
	responder := eventbus.NewRedisBus(opts, "responder", nil)
	t.Cleanup(func() { responder.Close() })
	return asker, responder
}

// respond echoes an outcome for every message.received on the given topic.
func respond(t *testing.T, bus *eventbus.RedisBus, topic string, payload func(core.MessageReceived) any) {
	t.Helper()
	ctx := context.Background()
	msgs, err := bus.Subscribe(ctx, core.TopicMessageReceived)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	go func() {
		for ev := range msgs {
			var msg core.MessageReceived
			if err := core.DecodePayload(ev.Payload, &msg); err != nil {
				continue
			}
			bus.Publish(ctx, topic, core.Event{
				CorrelationID: ev.CorrelationID,
				Payload:       core.EncodePayload(payload(msg)),
			})
		}
	}()
}

func TestAskReturnsCompletedOutput(t *testing.T) {
	asker, responder := setup(t)
	respond(t, responder, core.TopicActionCompleted, func(msg core.MessageReceived) any {
		return core.ActionCompleted{
			ConversationID: msg.ConversationID,
			Result:         core.ActionResult{Output: "here is the report"},
		}
	})

	out, err := Ask(context.Background(), asker, "web_dashboard", "status?", Options{
		Deadline: 5 * time.Second,
		Settle:   50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if out != "here is the report" {
		t.Errorf("output = %q", out)
	}
}

func TestAskReturnsReplyErrorOnFailure(t *testing.T) {
	asker, responder := setup(t)
	respond(t, responder, core.TopicActionFailed, func(msg core.MessageReceived) any {
		return core.ActionFailed{ConversationID: msg.ConversationID, Error: "tool exploded"}
	})

	_, err := Ask(context.Background(), asker, "web_dashboard", "do it", Options{
		Deadline: 5 * time.Second,
		Settle:   50 * time.Millisecond,
	})
	var replyErr *ReplyError
	if !errors.As(err, &replyErr) {
		t.Fatalf("err = %v, want ReplyError", err)
	}
	if replyErr.Message != "tool exploded" {
		t.Errorf("message = %q", replyErr.Message)
	}
}

func TestAskTimesOutWithoutReply(t *testing.T) {
	asker, _ := setup(t)

	start := time.Now()
	_, err := Ask(context.Background(), asker, "web_dashboard", "anyone?", Options{
		Deadline: 300 * time.Millisecond,
		Settle:   50 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("returned after %v, before deadline", elapsed)
	}
}

func TestAskIgnoresOtherConversations(t *testing.T) {
	asker, responder := setup(t)
	respond(t, responder, core.TopicActionCompleted, func(msg core.MessageReceived) any {
		return core.ActionCompleted{
			ConversationID: "web_other",
			Result:         core.ActionResult{Output: "not for you"},
		}
	})

	_, err := Ask(context.Background(), asker, "web_dashboard", "mine?", Options{
		Deadline: 400 * time.Millisecond,
		Settle:   50 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestAskRespectsContextCancel(t *testing.T) {
	asker, _ := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	_, err := Ask(ctx, asker, "web_dashboard", "hello", Options{
		Deadline: 10 * time.Second,
		Settle:   10 * time.Millisecond,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
