package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"go-agent-fleet/internal/core"
)

func TestPublishSubscribe(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer s.Close()

	bus := NewRedisBus(&redis.Options{Addr: s.Addr()}, "test-1", nil)
	ctx := context.Background()
	ch, err := bus.Subscribe(ctx, core.TopicAgentTick)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ev := core.Event{ID: "1", CorrelationID: "corr-1", Payload: core.EncodePayload(core.AgentTick{AgentID: "a1"})}
	if err := bus.Publish(ctx, core.TopicAgentTick, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-ch:
		if got.ID != ev.ID || got.CorrelationID != "corr-1" {
			t.Fatalf("unexpected event %+v", got)
		}
		var tick core.AgentTick
		if err := core.DecodePayload(got.Payload, &tick); err != nil || tick.AgentID != "a1" {
			t.Fatalf("decode payload: %v %+v", err, tick)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	bus.Close()
}

func TestPublishDefaultsCorrelationID(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer s.Close()

	bus := NewRedisBus(&redis.Options{Addr: s.Addr()}, "test-2", nil)
	ctx := context.Background()
	ch, err := bus.Subscribe(ctx, "fleet.test")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Publish(ctx, "fleet.test", core.Event{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-ch:
		if got.CorrelationID == "" {
			t.Fatal("expected generated correlation id")
		}
		if got.Source != "test-2" {
			t.Fatalf("expected source stamped, got %q", got.Source)
		}
		if got.Timestamp.IsZero() {
			t.Fatal("expected timestamp stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	bus.Close()
}

func TestPatternSubscribe(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer s.Close()

	bus := NewRedisBus(&redis.Options{Addr: s.Addr()}, "test-3", nil)
	ctx := context.Background()
	ch, err := bus.SubscribePattern(ctx, "action.*")
	if err != nil {
		t.Fatalf("subscribe pattern: %v", err)
	}
	ev := core.Event{ID: "2"}
	if err := bus.Publish(ctx, core.TopicActionCompleted, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pattern event")
	}
	if err := bus.Unsubscribe(ctx, "action.*"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	bus.Close()
}
