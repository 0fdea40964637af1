package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"go-agent-fleet/internal/core"
	"go-agent-fleet/internal/eventbus"
	"go-agent-fleet/internal/intent"
	"go-agent-fleet/internal/roster"
)

type stubClassifier struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, message string) (intent.Intent, error)
}

func (s *stubClassifier) Classify(ctx context.Context, message string, history []intent.Turn) (intent.Intent, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.fn(call, message)
}

type countingCollector struct {
	mu      sync.Mutex
	actions int
	labels  []string
}

func (c *countingCollector) IncrActions(ctx context.Context, agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions++
	return nil
}

func (c *countingCollector) RecordAction(ctx context.Context, agentID, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.labels = append(c.labels, label)
	return nil
}

type env struct {
	bus       *eventbus.RedisBus
	completed <-chan core.Event
	failed    <-chan core.Event
	collector *countingCollector
}

func setup(t *testing.T, member roster.Member, classify func(call int, message string) (intent.Intent, error), opts ...Option) *env {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := eventbus.NewRedisBus(&redis.Options{Addr: s.Addr()}, "test", nil)
	t.Cleanup(func() { bus.Close() })

	collector := &countingCollector{}
	d := New(member, bus, &stubClassifier{fn: classify}, collector, nil, opts...)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start dispatcher: %v", err)
	}
	t.Cleanup(func() { d.Stop(context.Background()) })

	observer := eventbus.NewRedisBus(&redis.Options{Addr: s.Addr()}, "observer", nil)
	t.Cleanup(func() { observer.Close() })
	completed, err := observer.Subscribe(ctx, core.TopicActionCompleted)
	if err != nil {
		t.Fatalf("subscribe completed: %v", err)
	}
	failed, err := observer.Subscribe(ctx, core.TopicActionFailed)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return &env{bus: bus, completed: completed, failed: failed, collector: collector}
}

func publishMessage(t *testing.T, e *env, correlationID, target, text string) {
	t.Helper()
	ev := core.Event{
		CorrelationID: correlationID,
		Payload: core.EncodePayload(core.MessageReceived{
			Platform:       "test",
			UserID:         "u1",
			ConversationID: "conv-1",
			Text:           text,
			TargetAgentID:  target,
		}),
	}
	if err := e.bus.Publish(context.Background(), core.TopicMessageReceived, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func waitEvent(t *testing.T, ch <-chan core.Event) core.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return core.Event{}
	}
}

func TestCorrelationIDPropagates(t *testing.T) {
	member := roster.Member{ID: "m1", DisplayName: "Sarah", Status: roster.StatusActive}
	e := setup(t, member, func(call int, message string) (intent.Intent, error) {
		return intent.Response{Text: "hello back"}, nil
	})

	publishMessage(t, e, "corr-42", "m1", "hola")
	ev := waitEvent(t, e.completed)
	if ev.CorrelationID != "corr-42" {
		t.Fatalf("correlation id = %q, want corr-42", ev.CorrelationID)
	}
	var done core.ActionCompleted
	if err := core.DecodePayload(ev.Payload, &done); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if done.Result.Output != "hello back" || done.ConversationID != "conv-1" || done.AgentID != "m1" {
		t.Fatalf("unexpected payload %+v", done)
	}
	e.collector.mu.Lock()
	defer e.collector.mu.Unlock()
	if e.collector.actions != 1 || len(e.collector.labels) != 1 || e.collector.labels[0] != "action_response" {
		t.Fatalf("metrics not recorded: %d %v", e.collector.actions, e.collector.labels)
	}
}

func TestRestrictedToolShortCircuits(t *testing.T) {
	executed := false
	member := roster.Member{ID: "m1", DisplayName: "Sarah", Status: roster.StatusActive, Skills: []string{"websearch"}}
	e := setup(t, member,
		func(call int, message string) (intent.Intent, error) {
			return intent.Bash{Command: "rm -rf /"}, nil
		},
		WithExecutor(intent.KindBash, ExecutorFunc(func(ctx context.Context, it intent.Intent) (Result, error) {
			executed = true
			return Result{Output: "ran"}, nil
		})),
	)

	publishMessage(t, e, "corr-1", "m1", "lista archivos")
	ev := waitEvent(t, e.failed)
	var fail core.ActionFailed
	if err := core.DecodePayload(ev.Payload, &fail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fail.Error == "" {
		t.Fatal("expected a descriptive authorization error")
	}
	if executed {
		t.Fatal("bash executor must not run for a restricted member")
	}
}

func TestExecutorErrorBecomesActionFailed(t *testing.T) {
	member := roster.Member{ID: "m1", DisplayName: "Sarah", Status: roster.StatusActive}
	e := setup(t, member,
		func(call int, message string) (intent.Intent, error) {
			return intent.WebSearch{Query: "q"}, nil
		},
		WithExecutor(intent.KindWebSearch, ExecutorFunc(func(ctx context.Context, it intent.Intent) (Result, error) {
			return Result{}, errors.New("search backend down")
		})),
	)

	publishMessage(t, e, "corr-2", "m1", "busca algo")
	ev := waitEvent(t, e.failed)
	if ev.CorrelationID != "corr-2" {
		t.Fatalf("failure must carry the original correlation id, got %q", ev.CorrelationID)
	}
	var fail core.ActionFailed
	core.DecodePayload(ev.Payload, &fail)
	if fail.Error != "search backend down" {
		t.Fatalf("error = %q", fail.Error)
	}
}

func TestExecutorPanicIsContained(t *testing.T) {
	member := roster.Member{ID: "m1", DisplayName: "Sarah", Status: roster.StatusActive}
	e := setup(t, member,
		func(call int, message string) (intent.Intent, error) {
			return intent.Draft{Prompt: "p"}, nil
		},
		WithExecutor(intent.KindDraft, ExecutorFunc(func(ctx context.Context, it intent.Intent) (Result, error) {
			panic("boom")
		})),
	)

	publishMessage(t, e, "corr-3", "m1", "redacta algo")
	ev := waitEvent(t, e.failed)
	var fail core.ActionFailed
	core.DecodePayload(ev.Payload, &fail)
	if fail.Error == "" {
		t.Fatal("expected panic converted to failure")
	}
}

func TestClassifierOutageDoesNotKillLoop(t *testing.T) {
	member := roster.Member{ID: "m1", DisplayName: "Sarah", Status: roster.StatusActive}
	e := setup(t, member, func(call int, message string) (intent.Intent, error) {
		if call == 1 {
			return nil, errors.New("upstream 503")
		}
		return intent.Response{Text: "recovered"}, nil
	})

	publishMessage(t, e, "corr-4", "m1", "first")
	ev := waitEvent(t, e.failed)
	if ev.CorrelationID != "corr-4" {
		t.Fatalf("correlation id = %q", ev.CorrelationID)
	}

	publishMessage(t, e, "corr-5", "m1", "second")
	ev = waitEvent(t, e.completed)
	if ev.CorrelationID != "corr-5" {
		t.Fatalf("dispatcher did not survive classifier outage, got %q", ev.CorrelationID)
	}
}

func TestIgnoresMessagesForOtherAgents(t *testing.T) {
	member := roster.Member{ID: "m1", DisplayName: "Sarah", Status: roster.StatusActive}
	e := setup(t, member, func(call int, message string) (intent.Intent, error) {
		return intent.Response{Text: "should not happen"}, nil
	})

	publishMessage(t, e, "corr-6", "someone-else", "hola")
	publishMessage(t, e, "corr-7", "", "untargeted")
	select {
	case ev := <-e.completed:
		t.Fatalf("unexpected completion %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDefaultAgentHandlesUntargeted(t *testing.T) {
	member := roster.Member{ID: "core", DisplayName: "Core", Status: roster.StatusActive}
	e := setup(t, member, func(call int, message string) (intent.Intent, error) {
		return intent.Response{Text: "core reply"}, nil
	}, AsDefaultAgent())

	publishMessage(t, e, "corr-8", "", "untargeted")
	ev := waitEvent(t, e.completed)
	if ev.CorrelationID != "corr-8" {
		t.Fatalf("correlation id = %q", ev.CorrelationID)
	}
}

func TestTickWakesAgent(t *testing.T) {
	member := roster.Member{ID: "m1", DisplayName: "Sarah", Status: roster.StatusActive}
	var sawSignals string
	var mu sync.Mutex
	e := setup(t, member, func(call int, message string) (intent.Intent, error) {
		mu.Lock()
		sawSignals = message
		mu.Unlock()
		return intent.Response{Text: "acting"}, nil
	})

	ev := core.Event{Payload: core.EncodePayload(core.AgentTick{AgentID: "m1", Signals: "big launch today"})}
	if err := e.bus.Publish(context.Background(), core.TopicAgentTick, ev); err != nil {
		t.Fatalf("publish tick: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		got := sawSignals
		mu.Unlock()
		if got != "" {
			if !strings.Contains(got, "big launch today") {
				t.Fatalf("tick text missing signals: %q", got)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("tick never reached classifier")
		case <-time.After(20 * time.Millisecond):
		}
	}
	// Ticks have no reply channel.
	select {
	case ev := <-e.completed:
		t.Fatalf("tick must not publish action.completed, got %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}
