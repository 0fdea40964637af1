package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"go-agent-fleet/internal/core"
	"go-agent-fleet/internal/eventbus"
	"go-agent-fleet/internal/roster"
	"go-agent-fleet/internal/router"
)

type staticSource struct {
	team []roster.Member
}

func (s staticSource) Team(ctx context.Context) ([]roster.Member, error) { return s.team, nil }
func (s staticSource) Signals(ctx context.Context) (string, error)       { return "", nil }

type recordingAdapter struct {
	platform string
	prefix   string

	mu   sync.Mutex
	sent map[string]string
}

func (a *recordingAdapter) Platform() string             { return a.platform }
func (a *recordingAdapter) ConversationIDPrefix() string { return a.prefix }

func (a *recordingAdapter) SendMessage(ctx context.Context, conversationID, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sent == nil {
		a.sent = map[string]string{}
	}
	a.sent[conversationID] = text
	return nil
}

func (a *recordingAdapter) get(conversationID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	text, ok := a.sent[conversationID]
	return text, ok
}

type env struct {
	bus     *eventbus.RedisBus
	router  *router.Router
	handler *Handler
}

func setup(t *testing.T, team []roster.Member) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	opts := &redis.Options{Addr: mr.Addr()}

	bus := eventbus.NewRedisBus(opts, "chat-gateway", nil)
	t.Cleanup(func() { bus.Close() })

	r := router.New(opts, 0, nil)
	t.Cleanup(func() { r.Close() })

	return &env{bus: bus, router: r, handler: NewHandler(bus, r, staticSource{team: team}, nil)}
}

func waitEvent(t *testing.T, ch <-chan core.Event) core.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return core.Event{}
	}
}

func TestMentionAssignsAndTargets(t *testing.T) {
	team := []roster.Member{{ID: "sarah", Name: "Sarah", DisplayName: "Sarah", Status: roster.StatusActive}}
	e := setup(t, team)
	ctx := context.Background()

	msgs, err := e.bus.Subscribe(ctx, core.TopicMessageReceived)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := e.handler.HandleIncoming(ctx, Incoming{
		Platform: "telegram", UserID: "u1", ConversationID: "telegram:42", Text: "@Sarah run the report",
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var got core.MessageReceived
	if err := core.DecodePayload(waitEvent(t, msgs).Payload, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TargetAgentID != "sarah" {
		t.Errorf("target = %q, want sarah", got.TargetAgentID)
	}
	if got.Text != "@Sarah run the report" {
		t.Errorf("text = %q", got.Text)
	}

	assigned, ok, err := e.router.Assigned(ctx, "telegram:42")
	if err != nil || !ok || assigned != "sarah" {
		t.Errorf("assignment = (%q, %v, %v), want sarah", assigned, ok, err)
	}
}

func TestStickyAssignmentTargetsWithoutMention(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	if err := e.router.Assign(ctx, "telegram:42", "leo"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	msgs, err := e.bus.Subscribe(ctx, core.TopicMessageReceived)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := e.handler.HandleIncoming(ctx, Incoming{
		Platform: "telegram", UserID: "u1", ConversationID: "telegram:42", Text: "and then?",
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var got core.MessageReceived
	if err := core.DecodePayload(waitEvent(t, msgs).Payload, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TargetAgentID != "leo" {
		t.Errorf("target = %q, want leo", got.TargetAgentID)
	}
}

func TestUnassignedConversationHasNoTarget(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	msgs, err := e.bus.Subscribe(ctx, core.TopicMessageReceived)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := e.handler.HandleIncoming(ctx, Incoming{
		Platform: "telegram", UserID: "u1", ConversationID: "telegram:99", Text: "hello there",
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var got core.MessageReceived
	if err := core.DecodePayload(waitEvent(t, msgs).Payload, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TargetAgentID != "" {
		t.Errorf("target = %q, want empty", got.TargetAgentID)
	}
}

func TestResetClearsAssignmentAndConfirms(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	if err := e.router.Assign(ctx, "telegram:42", "sarah"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	unassigned, err := e.bus.Subscribe(ctx, core.TopicConversationUnassigned)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	completed, err := e.bus.Subscribe(ctx, core.TopicActionCompleted)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := e.handler.HandleIncoming(ctx, Incoming{
		Platform: "telegram", UserID: "u1", ConversationID: "telegram:42", Text: "  /RESET  ",
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var un core.ConversationUnassigned
	if err := core.DecodePayload(waitEvent(t, unassigned).Payload, &un); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if un.ConversationID != "telegram:42" {
		t.Errorf("conversation = %q", un.ConversationID)
	}

	var done core.ActionCompleted
	if err := core.DecodePayload(waitEvent(t, completed).Payload, &done); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if done.ConversationID != "telegram:42" || done.Result.Output == "" {
		t.Errorf("confirmation = %+v", done)
	}

	if _, ok, _ := e.router.Assigned(ctx, "telegram:42"); ok {
		t.Error("assignment survived /reset")
	}
}

func TestDeliverOutcomesRoutesByPrefix(t *testing.T) {
	e := setup(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telegram := &recordingAdapter{platform: "telegram", prefix: "telegram:"}
	slack := &recordingAdapter{platform: "slack", prefix: "slack:"}

	go e.handler.DeliverOutcomes(ctx, []Adapter{telegram, slack})
	time.Sleep(100 * time.Millisecond)

	publish := func(conversationID, output string) {
		t.Helper()
		err := e.bus.Publish(ctx, core.TopicActionCompleted, core.Event{
			Payload: core.EncodePayload(core.ActionCompleted{
				ConversationID: conversationID,
				Result:         core.ActionResult{Output: output},
			}),
		})
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	publish("slack:C1", "report done")
	publish("telegram:42", "hello back")
	publish("webhook:7", "nobody listens here")
	publish("telegram:43", "")

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := telegram.get("telegram:42"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("telegram delivery never arrived")
		case <-time.After(20 * time.Millisecond):
		}
	}

	if text, _ := telegram.get("telegram:42"); text != "hello back" {
		t.Errorf("telegram text = %q", text)
	}
	if text, _ := slack.get("slack:C1"); text != "report done" {
		t.Errorf("slack text = %q", text)
	}
	if _, ok := telegram.get("telegram:43"); ok {
		t.Error("empty output was delivered")
	}
	if _, ok := telegram.get("webhook:7"); ok {
		t.Error("unmatched prefix was delivered to telegram")
	}
}
