// Package gateway routes inbound chat messages onto the bus and delivers
// completed action outputs back to the chat surface they came from.
package gateway

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"go-agent-fleet/internal/core"
	"go-agent-fleet/internal/eventbus"
	"go-agent-fleet/internal/mention"
	"go-agent-fleet/internal/roster"
	"go-agent-fleet/internal/router"
)

var resetRe = regexp.MustCompile(`(?i)^/reset\s*$`)

const resetConfirmation = "Conversation unassigned. Next message will go to the default agent, or mention an agent (e.g. @Name)."

// Incoming is a platform-agnostic inbound message.
type Incoming struct {
	Platform       string
	UserID         string
	ConversationID string
	Text           string
}

// Adapter is the narrow surface a chat integration must provide. Concrete
// integrations live outside this module.
type Adapter interface {
	Platform() string
	ConversationIDPrefix() string
	SendMessage(ctx context.Context, conversationID, text string) error
}

// Handler turns incoming messages into message.received events, applying
// mention routing and sticky conversation assignment.
type Handler struct {
	bus    eventbus.Bus
	router *router.Router
	source roster.Source
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(bus eventbus.Bus, r *router.Router, source roster.Source, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{bus: bus, router: r, source: source, logger: logger}
}

// HandleIncoming routes one inbound message. "/reset" clears the sticky
// assignment and confirms to the user; anything else is published as
// message.received, targeted by mention or by the existing assignment.
func (h *Handler) HandleIncoming(ctx context.Context, msg Incoming) error {
	if resetRe.MatchString(strings.TrimSpace(msg.Text)) {
		return h.reset(ctx, msg.ConversationID)
	}

	team, err := h.source.Team(ctx)
	if err != nil {
		h.logger.Warn("fetch team failed, routing without mentions", "error", err)
		team = nil
	}

	targetAgentID := ""
	if m, ok := mention.Detect(msg.Text, team); ok {
		if err := h.router.Assign(ctx, msg.ConversationID, m.ID); err != nil {
			return err
		}
		targetAgentID = m.ID
		h.logger.Info("mention routed", "agent", m.ID, "conversation", msg.ConversationID)
	} else {
		assigned, ok, err := h.router.Assigned(ctx, msg.ConversationID)
		if err != nil {
			return err
		}
		if ok {
			if err := h.router.Renew(ctx, msg.ConversationID); err != nil {
				h.logger.Warn("renew assignment failed", "conversation", msg.ConversationID, "error", err)
			}
			targetAgentID = assigned
		}
	}

	h.logger.Info("message received",
		"platform", msg.Platform, "user", msg.UserID, "target", targetOrDefault(targetAgentID))
	return h.bus.Publish(ctx, core.TopicMessageReceived, core.Event{
		Payload: core.EncodePayload(core.MessageReceived{
			Platform:       msg.Platform,
			UserID:         msg.UserID,
			ConversationID: msg.ConversationID,
			Text:           msg.Text,
			TargetAgentID:  targetAgentID,
		}),
	})
}

func (h *Handler) reset(ctx context.Context, conversationID string) error {
	if err := h.router.Unassign(ctx, conversationID); err != nil {
		return err
	}
	if err := h.bus.Publish(ctx, core.TopicConversationUnassigned, core.Event{
		Payload: core.EncodePayload(core.ConversationUnassigned{ConversationID: conversationID}),
	}); err != nil {
		return err
	}
	return h.bus.Publish(ctx, core.TopicActionCompleted, core.Event{
		Payload: core.EncodePayload(core.ActionCompleted{
			ConversationID: conversationID,
			Result:         core.ActionResult{Output: resetConfirmation},
		}),
	})
}

func targetOrDefault(id string) string {
	if id == "" {
		return "default"
	}
	return id
}

// DeliverOutcomes forwards action.completed outputs to the adapter whose
// conversation-id prefix matches. Blocks until ctx is done.
func (h *Handler) DeliverOutcomes(ctx context.Context, adapters []Adapter) error {
	events, err := h.bus.Subscribe(ctx, core.TopicActionCompleted)
	if err != nil {
		return err
	}
	for ev := range events {
		var done core.ActionCompleted
		if err := core.DecodePayload(ev.Payload, &done); err != nil {
			h.logger.Warn("malformed action.completed payload", "error", err)
			continue
		}
		if done.ConversationID == "" || done.Result.Output == "" {
			continue
		}
		adapter := matchAdapter(adapters, done.ConversationID)
		if adapter == nil {
			continue
		}
		if err := adapter.SendMessage(ctx, done.ConversationID, done.Result.Output); err != nil {
			h.logger.Error("deliver failed",
				"platform", adapter.Platform(), "conversation", done.ConversationID, "error", err)
		}
	}
	return ctx.Err()
}

func matchAdapter(adapters []Adapter, conversationID string) Adapter {
	for _, a := range adapters {
		if strings.HasPrefix(conversationID, a.ConversationIDPrefix()) {
			return a
		}
	}
	return nil
}
