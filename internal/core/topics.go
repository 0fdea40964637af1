package core

// Topics exchanged between the gateway, scheduler, dispatchers and bridge.
const (
	TopicMessageReceived        = "message.received"
	TopicAgentTick              = "agent.tick"
	TopicActionCompleted        = "action.completed"
	TopicActionFailed           = "action.failed"
	TopicConversationUnassigned = "conversation.unassigned"
)

// MessageReceived is published when a chat surface (or the bridge) injects a
// normalized message. TargetAgentID is empty when no routing decision was
// made; only the default agent handles untargeted messages.
type MessageReceived struct {
	Platform       string `json:"platform"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	TargetAgentID  string `json:"targetAgentId,omitempty"`
}

// AgentTick wakes an idle agent outside of any user message.
type AgentTick struct {
	AgentID string `json:"agentId"`
	Signals string `json:"signals,omitempty"`
}

// ActionResult wraps a successful tool outcome.
type ActionResult struct {
	Output string `json:"output"`
}

// ActionCompleted reports a successful turn back to the originating surface.
type ActionCompleted struct {
	ConversationID string       `json:"conversationId"`
	Result         ActionResult `json:"result"`
	AgentID        string       `json:"agentId,omitempty"`
}

// ActionFailed reports an explicit failure back to the originating surface.
type ActionFailed struct {
	ConversationID string `json:"conversationId"`
	Error          string `json:"error"`
}

// ConversationUnassigned is informational; no consumer is required.
type ConversationUnassigned struct {
	ConversationID string `json:"conversationId"`
}
