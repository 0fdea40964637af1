package core

import (
	"encoding/json"
	"time"
)

// Event is the envelope carried on the bus. CorrelationID links a causal
// chain of events so responses can be paired with the request that caused
// them; it is propagated unchanged from an input event to every event it
// triggers.
type Event struct {
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlationId"`
	Source        string         `json:"source"`
	Timestamp     time.Time      `json:"timestamp"`
	Payload       map[string]any `json:"payload"`
}

// EncodePayload converts a typed payload struct into the map form an Event
// carries on the wire.
func EncodePayload(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// DecodePayload fills a typed payload struct from an event payload map.
func DecodePayload(m map[string]any, v any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
