package dust

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Stream event discriminants.
const (
	EventTypeUserMessageNew   = "user_message_new"
	EventTypeAgentMessageNew  = "agent_message_new"
	EventTypeGenerationTokens = "generation_tokens"
	EventTypeAgentError       = "agent_error"
	EventTypeAgentMessageDone = "agent_message_done"
)

// StreamEvent is one decoded event of the conversation event feed.
type StreamEvent struct {
	// EventID is the resumption identifier, empty when the event carried none.
	EventID string `json:"eventId,omitempty"`
	// Type is the payload discriminant.
	Type string `json:"type"`
	// Data is the payload exactly as received.
	Data json.RawMessage `json:"data"`
	// Payload is the decoded variant of Data.
	Payload EventPayload `json:"-"`
}

// EventPayload is the closed set of event payload variants. Unrecognised
// discriminants decode to UnknownEventPayload.
type EventPayload interface {
	EventType() string

	streamPayload()
}

// AgentMessageDone is the terminal event of an agent turn.
type AgentMessageDone struct {
	ConversationID string
	MessageID      string
	// Status is nil when the event carries no string status.
	Status *string
}

func (*AgentMessageDone) EventType() string { return EventTypeAgentMessageDone }
func (*AgentMessageDone) streamPayload()    {}

// Failed reports whether the event signals an unsuccessful run. A missing status
// counts as success.
func (d *AgentMessageDone) Failed() bool {
	return d.Status != nil && !strings.EqualFold(*d.Status, "success")
}

// GenerationTokens carries a slice of streamed agent output.
type GenerationTokens struct {
	MessageID      string `json:"messageId"`
	Text           string `json:"text"`
	Classification string `json:"classification"`
}

func (*GenerationTokens) EventType() string { return EventTypeGenerationTokens }
func (*GenerationTokens) streamPayload()    {}

// AgentError reports an error raised while the agent was running.
type AgentError struct {
	MessageID string `json:"messageId"`
	Error     struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (*AgentError) EventType() string { return EventTypeAgentError }
func (*AgentError) streamPayload()    {}

// UnknownEventPayload is any payload this package does not interpret.
type UnknownEventPayload struct {
	Kind string
}

func (p *UnknownEventPayload) EventType() string { return p.Kind }
func (*UnknownEventPayload) streamPayload()      {}

// DecodeStreamEvent decodes the JSON data of one SSE event. The envelope must be
// a JSON object; the payload under "data" is decoded leniently.
func DecodeStreamEvent(data []byte) (StreamEvent, error) {
	var envelope struct {
		EventID json.RawMessage `json:"eventId"`
		Data    json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return StreamEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	event := StreamEvent{
		EventID: jsonString(envelope.EventID),
		Data:    envelope.Data,
	}

	event.Payload = decodePayload(envelope.Data)
	event.Type = event.Payload.EventType()

	return event, nil
}

func decodePayload(data json.RawMessage) EventPayload {
	var head struct {
		Type           string          `json:"type"`
		ConversationID json.RawMessage `json:"conversationId"`
		MessageID      json.RawMessage `json:"messageId"`
		Status         json.RawMessage `json:"status"`
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &head) != nil {
		return &UnknownEventPayload{}
	}

	switch head.Type {
	case EventTypeAgentMessageDone:
		done := &AgentMessageDone{
			ConversationID: jsonString(head.ConversationID),
			MessageID:      jsonString(head.MessageID),
		}

		if status, ok := asJSONString(head.Status); ok {
			done.Status = &status
		}

		return done
	case EventTypeGenerationTokens:
		tokens := &GenerationTokens{}
		if json.Unmarshal(trimmed, tokens) == nil {
			return tokens
		}
	case EventTypeAgentError:
		agentErr := &AgentError{}
		if json.Unmarshal(trimmed, agentErr) == nil {
			return agentErr
		}
	}

	return &UnknownEventPayload{Kind: head.Type}
}

// jsonString returns raw as a string when it is a JSON string, else "".
func jsonString(raw json.RawMessage) string {
	s, _ := asJSONString(raw)

	return s
}

func asJSONString(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}

	var s string
	if json.Unmarshal(trimmed, &s) != nil {
		return "", false
	}

	return s, true
}

// Payloads returns the raw payload of each event, in order.
func Payloads(events []StreamEvent) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(events))
	for _, e := range events {
		out = append(out, e.Data)
	}

	return out
}
