package dust

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// NoMessageReturned is emitted in place of the agent reply when the conversation
// holds no non-empty agent message.
const NoMessageReturned = "No message returned"

// Message type discriminants.
const (
	MessageTypeUser  = "user_message"
	MessageTypeAgent = "agent_message"
)

// Message is a conversation entry. The set of variants is closed: UserMessage,
// AgentMessage and UnknownMessage for discriminants this package does not know.
type Message interface {
	// Type returns the wire discriminant.
	Type() string
	// ID returns the message sId, empty when absent.
	ID() string
	// Raw returns the message exactly as received.
	Raw() json.RawMessage

	conversationMessage()
}

// UserMessage is a message written by the user.
type UserMessage struct {
	SID     string             `json:"sId"`
	Content string             `json:"content"`
	Context UserMessageContext `json:"context"`

	raw json.RawMessage
}

// UserMessageContext describes who sent a user message and from where.
type UserMessageContext struct {
	Timezone          string  `json:"timezone"`
	Username          string  `json:"username"`
	Email             *string `json:"email"`
	FullName          *string `json:"fullName"`
	ProfilePictureURL *string `json:"profilePictureUrl"`
	Origin            *string `json:"origin"`
}

func (m *UserMessage) Type() string         { return MessageTypeUser }
func (m *UserMessage) ID() string           { return m.SID }
func (m *UserMessage) Raw() json.RawMessage { return m.raw }
func (*UserMessage) conversationMessage()   {}

// AgentMessage is a reply produced by an agent.
type AgentMessage struct {
	SID             string  `json:"sId"`
	ParentMessageID *string `json:"parentMessageId"`
	Content         *string `json:"content"`
	Status          string  `json:"status"`

	raw json.RawMessage
}

func (m *AgentMessage) Type() string         { return MessageTypeAgent }
func (m *AgentMessage) ID() string           { return m.SID }
func (m *AgentMessage) Raw() json.RawMessage { return m.raw }
func (*AgentMessage) conversationMessage()   {}

// Text returns the agent message content, empty when null.
func (m *AgentMessage) Text() string {
	if m.Content == nil {
		return ""
	}

	return *m.Content
}

// RepliesTo reports whether the message answers the user message with the given id.
func (m *AgentMessage) RepliesTo(userMessageID string) bool {
	return m.ParentMessageID != nil && *m.ParentMessageID == userMessageID
}

// UnknownMessage holds any entry whose discriminant is not recognised.
type UnknownMessage struct {
	Kind string
	SID  string

	raw json.RawMessage
}

func (m *UnknownMessage) Type() string         { return m.Kind }
func (m *UnknownMessage) ID() string           { return m.SID }
func (m *UnknownMessage) Raw() json.RawMessage { return m.raw }
func (*UnknownMessage) conversationMessage()   {}

// DecodeMessage decodes a single conversation entry into its variant. Entries
// that are not objects, or whose fields do not match their declared type,
// decode to UnknownMessage.
func DecodeMessage(data []byte) Message {
	raw := append(json.RawMessage(nil), data...)

	var head struct {
		Type json.RawMessage `json:"type"`
		SID  json.RawMessage `json:"sId"`
	}

	if err := json.Unmarshal(data, &head); err != nil {
		return &UnknownMessage{raw: raw}
	}

	unknown := &UnknownMessage{Kind: jsonString(head.Type), SID: jsonString(head.SID), raw: raw}

	switch unknown.Kind {
	case MessageTypeUser:
		m := &UserMessage{raw: raw}
		if json.Unmarshal(data, m) != nil {
			return unknown
		}

		return m
	case MessageTypeAgent:
		m := &AgentMessage{raw: raw}
		if json.Unmarshal(data, m) != nil {
			return unknown
		}

		return m
	default:
		return unknown
	}
}

// Content is the flattened, ordered list of conversation messages. On the wire
// each entry is either a message or an array of message versions.
type Content []Message

// UnmarshalJSON flattens one level of nesting.
func (c *Content) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		*c = nil

		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to decode conversation content: %w", err)
	}

	flat := make(Content, 0, len(entries))

	for _, entry := range entries {
		trimmed := bytes.TrimSpace(entry)

		if len(trimmed) > 0 && trimmed[0] == '[' {
			var versions []json.RawMessage
			if err := json.Unmarshal(trimmed, &versions); err != nil {
				return fmt.Errorf("failed to decode conversation content: %w", err)
			}

			for _, version := range versions {
				if isNull(version) {
					continue
				}

				flat = append(flat, DecodeMessage(version))
			}

			continue
		}

		if isNull(trimmed) {
			continue
		}

		flat = append(flat, DecodeMessage(trimmed))
	}

	*c = flat

	return nil
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

// MarshalJSON writes the flattened messages back as received.
func (c Content) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(c))
	for _, m := range c {
		raws = append(raws, m.Raw())
	}

	return json.Marshal(raws)
}

// Owner is the workspace owning a conversation.
type Owner struct {
	SID  string `json:"sId"`
	Name string `json:"name,omitempty"`
}

// Conversation is a server-side thread of messages.
type Conversation struct {
	SID        string  `json:"sId"`
	Owner      Owner   `json:"owner"`
	Title      *string `json:"title"`
	Visibility string  `json:"visibility,omitempty"`
	Content    Content `json:"content"`
}

// First returns the first flattened message, or nil.
func (c *Conversation) First() Message {
	if len(c.Content) == 0 {
		return nil
	}

	return c.Content[0]
}

// LastUserMessage returns the last user_message entry, or nil.
func (c *Conversation) LastUserMessage() *UserMessage {
	for i := len(c.Content) - 1; i >= 0; i-- {
		if um, ok := c.Content[i].(*UserMessage); ok {
			return um
		}
	}

	return nil
}

// AgentMessages returns every agent_message entry in encounter order.
func (c *Conversation) AgentMessages() []*AgentMessage {
	var out []*AgentMessage

	for _, m := range c.Content {
		if am, ok := m.(*AgentMessage); ok {
			out = append(out, am)
		}
	}

	return out
}

// AgentText joins the trimmed non-empty agent replies with newlines, or returns
// NoMessageReturned. This is the reading used for blocking conversations.
func (c *Conversation) AgentText() string {
	var parts []string

	for _, am := range c.AgentMessages() {
		if text := strings.TrimSpace(am.Text()); text != "" {
			parts = append(parts, text)
		}
	}

	return joinOrSentinel(parts)
}

// ReplyText joins the non-empty agent replies to userMessageID with newlines, or
// returns NoMessageReturned. An empty userMessageID selects every agent message.
func (c *Conversation) ReplyText(userMessageID string) string {
	var parts []string

	for _, am := range c.AgentMessages() {
		if userMessageID != "" && !am.RepliesTo(userMessageID) {
			continue
		}

		if text := am.Text(); text != "" {
			parts = append(parts, text)
		}
	}

	return joinOrSentinel(parts)
}

func joinOrSentinel(parts []string) string {
	if len(parts) == 0 {
		return NoMessageReturned
	}

	return strings.Join(parts, "\n")
}

// ConversationURL is the human-navigable address of a conversation.
func ConversationURL(baseURL, ownerID, conversationID string) string {
	return fmt.Sprintf("%s/w/%s/assistant/%s", baseURL, ownerID, conversationID)
}
