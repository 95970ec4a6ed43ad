package dust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Defaults applied to the user message context when the caller leaves a field empty.
const (
	DefaultTimezone = "Europe/Paris"
	DefaultUsername = "DustN8N"
	DefaultEmail    = "n8n@dust.tt"
	MessageOrigin   = "n8n"
)

// MessageInput is a user message addressed to one agent.
type MessageInput struct {
	AgentID  string `validate:"required"`
	Content  string `validate:"required"`
	Username string
	Email    string
	Timezone string
}

type messageBody struct {
	Content  string         `json:"content"`
	Context  messageContext `json:"context"`
	Mentions []mention      `json:"mentions"`
}

type messageContext struct {
	Timezone          string  `json:"timezone"`
	Username          string  `json:"username"`
	Email             string  `json:"email"`
	FullName          *string `json:"fullName"`
	ProfilePictureURL *string `json:"profilePictureUrl"`
	Origin            string  `json:"origin"`
}

type mention struct {
	ConfigurationID string `json:"configurationId"`
}

type createConversationBody struct {
	Blocking            bool        `json:"blocking"`
	SkipToolsValidation bool        `json:"skipToolsValidation"`
	Title               *string     `json:"title"`
	Visibility          string      `json:"visibility"`
	Message             messageBody `json:"message"`
}

func (in MessageInput) body() messageBody {
	return messageBody{
		Content: in.Content,
		Context: messageContext{
			Timezone: valueOr(in.Timezone, DefaultTimezone),
			Username: valueOr(in.Username, DefaultUsername),
			Email:    valueOr(in.Email, DefaultEmail),
			Origin:   MessageOrigin,
		},
		Mentions: []mention{{ConfigurationID: in.AgentID}},
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}

	return v
}

// CreateConversation starts a conversation with one user message. When blocking
// is true the server waits for the agent and the returned conversation already
// holds its reply.
func (c *Client) CreateConversation(ctx context.Context, in MessageInput, blocking bool) (*Conversation, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: message: %w", ErrInvalidRequest, err)
	}

	body := createConversationBody{
		Blocking:            blocking,
		SkipToolsValidation: true,
		Visibility:          "unlisted",
		Message:             in.body(),
	}

	var resp struct {
		Conversation *Conversation `json:"conversation"`
	}

	err := c.doJSON(ctx, "create_conversation", http.MethodPost, c.apiURL("assistant", "conversations"), body, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Conversation == nil {
		return nil, errors.New("create_conversation: response has no conversation")
	}

	return resp.Conversation, nil
}

// GetConversation reads the full conversation.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var resp struct {
		Conversation *Conversation `json:"conversation"`
	}

	rawURL := c.apiURL("assistant", "conversations", url.PathEscape(conversationID))

	if err := c.doJSON(ctx, "get_conversation", http.MethodGet, rawURL, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Conversation == nil {
		return nil, errors.New("get_conversation: response has no conversation")
	}

	return resp.Conversation, nil
}

// TalkRequest asks one agent one question.
type TalkRequest struct {
	MessageInput

	// Stream follows the conversation event feed instead of blocking on creation.
	Stream bool
	// StreamTimeout bounds the streaming phase. Zero means DefaultStreamTimeout.
	StreamTimeout time.Duration
	// ReconnectDelay is waited between stream segments.
	ReconnectDelay time.Duration
	// Sink receives each streamed event.
	Sink EventSink
}

// TalkResult is the composed outcome of a conversation turn.
type TalkResult struct {
	AgentMessage    string
	ConversationURL string
	ConversationID  string
	// UserMessage is the originating user message as JSON, or null.
	UserMessage json.RawMessage
	// Events is set for streaming runs only.
	Events []StreamEvent
}

// Talk starts a conversation and returns the agent reply, either from the
// blocking creation response or by reconciling the event stream.
func (c *Client) Talk(ctx context.Context, req TalkRequest) (*TalkResult, error) {
	if req.StreamTimeout < 0 {
		return nil, fmt.Errorf("%w: stream timeout must be positive", ErrInvalidRequest)
	}

	conv, err := c.CreateConversation(ctx, req.MessageInput, !req.Stream)
	if err != nil {
		return nil, err
	}

	result := &TalkResult{
		ConversationURL: ConversationURL(c.baseURL, conv.Owner.SID, conv.SID),
		ConversationID:  conv.SID,
	}

	if !req.Stream {
		result.AgentMessage = conv.AgentText()
		result.UserMessage = rawOrNull(conv.First())

		return result, nil
	}

	var userMessageID string

	if um := conv.LastUserMessage(); um != nil {
		userMessageID = um.SID
		result.UserMessage = um.Raw()
	} else {
		result.UserMessage, err = json.Marshal(req.MessageInput.body())
		if err != nil {
			return nil, fmt.Errorf("failed to encode user message: %w", err)
		}
	}

	c.logger.DebugContext(ctx, "Following conversation events",
		"conversation_id", conv.SID,
		"user_message_id", userMessageID,
	)

	reconciler := c.NewReconciler(conv.SID, userMessageID, StreamOptions{
		Timeout:        req.StreamTimeout,
		ReconnectDelay: req.ReconnectDelay,
		Sink:           req.Sink,
	})

	rec, err := reconciler.Run(ctx)
	if err != nil {
		return nil, err
	}

	result.AgentMessage = rec.AgentMessage
	result.Events = rec.Events

	return result, nil
}

func rawOrNull(m Message) json.RawMessage {
	if m == nil || len(m.Raw()) == 0 {
		return json.RawMessage("null")
	}

	return m.Raw()
}
