package dust

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStreamEvent_AgentMessageDone(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus *string
		wantFailed bool
	}{
		{
			name:       "success",
			payload:    `{"type":"agent_message_done","conversationId":"c","messageId":"m","status":"success"}`,
			wantStatus: ptr("success"),
		},
		{
			name:       "success is case insensitive",
			payload:    `{"type":"agent_message_done","status":"SUCCESS"}`,
			wantStatus: ptr("SUCCESS"),
		},
		{
			name:       "failed",
			payload:    `{"type":"agent_message_done","conversationId":"c","messageId":"m","status":"failed"}`,
			wantStatus: ptr("failed"),
			wantFailed: true,
		},
		{
			name:    "missing status counts as success",
			payload: `{"type":"agent_message_done","conversationId":"c","messageId":"m"}`,
		},
		{
			name:    "null status counts as success",
			payload: `{"type":"agent_message_done","status":null}`,
		},
		{
			name:    "non string status is ignored",
			payload: `{"type":"agent_message_done","status":3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DecodeStreamEvent([]byte(eventJSON("1", tt.payload)))
			require.NoError(t, err)

			done, ok := event.Payload.(*AgentMessageDone)
			require.True(t, ok)
			assert.Equal(t, EventTypeAgentMessageDone, event.Type)
			assert.Equal(t, tt.wantStatus, done.Status)
			assert.Equal(t, tt.wantFailed, done.Failed())
		})
	}
}

func TestDecodeStreamEvent_KeepsRawPayloadAndEventID(t *testing.T) {
	payload := `{"type":"generation_tokens","messageId":"m1","text":"Hel","classification":"tokens"}`

	event, err := DecodeStreamEvent([]byte(eventJSON("42", payload)))
	require.NoError(t, err)

	assert.Equal(t, "42", event.EventID)
	assert.Equal(t, EventTypeGenerationTokens, event.Type)
	assert.JSONEq(t, payload, string(event.Data))

	tokens, ok := event.Payload.(*GenerationTokens)
	require.True(t, ok)
	assert.Equal(t, "Hel", tokens.Text)
}

func TestDecodeStreamEvent_AgentError(t *testing.T) {
	event, err := DecodeStreamEvent([]byte(`{"data":{"type":"agent_error","messageId":"m","error":{"code":"tool_error","message":"boom"}}}`))
	require.NoError(t, err)

	agentErr, ok := event.Payload.(*AgentError)
	require.True(t, ok)
	assert.Equal(t, "tool_error", agentErr.Error.Code)
	assert.Empty(t, event.EventID)
}

func TestDecodeStreamEvent_UnknownAndOddPayloads(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantType string
	}{
		{name: "unknown type", data: `{"data":{"type":"agent_action_success"}}`, wantType: "agent_action_success"},
		{name: "no data", data: `{"eventId":"1"}`, wantType: ""},
		{name: "scalar data", data: `{"data":"text"}`, wantType: ""},
		{name: "numeric event id ignored", data: `{"eventId":5,"data":{"type":"x"}}`, wantType: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DecodeStreamEvent([]byte(tt.data))
			require.NoError(t, err)

			_, ok := event.Payload.(*UnknownEventPayload)
			assert.True(t, ok)
			assert.Equal(t, tt.wantType, event.Type)
		})
	}
}

func TestDecodeStreamEvent_Malformed(t *testing.T) {
	for _, data := range []string{`{"data":`, `not json`, `[1,2]`} {
		_, err := DecodeStreamEvent([]byte(data))
		require.Error(t, err, data)
		assert.ErrorIs(t, err, ErrMalformedEvent)
	}
}

func TestPayloads(t *testing.T) {
	events := []StreamEvent{
		{Data: json.RawMessage(`{"type":"a"}`)},
		{Data: json.RawMessage(`{"type":"b"}`)},
	}

	assert.Equal(t, []json.RawMessage{
		json.RawMessage(`{"type":"a"}`),
		json.RawMessage(`{"type":"b"}`),
	}, Payloads(events))
}

func ptr(s string) *string {
	return &s
}
