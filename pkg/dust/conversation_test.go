package dust

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeConversation(t *testing.T, data string) *Conversation {
	t.Helper()

	var conv Conversation
	require.NoError(t, json.Unmarshal([]byte(data), &conv))

	return &conv
}

func TestContent_FlattensVersionsAndBareMessages(t *testing.T) {
	conv := decodeConversation(t, `{
		"sId": "c",
		"owner": {"sId": "w"},
		"content": [
			[{"type": "user_message", "sId": "u1", "content": "Hi"}],
			{"type": "agent_message", "sId": "a1", "content": "Hello"},
			null,
			[{"type": "agent_message", "sId": "a2", "content": "v1"}, {"type": "agent_message", "sId": "a3", "content": "v2"}],
			[{"type": "content_fragment", "sId": "f1"}]
		]
	}`)

	require.Len(t, conv.Content, 5)

	ids := make([]string, 0, len(conv.Content))
	for _, m := range conv.Content {
		ids = append(ids, m.ID())
	}

	assert.Equal(t, []string{"u1", "a1", "a2", "a3", "f1"}, ids)

	unknown, ok := conv.Content[4].(*UnknownMessage)
	require.True(t, ok)
	assert.Equal(t, "content_fragment", unknown.Type())
}

func TestContent_MarshalKeepsRawMessages(t *testing.T) {
	conv := decodeConversation(t, `{"content":[[{"type":"user_message","sId":"u1","extra":{"k":1}}]]}`)

	out, err := json.Marshal(conv.Content)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"user_message","sId":"u1","extra":{"k":1}}]`, string(out))
}

func TestConversation_AgentText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "single reply",
			content: `[[{"type":"user_message","sId":"u1"}],[{"type":"agent_message","content":"Hello!"}]]`,
			want:    "Hello!",
		},
		{
			name:    "trimmed and joined",
			content: `[[{"type":"agent_message","content":"  one \n"}],[{"type":"agent_message","content":"two"}]]`,
			want:    "one\ntwo",
		},
		{
			name:    "blank and null replies skipped",
			content: `[[{"type":"agent_message","content":"   "}],[{"type":"agent_message","content":null}]]`,
			want:    NoMessageReturned,
		},
		{
			name:    "no agent message",
			content: `[[{"type":"user_message","sId":"u1","content":"Hi"}]]`,
			want:    NoMessageReturned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := decodeConversation(t, `{"content":`+tt.content+`}`)
			assert.Equal(t, tt.want, conv.AgentText())
		})
	}
}

func TestConversation_ReplyText(t *testing.T) {
	conv := decodeConversation(t, finalConversation)

	assert.Equal(t, "Hello streamed", conv.ReplyText("u1"))
	assert.Equal(t, "Old answer\nHello streamed", conv.ReplyText(""))
	assert.Equal(t, NoMessageReturned, conv.ReplyText("missing"))
}

func TestConversation_ReplyTextKeepsWhitespace(t *testing.T) {
	conv := decodeConversation(t, `{"content":[[{"type":"agent_message","parentMessageId":"u1","content":"  spaced  "}]]}`)

	assert.Equal(t, "  spaced  ", conv.ReplyText("u1"))
}

func TestConversation_FirstAndLastUserMessage(t *testing.T) {
	conv := decodeConversation(t, finalConversation)

	assert.Equal(t, "u0", conv.First().ID())
	require.NotNil(t, conv.LastUserMessage())
	assert.Equal(t, "u1", conv.LastUserMessage().SID)

	empty := decodeConversation(t, `{"content":[]}`)
	assert.Nil(t, empty.First())
	assert.Nil(t, empty.LastUserMessage())
}

func TestConversationURL(t *testing.T) {
	assert.Equal(t, "https://dust.tt/w/ws1/assistant/conv1", ConversationURL(BaseURLUS, "ws1", "conv1"))
}

func TestContent_MalformedEntriesBecomeUnknown(t *testing.T) {
	conv := decodeConversation(t, `{"content":[
		"stray",
		[42, null, {"type":"user_message","sId":"u1","content":{"nested":true}}],
		{"type":"agent_message","sId":"a0","content":7},
		[{"type":"agent_message","sId":"a1","content":"Hello"}]
	]}`)

	require.Len(t, conv.Content, 5)

	for _, m := range conv.Content[:4] {
		_, ok := m.(*UnknownMessage)
		assert.True(t, ok, "expected unknown message, got %T", m)
	}

	assert.Equal(t, "u1", conv.Content[2].ID())
	assert.JSONEq(t, `"stray"`, string(conv.Content[0].Raw()))
	assert.Nil(t, conv.LastUserMessage())
	assert.Equal(t, "Hello", conv.AgentText())
}
