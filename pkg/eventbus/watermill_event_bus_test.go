package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/operion-dust/pkg/channels/gochannel"
	"github.com/dukex/operion-dust/pkg/dust"
	"github.com/dukex/operion-dust/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.DustStreamEvent, 1)
	require.NoError(t, bus.Handle(events.DustStreamEventType, func(_ context.Context, event any) error {
		received <- event.(*events.DustStreamEvent)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "conv1", events.DustStreamEvent{
		BaseEvent:      events.NewBaseEvent(events.DustStreamEventType, "ws1"),
		ConversationID: "conv1",
		PayloadType:    "generation_tokens",
		Payload:        json.RawMessage(`{"type":"generation_tokens"}`),
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "conv1", event.ConversationID)
		assert.Equal(t, "generation_tokens", event.PayloadType)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestStreamEventSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.DustStreamEvent, 2)
	require.NoError(t, bus.Handle(events.DustStreamEventType, func(_ context.Context, event any) error {
		received <- event.(*events.DustStreamEvent)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	sink := NewStreamEventSink(bus, "ws1", slog.Default())

	event, err := dust.DecodeStreamEvent([]byte(`{"eventId":"7","data":{"type":"agent_message_done","status":"success"}}`))
	require.NoError(t, err)
	require.NoError(t, sink.HandleStreamEvent(ctx, "conv1", event))

	select {
	case got := <-received:
		assert.Equal(t, "conv1", got.ConversationID)
		assert.Equal(t, "7", got.EventID)
		assert.Equal(t, "agent_message_done", got.PayloadType)
		assert.Equal(t, "ws1", got.WorkspaceID)
		assert.JSONEq(t, `{"type":"agent_message_done","status":"success"}`, string(got.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}
