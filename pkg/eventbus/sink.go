package eventbus

import (
	"context"
	"log/slog"

	"github.com/dukex/operion-dust/pkg/dust"
	"github.com/dukex/operion-dust/pkg/events"
)

// StreamEventSink republishes reconciled stream events keyed by conversation.
type StreamEventSink struct {
	publisher   EventPublisher
	workspaceID string
	logger      *slog.Logger
}

func NewStreamEventSink(publisher EventPublisher, workspaceID string, logger *slog.Logger) *StreamEventSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &StreamEventSink{
		publisher:   publisher,
		workspaceID: workspaceID,
		logger:      logger.With("module", "stream_event_sink"),
	}
}

func (s *StreamEventSink) HandleStreamEvent(ctx context.Context, conversationID string, event dust.StreamEvent) error {
	payload := event.Data
	if len(payload) == 0 {
		payload = []byte("null")
	}

	err := s.publisher.Publish(ctx, conversationID, events.DustStreamEvent{
		BaseEvent:      events.NewBaseEvent(events.DustStreamEventType, s.workspaceID),
		ConversationID: conversationID,
		EventID:        event.EventID,
		PayloadType:    event.Type,
		Payload:        payload,
	})
	if err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "Published stream event",
		"conversation_id", conversationID,
		"event_id", event.EventID,
		"type", event.Type,
	)

	return nil
}
