package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dukex/operion-dust/pkg/events"
)

// NewStreamEventLogger returns a handler logging every stream event it receives.
func NewStreamEventLogger(logger *slog.Logger) EventHandler {
	logger = logger.With("module", "stream_event_logger")

	return func(ctx context.Context, event any) error {
		e, ok := event.(*events.DustStreamEvent)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		logger.InfoContext(ctx, "Stream event",
			"conversation_id", e.ConversationID,
			"event_id", e.EventID,
			"type", e.PayloadType,
			"workspace_id", e.WorkspaceID,
		)

		return nil
	}
}

// NewStreamEventPrinter returns a handler writing each stream event to w as a
// JSON line. A non-empty conversationID drops events of other conversations.
func NewStreamEventPrinter(w io.Writer, conversationID string) EventHandler {
	var mu sync.Mutex

	encoder := json.NewEncoder(w)

	return func(_ context.Context, event any) error {
		e, ok := event.(*events.DustStreamEvent)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		if conversationID != "" && e.ConversationID != conversationID {
			return nil
		}

		mu.Lock()
		defer mu.Unlock()

		return encoder.Encode(e)
	}
}

// Watch registers handler for stream events and starts consuming.
func Watch(ctx context.Context, subscriber EventSubscriber, handler EventHandler) error {
	if err := subscriber.Handle(events.DustStreamEventType, handler); err != nil {
		return err
	}

	return subscriber.Subscribe(ctx)
}
