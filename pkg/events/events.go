// Package events defines the notifications published while following Dust conversations.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every Dust notification.
const Topic = "operion.dust.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// DustStreamEventType is an event observed on a conversation event stream.
	DustStreamEventType EventType = "dust.stream.event"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates a BaseEvent with a fresh ID and the current time.
func NewBaseEvent(eventType EventType, workspaceID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkspaceID: workspaceID,
	}
}

// DustStreamEvent republishes one conversation stream event.
type DustStreamEvent struct {
	BaseEvent

	ConversationID string          `json:"conversation_id"`
	EventID        string          `json:"event_id,omitempty"`
	PayloadType    string          `json:"payload_type"`
	Payload        json.RawMessage `json:"payload"`
}

func (e DustStreamEvent) GetType() EventType {
	return DustStreamEventType
}
