// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/operion-dust/pkg/channels/gochannel"
	"github.com/dukex/operion-dust/pkg/channels/kafka"
	"github.com/dukex/operion-dust/pkg/eventbus"
)

// Event bus providers.
const (
	EventBusNone      = "none"
	EventBusGoChannel = "gochannel"
	EventBusKafka     = "kafka"
)

// ErrLocalEventBus is returned when consuming from a bus that only lives in
// the current process.
var ErrLocalEventBus = errors.New("provider does not share events between processes, use kafka")

// NewEventBus creates the event bus used to republish stream events. It returns
// nil for the "none" provider. The gochannel bus lives in this process and can
// be watched with eventbus.Watch; the kafka bus only publishes.
func NewEventBus(provider string, logger *slog.Logger) (*eventbus.WatermillEventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", EventBusNone:
		return nil, nil
	case EventBusGoChannel:
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case EventBusKafka:
		brokers, err := kafka.Brokers()
		if err != nil {
			return nil, err
		}

		pub, err := kafka.CreatePublisher(wmLogger, brokers)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, nil), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}

// NewEventSubscriber creates a bus consuming the stream events published by
// other processes, in the consumer group of serviceName.
func NewEventSubscriber(provider, serviceName string, logger *slog.Logger) (*eventbus.WatermillEventBus, error) {
	switch provider {
	case EventBusKafka:
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "", EventBusNone, EventBusGoChannel:
		return nil, fmt.Errorf("%w: %q", ErrLocalEventBus, provider)
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
