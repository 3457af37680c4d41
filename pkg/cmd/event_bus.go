// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/stride/pkg/channels/gochannel"
	"github.com/dukex/stride/pkg/channels/kafka"
	"github.com/dukex/stride/pkg/config"
	"github.com/dukex/stride/pkg/eventbus"
)

// NewEventBus builds the watermill backed bus selected by cfg.EventBus.
func NewEventBus(cfg *config.Config, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch cfg.EventBus {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, cfg.KafkaBrokers, cfg.KafkaGroup)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "gochannel", "":
		pub, sub := gochannel.CreateChannel(wmLogger, 0)

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", cfg.EventBus)
	}
}
