package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/model"
)

// TypeDetectionCreated is emitted once per persisted detection record.
const TypeDetectionCreated = "detection.created"

// RecordEvent is the payload published for a new detection record.
type RecordEvent struct {
	Type      string                `json:"type"`
	EmittedAt time.Time             `json:"emitted_at"`
	Record    model.DetectionRecord `json:"record"`
}

// ToJSON serializes the event.
func (e RecordEvent) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event: %w", err)
	}
	return data, nil
}

// Publisher announces new detection records to the outside world.
type Publisher interface {
	PublishRecord(ctx context.Context, rec model.DetectionRecord) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishRecord(context.Context, model.DetectionRecord) error { return nil }
func (NopPublisher) Close() error                                               { return nil }

// New returns a Kafka publisher when brokers are configured, otherwise a NopPublisher.
func New(cfg *config.Config, logger *logger.Logger) (Publisher, error) {
	if cfg.KafkaBrokers == "" {
		logger.Info("KAFKA_BROKERS not set, detection events are disabled")
		return NopPublisher{}, nil
	}
	return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
}
