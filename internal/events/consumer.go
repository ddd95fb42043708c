package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"pronunciation-practice-service/internal/models"
)

// ConsumerConfig configures a topic reader.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	// Since rewinds the reader this far before the first read; zero reads new messages only.
	Since time.Duration
}

// Consume reads practice events from one topic partition and passes each
// decoded event to fn until ctx is done. Undecodable messages are logged and skipped.
func Consume(ctx context.Context, cfg ConsumerConfig, fn func(event any)) error {
	// Partition reader without consumer group (works better through port-forward)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   cfg.Brokers,
		Topic:     cfg.Topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	start := time.Now()
	if cfg.Since > 0 {
		start = start.Add(-cfg.Since)
	}
	if err := reader.SetOffsetAt(ctx, start); err != nil {
		return fmt.Errorf("seek %s: %w", cfg.Topic, err)
	}

	log.Info().Str("topic", cfg.Topic).Dur("since", cfg.Since).Msg("Consuming practice events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("topic", cfg.Topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		event, err := Decode(msg.Value)
		if err != nil {
			log.Warn().Err(err).Str("topic", cfg.Topic).Int64("offset", msg.Offset).Msg("Skipping event")
			continue
		}
		fn(event)
	}
}

// Decode parses a published event into its model type by its eventType.
func Decode(payload []byte) (any, error) {
	var envelope struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	var event any
	switch envelope.EventType {
	case models.EventTranscriptPartial:
		event = &models.TranscriptPartial{}
	case models.EventAttemptScored:
		event = &models.AttemptScored{}
	case models.EventAttemptDropped:
		event = &models.AttemptDropped{}
	default:
		return nil, fmt.Errorf("unknown event type %q", envelope.EventType)
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("decode %s: %w", envelope.EventType, err)
	}
	return event, nil
}
