// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"pronunciation-practice-service/internal/observability/metrics"
)

// Publisher publishes practice events to separate Kafka topics: live
// transcripts on one, attempt outcomes (scored or dropped) on the other.
type Publisher struct {
	writerPartial *kafka.Writer
	writerScored  *kafka.Writer
	principal     string
	topicPartial  string
	topicScored   string
	enabled       bool
	metrics       *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicScored  string
	Principal    string
	Enabled      bool
	Metrics      *metrics.Metrics
}

// New creates a new Kafka event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if cfg.Metrics != nil {
		m = cfg.Metrics
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:    cfg.Principal,
			topicPartial: cfg.TopicPartial,
			topicScored:  cfg.TopicScored,
			enabled:      false,
			metrics:      m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicScored", cfg.TopicScored).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerPartial: newWriter(cfg.Brokers, cfg.TopicPartial, transport),
		writerScored:  newWriter(cfg.Brokers, cfg.TopicScored, transport),
		principal:     cfg.Principal,
		topicPartial:  cfg.TopicPartial,
		topicScored:   cfg.TopicScored,
		enabled:       true,
		metrics:       m,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishPartial publishes a live transcript event to the partial topic.
func (p *Publisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerPartial, p.topicPartial, "partial", key, event)
}

// PublishOutcome publishes a scored or dropped attempt to the outcome topic.
func (p *Publisher) PublishOutcome(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerScored, p.topicScored, "outcome", key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerPartial != nil {
		if e := p.writerPartial.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing partial writer")
			err = e
		}
	}
	if p.writerScored != nil {
		if e := p.writerScored.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing outcome writer")
			err = e
		}
	}
	return err
}
