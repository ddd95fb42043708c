package events

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"pronunciation-practice-service/internal/models"
	"pronunciation-practice-service/internal/observability/metrics"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerPartial != nil || p.writerScored != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		TopicPartial: "practice.partial",
		TopicScored:  "practice.scored",
		Metrics:      metrics.NewMetrics(prometheus.NewRegistry()),
	})
	defer p.Close()

	if !p.enabled {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerPartial == nil || p.writerPartial.Topic != "practice.partial" {
		t.Errorf("unexpected partial writer %+v", p.writerPartial)
	}
	if p.writerScored == nil || p.writerScored.Topic != "practice.scored" {
		t.Errorf("unexpected outcome writer %+v", p.writerScored)
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		TopicPartial: "test.partial",
		TopicScored:  "test.scored",
		Principal:    "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicPartial != "test.partial" {
		t.Errorf("expected topic partial 'test.partial', got %s", p.topicPartial)
	}
	if p.topicScored != "test.scored" {
		t.Errorf("expected topic scored 'test.scored', got %s", p.topicScored)
	}
}

func TestPublisher_Disabled_RecordsMetrics(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	p := New(&Config{Enabled: false, TopicPartial: "p", TopicScored: "s", Metrics: m})

	ev := models.TranscriptPartial{EventType: models.EventTranscriptPartial, AttemptID: "a-att-1", Text: "hello"}
	if err := p.PublishPartial(context.Background(), "a", ev); err != nil {
		t.Fatalf("expected no error when disabled, got %v", err)
	}
	out := models.AttemptScored{EventType: models.EventAttemptScored, AttemptID: "a-att-1", AccuracyPercent: 90}
	if err := p.PublishOutcome(context.Background(), "a", out); err != nil {
		t.Fatalf("expected no error when disabled, got %v", err)
	}

	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("p", "partial")); got != 1 {
		t.Errorf("expected 1 partial publish recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("s", "outcome")); got != 1 {
		t.Errorf("expected 1 outcome publish recorded, got %v", got)
	}
}

func TestPublisher_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Channels cannot be marshaled
	if err := p.PublishPartial(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable partial event")
	}
	if err := p.PublishOutcome(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable outcome event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilPublisher(t *testing.T) {
	p := &Publisher{}

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
