package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the process configuration, read from the environment.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	Practice      PracticeConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal   string
	GRPCPort    string
	HTTPPort    string
	MetricsAddr string
}

// STTConfig selects and configures the recognizer.
type STTConfig struct {
	Provider       string // mock, google, relay
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
}

// PracticeConfig holds per-attempt guardrails.
type PracticeConfig struct {
	MaxDuration     time.Duration
	MaxRestarts     int
	MaxFragments    int
	InterimFallback bool
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicScored  string
	Principal    string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-pronunciation-practice")

	return &Configuration{
		Service: ServiceConfig{
			Principal:   principal,
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
		STT: STTConfig{
			Provider:       strings.ToLower(envOrDefault("STT_PROVIDER", "mock")),
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   int32(envOrDefaultInt("STT_SAMPLE_RATE_HZ", 8000)),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
		},
		Practice: PracticeConfig{
			MaxDuration:     envOrDefaultDuration("PRACTICE_MAX_DURATION", 2*time.Minute),
			MaxRestarts:     envOrDefaultInt("PRACTICE_MAX_RESTARTS", 20),
			MaxFragments:    envOrDefaultInt("PRACTICE_MAX_FRAGMENTS", 2000),
			InterimFallback: envOrDefaultBool("PRACTICE_INTERIM_FALLBACK", true),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "practice.transcript.partial"),
			TopicScored:  envOrDefault("KAFKA_TOPIC_SCORED", "practice.attempt.outcome"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// envOrDefaultList splits a comma-separated value, dropping empty items.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
