package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "pronunciation-practice-service/internal/api/grpc"
	"pronunciation-practice-service/internal/app"
	"pronunciation-practice-service/internal/config"
	"pronunciation-practice-service/internal/events"
	apphttp "pronunciation-practice-service/internal/http"
	"pronunciation-practice-service/internal/observability"
	"pronunciation-practice-service/internal/observability/metrics"
	"pronunciation-practice-service/internal/service/practice"
	"pronunciation-practice-service/internal/service/stt"
	"pronunciation-practice-service/internal/service/stt/google"
	"pronunciation-practice-service/internal/service/stt/mock"
	"pronunciation-practice-service/internal/service/stt/relay"
)

func main() {
	cfg := config.Load()

	application := app.New(cfg)
	defer application.Shutdown()

	m := metrics.DefaultMetrics

	newAdapter, err := adapterFactory(cfg.STT)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid recognizer configuration")
	}

	// Kafka publisher with separate topics for live transcripts and attempt outcomes
	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicScored:  cfg.Kafka.TopicScored,
		Principal:    cfg.Kafka.Principal,
		Metrics:      m,
	})
	defer publisher.Close()

	obsServer := observability.NewServer(cfg.Service.MetricsAddr)
	obsServer.Start()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
	}

	server := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Register application services
	grpcapi.Register(server, grpcapi.NewServer(newAdapter, publisher, practice.Options{
		Limits: practice.Limits{
			MaxDuration:  cfg.Practice.MaxDuration,
			MaxRestarts:  cfg.Practice.MaxRestarts,
			MaxFragments: cfg.Practice.MaxFragments,
		},
		InterimFallback: cfg.Practice.InterimFallback,
		Provider:        cfg.STT.Provider,
		Metrics:         m,
	}))

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(server)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           apphttp.NewRouter(application, m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Application start failed")
	}

	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC server started")
		if err := server.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("gRPC serve failed")
		}
	}()
	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()
	obsServer.SetReady(true)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down servers")
	obsServer.SetReady(false)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	server.GracefulStop()
	if err := obsServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Observability shutdown failed")
	}
}

// adapterFactory returns the per-attempt recognizer constructor for the provider.
func adapterFactory(cfg config.STTConfig) (practice.AdapterFactory, error) {
	switch cfg.Provider {
	case "mock":
		return func(context.Context) (stt.Adapter, error) { return mock.New(), nil }, nil
	case "relay":
		return func(context.Context) (stt.Adapter, error) { return relay.New(), nil }, nil
	case "google":
		gcfg := google.Config{
			LanguageCode:   cfg.LanguageCode,
			SampleRateHz:   cfg.SampleRateHz,
			InterimResults: cfg.InterimResults,
			AudioEncoding:  cfg.AudioEncoding,
		}
		return func(ctx context.Context) (stt.Adapter, error) {
			a, err := google.New(ctx, gcfg)
			if err != nil {
				return nil, err
			}
			return a, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}
