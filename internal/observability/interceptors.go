package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"pronunciation-practice-service/internal/observability/metrics"
)

// Metadata keys a client sets so calls can be traced to a learner.
const (
	MetadataLearnerID  = "x-learner-id"
	MetadataExerciseID = "x-exercise-id"
)

// WithLearner tags outgoing calls on ctx with the learner and exercise.
// Empty values are not sent.
func WithLearner(ctx context.Context, learnerID, exerciseID string) context.Context {
	if learnerID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, MetadataLearnerID, learnerID)
	}
	if exerciseID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, MetadataExerciseID, exerciseID)
	}
	return ctx
}

// LearnerFromContext returns the learner and exercise a server call was tagged with.
func LearnerFromContext(ctx context.Context) (learnerID, exerciseID string) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ""
	}
	if v := md.Get(MetadataLearnerID); len(v) > 0 {
		learnerID = v[0]
	}
	if v := md.Get(MetadataExerciseID); len(v) > 0 {
		exerciseID = v[0]
	}
	return learnerID, exerciseID
}

// callLogger carries the caller's learner, exercise and address.
func callLogger(ctx context.Context) zerolog.Logger {
	lc := log.With()
	learnerID, exerciseID := LearnerFromContext(ctx)
	if learnerID != "" {
		lc = lc.Str("learnerId", learnerID)
	}
	if exerciseID != "" {
		lc = lc.Str("exerciseId", exerciseID)
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		lc = lc.Str("peer", p.Addr.String())
	}
	return lc.Logger()
}

// UnaryServerInterceptor records request metrics and logs each scoring call.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		code := status.Code(err).String()
		m.RecordRequest("grpc", info.FullMethod, code, duration.Seconds())

		logger := callLogger(ctx)
		logger.Info().
			Str("method", info.FullMethod).
			Str("code", code).
			Dur("duration", duration).
			Msg("Practice call completed")

		return resp, err
	}
}

// StreamServerInterceptor tracks practice streams and logs how each attempt stream ended.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx := context.Background()
		if ss != nil {
			ctx = ss.Context()
		}

		start := time.Now()
		m.RecordStreamStart()

		err := handler(srv, ss)

		duration := time.Since(start)
		success := err == nil
		m.RecordStreamEnd(success, duration.Seconds())

		logger := callLogger(ctx)
		logger.Info().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", duration).
			Bool("success", success).
			Msg("Practice stream closed")

		return err
	}
}
