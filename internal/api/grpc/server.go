// Package grpcapi exposes pronunciation scoring and practice attempts over gRPC.
package grpcapi

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"pronunciation-practice-service/internal/events"
	"pronunciation-practice-service/internal/service/attempt"
	"pronunciation-practice-service/internal/service/practice"
	"pronunciation-practice-service/internal/service/scoring"
	"pronunciation-practice-service/internal/service/stt"
	"pronunciation-practice-service/internal/service/stt/relay"
)

type Server struct {
	newAdapter practice.AdapterFactory
	publisher  *events.Publisher
	attempts   *attempt.Generator
	opts       practice.Options
}

// NewServer creates the service. newAdapter opens the recognizer for each
// practice attempt.
func NewServer(newAdapter practice.AdapterFactory, publisher *events.Publisher, opts practice.Options) *Server {
	return &Server{
		newAdapter: newAdapter,
		publisher:  publisher,
		attempts:   attempt.New(),
		opts:       opts,
	}
}

// Register registers the service on g.
func Register(g *grpc.Server, s *Server) {
	RegisterPronunciationServiceServer(g, s)
}

// Score scores a transcript against a reference sentence.
func (s *Server) Score(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ScoreRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Reference == "" {
		return nil, status.Error(codes.InvalidArgument, "reference is required")
	}

	out, err := toStruct(ScoreResponse{Result: scoring.Score(req.Spoken, req.Reference)})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Practice runs one recording attempt for the duration of the stream.
// Closing the send side stops the attempt; the outcome is the response.
func (s *Server) Practice(stream grpc.ClientStreamingServer[structpb.Struct, structpb.Struct]) error {
	ctx := stream.Context()

	first, err := recvMessage(stream)
	if err != nil {
		return err
	}
	hdr := first.Header
	if hdr == nil || hdr.LearnerID == "" || hdr.Reference == "" {
		return status.Error(codes.InvalidArgument, "first message must be a header with learnerId and reference")
	}

	logger := log.With().
		Str("learnerId", hdr.LearnerID).
		Str("exerciseId", hdr.ExerciseID).
		Logger()

	// Keep the adapter the handler opens so relayed fragments can reach it.
	var adapter stt.Adapter
	factory := func(ctx context.Context) (stt.Adapter, error) {
		a, err := s.newAdapter(ctx)
		adapter = a
		return a, err
	}

	h := practice.NewHandlerWithOptions(factory, s.publisher, s.attempts, practice.Exercise{
		LearnerID:  hdr.LearnerID,
		ExerciseID: hdr.ExerciseID,
		Reference:  hdr.Reference,
	}, s.opts)

	if err := h.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to start recording attempt")
		return status.Error(codes.Unavailable, err.Error())
	}

	for {
		msg, err := recvMessage(stream)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.Abort(practice.ReasonClientAborted)
			return err
		}

		if err := s.apply(ctx, h, adapter, msg); err != nil {
			h.Abort(practice.ReasonClientAborted)
			return toStatus(err)
		}
		if h.State() == attempt.StateDropped {
			_, err := h.Stop(ctx)
			return toStatus(err)
		}
	}

	out, err := h.Stop(ctx)
	if err != nil {
		return toStatus(err)
	}

	resp, err := toStruct(PracticeOutcome{
		AttemptID:   out.AttemptID,
		Transcript:  out.Transcript,
		UsedInterim: out.UsedInterim,
		Restarts:    out.Restarts,
		Result:      out.Result,
	})
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.SendAndClose(resp)
}

// apply feeds one client message into the attempt.
func (s *Server) apply(ctx context.Context, h *practice.Handler, adapter stt.Adapter, msg PracticeMessage) error {
	if msg.Header != nil {
		return status.Error(codes.InvalidArgument, "header may only be sent once")
	}
	if len(msg.Audio) > 0 {
		if err := h.SendAudio(ctx, msg.Audio); err != nil {
			return err
		}
	}

	if len(msg.Fragments) == 0 && !msg.SessionEnd && msg.Error == "" {
		return nil
	}
	r, ok := adapter.(*relay.Adapter)
	if !ok {
		return status.Error(codes.FailedPrecondition, "recognition results require the relay recognizer")
	}

	var err error
	switch {
	case msg.Error != "":
		err = r.Fail(errors.New(msg.Error))
	case len(msg.Fragments) > 0:
		err = r.Push(msg.Fragments)
		if err == nil && msg.SessionEnd {
			err = r.EndSession()
		}
	default:
		err = r.EndSession()
	}
	if errors.Is(err, relay.ErrClosed) {
		return attempt.ErrAttemptClosed
	}
	return err
}

func recvMessage(stream grpc.ClientStreamingServer[structpb.Struct, structpb.Struct]) (PracticeMessage, error) {
	in, err := stream.Recv()
	if err != nil {
		return PracticeMessage{}, err
	}
	var msg PracticeMessage
	if err := fromStruct(in, &msg); err != nil {
		return PracticeMessage{}, status.Error(codes.InvalidArgument, err.Error())
	}
	return msg, nil
}

// toStatus maps attempt errors to gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, practice.ErrLimitExceeded), errors.Is(err, practice.ErrRestartLimit):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, practice.ErrNoSpeech):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, practice.ErrAttemptDropped), errors.Is(err, attempt.ErrAttemptClosed):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, attempt.ErrNotRecording), errors.Is(err, attempt.ErrAlreadyStopped):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
