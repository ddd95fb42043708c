package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"pronunciation-practice-service/internal/events"
	"pronunciation-practice-service/internal/observability"
	"pronunciation-practice-service/internal/observability/metrics"
	"pronunciation-practice-service/internal/service/practice"
	"pronunciation-practice-service/internal/service/stt"
	"pronunciation-practice-service/internal/service/stt/mock"
	"pronunciation-practice-service/internal/service/stt/relay"
	"pronunciation-practice-service/internal/service/transcript"
)

const bufSize = 1024 * 1024

// startServer serves the practice service over an in-memory listener.
func startServer(t *testing.T, factory practice.AdapterFactory) *Client {
	t.Helper()

	m := metrics.NewMetrics(prometheus.NewRegistry())
	opts := practice.DefaultOptions()
	opts.Metrics = m

	lis := bufconn.Listen(bufSize)
	g := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(m)),
	)
	Register(g, NewServer(factory, events.New(&events.Config{Enabled: false, Metrics: m}), opts))

	go g.Serve(lis)
	t.Cleanup(g.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return NewClient(conn)
}

func relayFactory(context.Context) (stt.Adapter, error) {
	return relay.New(), nil
}

func header(reference string) PracticeMessage {
	return PracticeMessage{Header: &PracticeHeader{
		LearnerID:  "learner-1",
		ExerciseID: "ex-1",
		Reference:  reference,
	}}
}

func TestScore(t *testing.T) {
	client := startServer(t, relayFactory)

	tests := []struct {
		name     string
		spoken   string
		expected int
	}{
		{"exact", "the cat sat", 100},
		{"reordered", "cat the sat", 93},
		{"unrelated", "dog runs fast", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Score(context.Background(), ScoreRequest{Spoken: tt.spoken, Reference: "The cat sat."})
			if err != nil {
				t.Fatalf("Score failed: %v", err)
			}
			if resp.Result.AccuracyPercent != tt.expected {
				t.Errorf("Score(%q) = %d, want %d", tt.spoken, resp.Result.AccuracyPercent, tt.expected)
			}
		})
	}
}

func TestScore_MissingReference(t *testing.T) {
	client := startServer(t, relayFactory)

	_, err := client.Score(context.Background(), ScoreRequest{Spoken: "hello"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestPractice_RelayedFragments(t *testing.T) {
	client := startServer(t, relayFactory)

	stream, err := client.Practice(context.Background())
	if err != nil {
		t.Fatalf("Practice failed: %v", err)
	}

	msgs := []PracticeMessage{
		header("I would like a cup of tea, please."),
		{Fragments: []transcript.Fragment{{Text: "I would"}}},
		{Fragments: []transcript.Fragment{{Text: "I would like", IsFinal: true}}, SessionEnd: true},
		{Fragments: []transcript.Fragment{{Text: "a cup of"}}},
		{Fragments: []transcript.Fragment{{Text: "a cup of tea please", IsFinal: true}}},
	}
	for _, msg := range msgs {
		if err := stream.Send(msg); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	out, err := stream.CloseAndRecv()
	if err != nil {
		t.Fatalf("CloseAndRecv failed: %v", err)
	}
	if out.Transcript != "I would like a cup of tea please" {
		t.Errorf("unexpected transcript %q", out.Transcript)
	}
	if out.Result.AccuracyPercent != 100 {
		t.Errorf("expected 100%%, got %d", out.Result.AccuracyPercent)
	}
	if out.Restarts != 1 {
		t.Errorf("expected 1 restart, got %d", out.Restarts)
	}
	if out.AttemptID != "learner-1-att-1" {
		t.Errorf("expected attempt id learner-1-att-1, got %s", out.AttemptID)
	}
}

func TestPractice_InterimFallback(t *testing.T) {
	client := startServer(t, relayFactory)

	stream, _ := client.Practice(context.Background())
	stream.Send(header("good morning"))
	stream.Send(PracticeMessage{Fragments: []transcript.Fragment{{Text: "good morning"}}})

	out, err := stream.CloseAndRecv()
	if err != nil {
		t.Fatalf("CloseAndRecv failed: %v", err)
	}
	if !out.UsedInterim {
		t.Error("expected interim fallback to be used")
	}
	if out.Result.AccuracyPercent != 100 {
		t.Errorf("expected 100%%, got %d", out.Result.AccuracyPercent)
	}
}

func TestPractice_MockAudio(t *testing.T) {
	adapter := mock.NewWithScript(mock.DefaultScripts[0], 0)
	client := startServer(t, func(context.Context) (stt.Adapter, error) { return adapter, nil })

	stream, _ := client.Practice(context.Background())
	stream.Send(header("the cat sat on the mat"))
	for i := 0; i < 8; i++ {
		if err := stream.Send(PracticeMessage{Audio: []byte{0x01, 0x02}}); err != nil {
			t.Fatalf("Send audio failed: %v", err)
		}
	}

	out, err := stream.CloseAndRecv()
	if err != nil {
		t.Fatalf("CloseAndRecv failed: %v", err)
	}
	if out.Transcript != "the cat sat on the mat" {
		t.Errorf("unexpected transcript %q", out.Transcript)
	}
	if out.Result.AccuracyPercent != 100 {
		t.Errorf("expected 100%%, got %d", out.Result.AccuracyPercent)
	}
}

func TestPractice_Errors(t *testing.T) {
	tests := []struct {
		name     string
		factory  practice.AdapterFactory
		msgs     []PracticeMessage
		expected codes.Code
	}{
		{
			name:     "missing header",
			factory:  relayFactory,
			msgs:     []PracticeMessage{{Fragments: []transcript.Fragment{{Text: "hi"}}}},
			expected: codes.InvalidArgument,
		},
		{
			name:     "no speech",
			factory:  relayFactory,
			msgs:     []PracticeMessage{header("hello")},
			expected: codes.FailedPrecondition,
		},
		{
			name:     "recognizer failure",
			factory:  relayFactory,
			msgs:     []PracticeMessage{header("hello"), {Error: "microphone lost"}},
			expected: codes.Aborted,
		},
		{
			name: "fragments without relay",
			factory: func(context.Context) (stt.Adapter, error) {
				return mock.NewWithScript(nil, 0), nil
			},
			msgs:     []PracticeMessage{header("hello"), {Fragments: []transcript.Fragment{{Text: "hello"}}}},
			expected: codes.FailedPrecondition,
		},
		{
			name: "recognizer unavailable",
			factory: func(context.Context) (stt.Adapter, error) {
				return nil, errors.New("no credentials")
			},
			msgs:     []PracticeMessage{header("hello")},
			expected: codes.Unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := startServer(t, tt.factory)
			stream, err := client.Practice(context.Background())
			if err != nil {
				t.Fatalf("Practice failed: %v", err)
			}
			for _, msg := range tt.msgs {
				// The server may already have failed the stream.
				if err := stream.Send(msg); err != nil {
					break
				}
			}

			_, err = stream.CloseAndRecv()
			if status.Code(err) != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestStructRoundTrip(t *testing.T) {
	in := PracticeMessage{
		Audio:     []byte{0x00, 0xff, 0x10},
		Fragments: []transcript.Fragment{{Text: "hi", IsFinal: true, SequenceIndex: 3}},
	}
	s, err := toStruct(in)
	if err != nil {
		t.Fatalf("toStruct failed: %v", err)
	}

	var out PracticeMessage
	if err := fromStruct(s, &out); err != nil {
		t.Fatalf("fromStruct failed: %v", err)
	}
	if string(out.Audio) != string(in.Audio) {
		t.Errorf("audio = %v, want %v", out.Audio, in.Audio)
	}
	if len(out.Fragments) != 1 || out.Fragments[0] != in.Fragments[0] {
		t.Errorf("fragments = %+v, want %+v", out.Fragments, in.Fragments)
	}
}
