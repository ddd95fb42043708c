package practice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"pronunciation-practice-service/internal/events"
	"pronunciation-practice-service/internal/observability/metrics"
	"pronunciation-practice-service/internal/service/attempt"
	"pronunciation-practice-service/internal/service/stt"
	"pronunciation-practice-service/internal/service/stt/mock"
	"pronunciation-practice-service/internal/service/transcript"
)

// testAdapter implements stt.Adapter for testing
type testAdapter struct {
	starts  int
	closed  bool
	audio   [][]byte
	cb      stt.Callback
	failing bool
}

func (m *testAdapter) Start(ctx context.Context, cb stt.Callback) error {
	if m.failing {
		return errors.New("start failed")
	}
	m.starts++
	m.cb = cb
	return nil
}

func (m *testAdapter) SendAudio(ctx context.Context, audio []byte) error {
	m.audio = append(m.audio, audio)
	return nil
}

func (m *testAdapter) Close() error {
	m.closed = true
	return nil
}

// mockPublisher for testing (log-only)
func newMockPublisher() *events.Publisher {
	return events.New(&events.Config{Enabled: false})
}

func factoryFor(a stt.Adapter) AdapterFactory {
	return func(context.Context) (stt.Adapter, error) { return a, nil }
}

func newTestHandler(t *testing.T, factory AdapterFactory, reference string, mutate func(*Options)) (*Handler, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	opts := DefaultOptions()
	opts.Metrics = m
	if mutate != nil {
		mutate(&opts)
	}
	exercise := Exercise{LearnerID: "learner-1", ExerciseID: "ex-1", Reference: reference}
	return NewHandlerWithOptions(factory, newMockPublisher(), attempt.New(), exercise, opts), m
}

func TestHandler_MockEndToEnd(t *testing.T) {
	adapter := mock.NewWithScript(mock.DefaultScripts[0], 0)
	h, m := newTestHandler(t, factoryFor(adapter), "The <b>cat</b> sat on the mat.", nil)
	ctx := context.Background()

	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 8; i++ {
		if err := h.SendAudio(ctx, []byte{0x01, 0x02}); err != nil {
			t.Fatalf("SendAudio %d failed: %v", i, err)
		}
	}

	out, err := h.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if out.Transcript != "the cat sat on the mat" {
		t.Errorf("expected transcript 'the cat sat on the mat', got %q", out.Transcript)
	}
	if out.Result.AccuracyPercent != 100 {
		t.Errorf("expected 100%% accuracy, got %d", out.Result.AccuracyPercent)
	}
	if out.UsedInterim {
		t.Error("expected committed transcript, not interim fallback")
	}
	if out.Restarts != 1 {
		t.Errorf("expected 1 restart, got %d", out.Restarts)
	}
	if adapter.Starts() != 2 {
		t.Errorf("expected recognizer started twice, got %d", adapter.Starts())
	}
	if h.State() != attempt.StateScored {
		t.Errorf("expected StateScored, got %v", h.State())
	}
	if got := testutil.ToFloat64(m.AttemptsScored); got != 1 {
		t.Errorf("expected 1 scored attempt metric, got %v", got)
	}
	if got := testutil.ToFloat64(m.RecognizerRestarts); got != 1 {
		t.Errorf("expected 1 restart metric, got %v", got)
	}
}

func TestHandler_StopFlushesPendingFinal(t *testing.T) {
	adapter := mock.NewWithScript([]mock.SimulatedSession{
		{Interims: []string{"good", "good morning"}, Final: "good morning"},
	}, 0)
	h, _ := newTestHandler(t, factoryFor(adapter), "Good morning", nil)
	ctx := context.Background()

	h.Start(ctx)
	h.SendAudio(ctx, []byte{1})
	h.SendAudio(ctx, []byte{1})

	out, err := h.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if out.Transcript != "good morning" || out.UsedInterim {
		t.Errorf("expected flushed final 'good morning', got %q (usedInterim=%v)", out.Transcript, out.UsedInterim)
	}
	if out.Result.AccuracyPercent != 100 {
		t.Errorf("expected 100%%, got %d", out.Result.AccuracyPercent)
	}
}

func TestHandler_StopDeliversDelayedFinal(t *testing.T) {
	adapter := mock.NewWithScript([]mock.SimulatedSession{
		{Interims: []string{"good"}, Final: "good morning"},
	}, 50*time.Millisecond)
	h, _ := newTestHandler(t, factoryFor(adapter), "Good morning", func(o *Options) {
		o.InterimFallback = false
	})
	ctx := context.Background()

	h.Start(ctx)
	h.SendAudio(ctx, []byte{1})
	time.Sleep(100 * time.Millisecond)
	h.SendAudio(ctx, []byte{1})

	out, err := h.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if out.Transcript != "good morning" || out.UsedInterim {
		t.Errorf("expected committed 'good morning', got %q (usedInterim=%v)", out.Transcript, out.UsedInterim)
	}
	if h.State() != attempt.StateScored {
		t.Errorf("expected StateScored, got %v", h.State())
	}
}

func TestHandler_InterimFallback(t *testing.T) {
	tests := []struct {
		name        string
		fallback    bool
		wantErr     error
		wantState   attempt.State
		wantInterim bool
	}{
		{"fallback enabled", true, nil, attempt.StateScored, true},
		{"fallback disabled", false, ErrNoSpeech, attempt.StateDropped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := &testAdapter{}
			h, m := newTestHandler(t, factoryFor(adapter), "hello world", func(o *Options) {
				o.InterimFallback = tt.fallback
			})
			ctx := context.Background()

			h.Start(ctx)
			adapter.cb.OnFragments([]transcript.Fragment{{Text: "hello world"}})

			out, err := h.Stop(ctx)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if out.UsedInterim != tt.wantInterim {
				t.Errorf("expected usedInterim=%v, got %v", tt.wantInterim, out.UsedInterim)
			}
			if h.State() != tt.wantState {
				t.Errorf("expected %v, got %v", tt.wantState, h.State())
			}
			if tt.wantErr == nil && out.Result.AccuracyPercent != 100 {
				t.Errorf("expected 100%% from interim text, got %d", out.Result.AccuracyPercent)
			}
			if tt.wantErr != nil {
				if got := testutil.ToFloat64(m.AttemptsDropped.WithLabelValues(ReasonNoSpeech)); got != 1 {
					t.Errorf("expected 1 no_speech drop, got %v", got)
				}
			}
		})
	}
}

func TestHandler_NoSpeechAtAll(t *testing.T) {
	adapter := &testAdapter{}
	h, _ := newTestHandler(t, factoryFor(adapter), "hello", nil)
	ctx := context.Background()

	h.Start(ctx)
	out, err := h.Stop(ctx)
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
	if out.AttemptID != "learner-1-att-1" {
		t.Errorf("expected attempt id learner-1-att-1, got %s", out.AttemptID)
	}
	if !adapter.closed {
		t.Error("expected adapter to be closed")
	}
}

func TestHandler_FragmentsIgnoredAfterStop(t *testing.T) {
	adapter := &testAdapter{}
	h, _ := newTestHandler(t, factoryFor(adapter), "the cat", nil)
	ctx := context.Background()

	h.Start(ctx)
	adapter.cb.OnFragments([]transcript.Fragment{{Text: "the cat", IsFinal: true}})
	if _, err := h.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	adapter.cb.OnFragments([]transcript.Fragment{{Text: "late words", IsFinal: true}})
	if got := h.DisplayText(); got != "the cat" {
		t.Errorf("expected frozen transcript 'the cat', got %q", got)
	}
	if err := h.SendAudio(ctx, []byte{1}); !errors.Is(err, attempt.ErrAttemptClosed) {
		t.Errorf("expected ErrAttemptClosed, got %v", err)
	}
	if _, err := h.Stop(ctx); !errors.Is(err, attempt.ErrAlreadyStopped) {
		t.Errorf("expected ErrAlreadyStopped on second stop, got %v", err)
	}
}

func TestHandler_StartWhileRecording(t *testing.T) {
	adapter := &testAdapter{}
	h, _ := newTestHandler(t, factoryFor(adapter), "the cat", nil)
	ctx := context.Background()

	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.Start(ctx); !errors.Is(err, ErrAttemptInProgress) {
		t.Errorf("expected ErrAttemptInProgress, got %v", err)
	}
}

func TestHandler_NewAttemptResetsTranscript(t *testing.T) {
	adapter := &testAdapter{}
	h, _ := newTestHandler(t, factoryFor(adapter), "the cat", nil)
	ctx := context.Background()

	h.Start(ctx)
	first := h.AttemptId()
	adapter.cb.OnFragments([]transcript.Fragment{{Text: "the cat", IsFinal: true}})
	h.Stop(ctx)

	if err := h.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if h.AttemptId() == first {
		t.Errorf("expected a new attempt id, still %s", first)
	}
	if h.DisplayText() != "" {
		t.Errorf("expected empty transcript for new attempt, got %q", h.DisplayText())
	}
	if h.State() != attempt.StateRecording {
		t.Errorf("expected StateRecording, got %v", h.State())
	}
}

func TestHandler_MaxRestartsLimit(t *testing.T) {
	adapter := &testAdapter{}
	h, m := newTestHandler(t, factoryFor(adapter), "hello", func(o *Options) {
		o.Limits.MaxRestarts = 2
	})
	ctx := context.Background()

	h.Start(ctx)
	adapter.cb.OnSessionEnd()
	adapter.cb.OnSessionEnd()
	if h.State() != attempt.StateRecording {
		t.Fatalf("expected still recording after 2 restarts, got %v", h.State())
	}
	if adapter.starts != 3 {
		t.Errorf("expected 3 starts, got %d", adapter.starts)
	}

	adapter.cb.OnSessionEnd()
	if h.State() != attempt.StateDropped {
		t.Fatalf("expected StateDropped after exceeding restarts, got %v", h.State())
	}
	if got := testutil.ToFloat64(m.AttemptLimitExceeded.WithLabelValues(ReasonMaxRestarts)); got != 1 {
		t.Errorf("expected 1 restart limit metric, got %v", got)
	}

	_, err := h.Stop(ctx)
	if !errors.Is(err, ErrAttemptDropped) {
		t.Errorf("expected ErrAttemptDropped, got %v", err)
	}
	if !errors.Is(err, ErrRestartLimit) {
		t.Errorf("expected ErrRestartLimit cause, got %v", err)
	}
}

func TestHandler_MaxFragmentsLimit(t *testing.T) {
	adapter := &testAdapter{}
	h, _ := newTestHandler(t, factoryFor(adapter), "hello", func(o *Options) {
		o.Limits.MaxFragments = 3
	})
	ctx := context.Background()

	h.Start(ctx)
	for i := 0; i < 3; i++ {
		adapter.cb.OnFragments([]transcript.Fragment{{Text: "hel"}})
	}
	if h.State() != attempt.StateRecording {
		t.Fatalf("expected recording at the limit, got %v", h.State())
	}

	adapter.cb.OnFragments([]transcript.Fragment{{Text: "hello"}})
	if h.State() != attempt.StateDropped {
		t.Errorf("expected StateDropped, got %v", h.State())
	}
	if !adapter.closed {
		t.Error("expected adapter to be closed on drop")
	}
}

func TestHandler_MaxDurationLimit(t *testing.T) {
	adapter := &testAdapter{}
	h, _ := newTestHandler(t, factoryFor(adapter), "hello", func(o *Options) {
		o.Limits.MaxDuration = time.Millisecond
	})
	ctx := context.Background()

	h.Start(ctx)
	time.Sleep(5 * time.Millisecond)

	if err := h.SendAudio(ctx, []byte{1}); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if h.State() != attempt.StateDropped {
		t.Errorf("expected StateDropped, got %v", h.State())
	}
	if len(adapter.audio) != 0 {
		t.Errorf("expected no audio forwarded, got %d frames", len(adapter.audio))
	}
}

func TestHandler_RecognizerErrorDrops(t *testing.T) {
	adapter := &testAdapter{}
	h, m := newTestHandler(t, factoryFor(adapter), "hello", nil)
	ctx := context.Background()

	h.Start(ctx)
	adapter.cb.OnFragments([]transcript.Fragment{{Text: "hello", IsFinal: true}})
	adapter.cb.OnError(errors.New("stream reset"))

	if h.State() != attempt.StateDropped {
		t.Fatalf("expected StateDropped, got %v", h.State())
	}
	if got := testutil.ToFloat64(m.STTErrors.WithLabelValues("mock", "recognizer")); got != 1 {
		t.Errorf("expected 1 recognizer error metric, got %v", got)
	}
	if _, err := h.Stop(ctx); !errors.Is(err, ErrAttemptDropped) {
		t.Errorf("expected ErrAttemptDropped, got %v", err)
	}
}

func TestHandler_StartFailures(t *testing.T) {
	tests := []struct {
		name    string
		factory AdapterFactory
	}{
		{"factory error", func(context.Context) (stt.Adapter, error) { return nil, errors.New("no credentials") }},
		{"adapter start error", factoryFor(&testAdapter{failing: true})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m := newTestHandler(t, tt.factory, "hello", nil)
			if err := h.Start(context.Background()); err == nil {
				t.Fatal("expected Start to fail")
			}
			if h.State() != attempt.StateDropped {
				t.Errorf("expected StateDropped, got %v", h.State())
			}
			if got := testutil.ToFloat64(m.AttemptsDropped.WithLabelValues(ReasonStartFailed)); got != 1 {
				t.Errorf("expected 1 start_failed drop, got %v", got)
			}
		})
	}
}

func TestHandler_Abort(t *testing.T) {
	adapter := &testAdapter{}
	h, _ := newTestHandler(t, factoryFor(adapter), "hello", nil)

	if h.Abort(ReasonClientAborted) {
		t.Error("expected Abort to be a no-op before Start")
	}

	h.Start(context.Background())
	if !h.Abort(ReasonClientAborted) {
		t.Error("expected Abort to drop the recording attempt")
	}
	if h.Abort(ReasonClientAborted) {
		t.Error("expected second Abort to return false")
	}
}

func TestHandler_StopBeforeStart(t *testing.T) {
	h, _ := newTestHandler(t, factoryFor(&testAdapter{}), "hello", nil)

	if _, err := h.Stop(context.Background()); !errors.Is(err, attempt.ErrNotRecording) {
		t.Errorf("expected ErrNotRecording, got %v", err)
	}
	if err := h.SendAudio(context.Background(), []byte{1}); !errors.Is(err, attempt.ErrNotRecording) {
		t.Errorf("expected ErrNotRecording, got %v", err)
	}
}
