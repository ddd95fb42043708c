// Package practice provides the recording attempt handler that coordinates
// the recognizer adapter, the transcript accumulator, scoring and event publishing.
package practice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pronunciation-practice-service/internal/events"
	"pronunciation-practice-service/internal/models"
	"pronunciation-practice-service/internal/observability/logging"
	"pronunciation-practice-service/internal/observability/metrics"
	"pronunciation-practice-service/internal/schema"
	"pronunciation-practice-service/internal/service/attempt"
	"pronunciation-practice-service/internal/service/scoring"
	"pronunciation-practice-service/internal/service/stt"
	"pronunciation-practice-service/internal/service/transcript"
)

var (
	// ErrNoSpeech is returned by Stop when nothing usable was recognized.
	ErrNoSpeech = errors.New("no speech recognized")
	// ErrAttemptDropped is returned by Stop when the attempt was abandoned earlier.
	ErrAttemptDropped = errors.New("attempt dropped")
	// ErrAttemptInProgress is returned by Start while another attempt is recording.
	ErrAttemptInProgress = errors.New("attempt already in progress")
	// ErrLimitExceeded is returned by SendAudio when the attempt ran too long.
	ErrLimitExceeded = errors.New("attempt limit exceeded")
	// ErrRestartLimit is the drop cause when the recognizer restarts too often.
	ErrRestartLimit = errors.New("recognizer restart limit exceeded")
)

// Drop reasons, used as metric labels and in dropped events.
const (
	ReasonNoSpeech      = "no_speech"
	ReasonMaxRestarts   = "max_restarts"
	ReasonMaxFragments  = "max_fragments"
	ReasonMaxDuration   = "max_duration"
	ReasonRecognizer    = "recognizer_error"
	ReasonStartFailed   = "start_failed"
	ReasonClientAborted = "client_aborted"
)

// Limits defines safety guardrails for a recording attempt.
type Limits struct {
	MaxDuration  time.Duration // Max attempt duration
	MaxRestarts  int           // Max recognizer restarts per attempt
	MaxFragments int           // Max fragments per attempt
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxDuration:  2 * time.Minute,
		MaxRestarts:  20,
		MaxFragments: 2000,
	}
}

// Options configures a Handler.
type Options struct {
	Limits Limits
	// InterimFallback scores the live interim text when nothing was
	// finalized. Without it such attempts fail with ErrNoSpeech.
	InterimFallback bool
	// Provider names the recognizer in metrics and logs.
	Provider string
	Metrics  *metrics.Metrics
}

// DefaultOptions returns the options used by NewHandler.
func DefaultOptions() Options {
	return Options{
		Limits:          DefaultLimits(),
		InterimFallback: true,
		Provider:        "mock",
	}
}

// Exercise identifies what the learner is practicing.
type Exercise struct {
	LearnerID  string
	ExerciseID string
	// Reference is the target sentence; it may carry inline markup.
	Reference string
}

// Outcome is the result of a stopped attempt.
type Outcome struct {
	AttemptID   string
	Transcript  string
	UsedInterim bool
	Restarts    int
	Result      scoring.Result
}

// AdapterFactory opens the recognizer adapter for a new attempt.
type AdapterFactory func(ctx context.Context) (stt.Adapter, error)

// Handler manages recording attempts for one exercise.
// It implements stt.Callback to receive recognizer output.
// Attempts are sequential: Start, stream, Stop, then Start again.
type Handler struct {
	newAdapter  AdapterFactory
	publisher   *events.Publisher
	validator   *schema.Validator
	attempts    *attempt.Generator
	accumulator *transcript.Accumulator
	exercise    Exercise
	opts        Options
	metrics     *metrics.Metrics

	mu         sync.Mutex
	ctx        context.Context
	adapter    stt.Adapter
	lifecycle  *attempt.Lifecycle
	logger     zerolog.Logger
	startTime  time.Time
	restarts   int
	fragments  int
	dropReason string
	dropCause  error
}

// NewHandler creates a handler with default options.
func NewHandler(
	newAdapter AdapterFactory,
	publisher *events.Publisher,
	attempts *attempt.Generator,
	exercise Exercise,
) *Handler {
	return NewHandlerWithOptions(newAdapter, publisher, attempts, exercise, DefaultOptions())
}

// NewHandlerWithOptions creates a handler with custom options.
func NewHandlerWithOptions(
	newAdapter AdapterFactory,
	publisher *events.Publisher,
	attempts *attempt.Generator,
	exercise Exercise,
	opts Options,
) *Handler {
	m := opts.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	if attempts == nil {
		attempts = attempt.New()
	}
	return &Handler{
		newAdapter:  newAdapter,
		publisher:   publisher,
		validator:   schema.New(),
		attempts:    attempts,
		accumulator: transcript.NewAccumulator(),
		exercise:    exercise,
		opts:        opts,
		metrics:     m,
		logger:      logging.WithLearner(exercise.LearnerID, exercise.ExerciseID),
	}
}

// Start begins a new recording attempt: the transcript is reset and a
// recognizer session is opened.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.lifecycle != nil && !h.lifecycle.State().IsTerminal() {
		h.mu.Unlock()
		return ErrAttemptInProgress
	}

	attemptId := h.attempts.Next(h.exercise.LearnerID)
	if h.lifecycle == nil {
		h.lifecycle = attempt.NewLifecycle(attemptId)
	} else {
		h.lifecycle.Reset(attemptId)
	}
	h.accumulator.Reset()
	h.ctx = ctx
	h.adapter = nil
	h.startTime = time.Now()
	h.restarts = 0
	h.fragments = 0
	h.dropReason = ""
	h.dropCause = nil
	h.logger = logging.WithAttempt(h.exercise.LearnerID, h.exercise.ExerciseID, attemptId)
	logger := h.logger
	h.mu.Unlock()

	h.metrics.RecordAttemptStarted()
	logger.Info().Str("sttProvider", h.opts.Provider).Msg("Recording attempt started")

	adapter, err := h.newAdapter(ctx)
	if err != nil {
		h.drop(ReasonStartFailed, err)
		return fmt.Errorf("open recognizer: %w", err)
	}

	h.mu.Lock()
	h.adapter = adapter
	h.mu.Unlock()

	if err := adapter.Start(ctx, h); err != nil {
		h.drop(ReasonStartFailed, err)
		return fmt.Errorf("start recognizer: %w", err)
	}
	return nil
}

// SendAudio forwards audio bytes to the recognizer.
// Returns an error if the attempt is not recording or ran too long (the attempt is dropped).
func (h *Handler) SendAudio(ctx context.Context, audio []byte) error {
	h.mu.Lock()
	lc, adapter, startTime := h.lifecycle, h.adapter, h.startTime
	h.mu.Unlock()

	if lc == nil || adapter == nil {
		return attempt.ErrNotRecording
	}
	if err := lc.AcceptFragment(); err != nil {
		return err
	}

	if limit := h.opts.Limits.MaxDuration; limit > 0 && time.Since(startTime) > limit {
		h.metrics.RecordLimitExceeded(ReasonMaxDuration)
		err := fmt.Errorf("%w: max duration %v > %v", ErrLimitExceeded, time.Since(startTime).Round(time.Millisecond), limit)
		h.drop(ReasonMaxDuration, err)
		return err
	}

	return adapter.SendAudio(ctx, audio)
}

// Stop ends recording, scores the transcript and publishes the outcome.
//
// The committed transcript is authoritative. When it is empty, the live
// interim text is used if InterimFallback is set; otherwise, or when that is
// empty too, the attempt is dropped and ErrNoSpeech returned.
func (h *Handler) Stop(ctx context.Context) (Outcome, error) {
	h.mu.Lock()
	lc, adapter := h.lifecycle, h.adapter
	h.mu.Unlock()

	if lc == nil {
		return Outcome{}, attempt.ErrNotRecording
	}
	out := Outcome{AttemptID: lc.AttemptId()}

	if !lc.IsRecording() {
		if lc.IsDropped() {
			return out, h.droppedErr()
		}
		return out, attempt.ErrAlreadyStopped
	}

	// Closing lets the recognizer flush a pending final before the transcript is frozen.
	if adapter != nil {
		if err := adapter.Close(); err != nil {
			h.log().Warn().Err(err).Msg("Recognizer close failed")
		}
	}

	h.mu.Lock()
	err := lc.Stop()
	final := h.accumulator.FinalText()
	display := strings.TrimSpace(h.accumulator.DisplayText())
	out.Restarts = h.restarts
	h.mu.Unlock()

	if err != nil {
		if lc.IsDropped() {
			return out, h.droppedErr()
		}
		return out, err
	}

	out.Transcript = final
	if out.Transcript == "" && h.opts.InterimFallback && display != "" {
		out.Transcript = display
		out.UsedInterim = true
	}
	if out.Transcript == "" {
		h.drop(ReasonNoSpeech, nil)
		return out, ErrNoSpeech
	}

	out.Result = scoring.Score(out.Transcript, h.exercise.Reference)
	if err := lc.Complete(); err != nil {
		return out, err
	}

	h.metrics.RecordAttemptScored(out.Result.AccuracyPercent, out.UsedInterim)
	h.log().Info().
		Int("accuracy", out.Result.AccuracyPercent).
		Int("restarts", out.Restarts).
		Bool("usedInterim", out.UsedInterim).
		Str("transcript", out.Transcript).
		Msg("Recording attempt scored")

	h.publishOutcome(ctx, h.scoredEvent(out))
	return out, nil
}

// Abort drops the current attempt, e.g. when the client disconnects.
// Returns true if an attempt was dropped.
func (h *Handler) Abort(reason string) bool {
	return h.drop(reason, nil)
}

// AttemptId returns the current attempt ID.
func (h *Handler) AttemptId() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lifecycle == nil {
		return ""
	}
	return h.lifecycle.AttemptId()
}

// State returns the current attempt state.
func (h *Handler) State() attempt.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lifecycle == nil {
		return attempt.StateDropped
	}
	return h.lifecycle.State()
}

// DisplayText returns the live transcript of the current attempt.
func (h *Handler) DisplayText() string {
	return h.accumulator.DisplayText()
}

// Restarts returns the recognizer restarts of the current attempt.
func (h *Handler) Restarts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restarts
}

// --- stt.Callback implementation ---

// OnFragments feeds recognizer output into the transcript while recording
// and publishes the live display text.
func (h *Handler) OnFragments(fragments []transcript.Fragment) {
	h.mu.Lock()
	lc := h.lifecycle
	if lc == nil {
		h.mu.Unlock()
		return
	}
	if err := lc.AcceptFragment(); err != nil {
		h.mu.Unlock()
		h.log().Debug().Err(err).Str("state", lc.State().String()).Msg("Fragments ignored")
		return
	}

	h.fragments += len(fragments)
	if limit := h.opts.Limits.MaxFragments; limit > 0 && h.fragments > limit {
		count := h.fragments
		h.mu.Unlock()
		h.metrics.RecordLimitExceeded(ReasonMaxFragments)
		h.drop(ReasonMaxFragments, fmt.Errorf("%w: max fragments %d > %d", ErrLimitExceeded, count, limit))
		return
	}

	h.accumulator.OnFragment(fragments)
	display := h.accumulator.DisplayText()
	attemptId := lc.AttemptId()
	h.mu.Unlock()

	for _, f := range fragments {
		h.metrics.RecordFragment(f.IsFinal)
	}

	h.publishPartial(models.TranscriptPartial{
		EventType:  models.EventTranscriptPartial,
		LearnerID:  h.exercise.LearnerID,
		ExerciseID: h.exercise.ExerciseID,
		AttemptID:  attemptId,
		Text:       display,
		Timestamp:  time.Now().UnixMilli(),
	})
}

// OnSessionEnd restarts recognition if the attempt is still recording.
// Committed text is kept across restarts.
func (h *Handler) OnSessionEnd() {
	h.mu.Lock()
	lc, adapter, ctx := h.lifecycle, h.adapter, h.ctx
	if lc == nil || !lc.IsRecording() || adapter == nil {
		h.mu.Unlock()
		return
	}
	h.restarts++
	n := h.restarts
	h.mu.Unlock()

	if limit := h.opts.Limits.MaxRestarts; limit > 0 && n > limit {
		h.metrics.RecordLimitExceeded(ReasonMaxRestarts)
		h.drop(ReasonMaxRestarts, fmt.Errorf("%w: %d > %d", ErrRestartLimit, n, limit))
		return
	}

	h.metrics.RecordRestart()
	h.log().Debug().Int("restart", n).Msg("Recognizer session ended, restarting")

	if err := adapter.Start(ctx, h); err != nil {
		h.OnError(fmt.Errorf("restart recognizer: %w", err))
	}
}

// OnError drops the attempt; a failed recognizer yields no score.
func (h *Handler) OnError(err error) {
	h.metrics.RecordSTTError(h.opts.Provider, "recognizer")
	h.drop(ReasonRecognizer, err)
}

// drop abandons the current attempt, closes the recognizer and publishes a
// dropped event. Returns false if there was nothing to drop.
func (h *Handler) drop(reason string, cause error) bool {
	h.mu.Lock()
	lc, adapter := h.lifecycle, h.adapter
	if lc == nil {
		h.mu.Unlock()
		return false
	}
	oldState := lc.State()
	dropped := lc.Drop()
	if dropped {
		h.dropReason = reason
		h.dropCause = cause
	}
	attemptId := lc.AttemptId()
	h.mu.Unlock()

	if !dropped {
		return false
	}

	h.log().Warn().
		Err(cause).
		Str("previousState", oldState.String()).
		Str("reason", reason).
		Msg("Recording attempt DROPPED")
	h.metrics.RecordAttemptDropped(reason)

	if adapter != nil && oldState == attempt.StateRecording {
		if err := adapter.Close(); err != nil {
			h.log().Warn().Err(err).Msg("Recognizer close failed")
		}
	}

	h.publishOutcome(context.Background(), models.AttemptDropped{
		EventType:  models.EventAttemptDropped,
		LearnerID:  h.exercise.LearnerID,
		ExerciseID: h.exercise.ExerciseID,
		AttemptID:  attemptId,
		Reason:     reason,
		Timestamp:  time.Now().UnixMilli(),
	})
	return true
}

func (h *Handler) droppedErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dropCause != nil {
		return fmt.Errorf("%w: %s: %w", ErrAttemptDropped, h.dropReason, h.dropCause)
	}
	return fmt.Errorf("%w: %s", ErrAttemptDropped, h.dropReason)
}

func (h *Handler) log() *zerolog.Logger {
	h.mu.Lock()
	defer h.mu.Unlock()
	l := h.logger
	return &l
}

func (h *Handler) scoredEvent(out Outcome) models.AttemptScored {
	words := make([]models.WordResult, len(out.Result.Words))
	for i, w := range out.Result.Words {
		words[i] = models.WordResult{
			Reference:  w.Reference,
			Spoken:     w.Spoken,
			Confidence: w.Confidence,
			Matched:    w.Matched,
			SoundsLike: w.SoundsLike,
		}
	}
	return models.AttemptScored{
		EventType:       models.EventAttemptScored,
		LearnerID:       h.exercise.LearnerID,
		ExerciseID:      h.exercise.ExerciseID,
		AttemptID:       out.AttemptID,
		Transcript:      out.Transcript,
		Reference:       h.exercise.Reference,
		AccuracyPercent: out.Result.AccuracyPercent,
		Penalty:         out.Result.Penalty,
		UsedInterim:     out.UsedInterim,
		Restarts:        out.Restarts,
		Words:           words,
		Timestamp:       time.Now().UnixMilli(),
	}
}

func (h *Handler) publishPartial(ev models.TranscriptPartial) {
	if h.publisher == nil {
		return
	}
	if err := h.validator.Validate(ev); err != nil {
		h.log().Error().Err(err).Msg("Partial event rejected")
		return
	}
	if err := h.publisher.PublishPartial(context.Background(), h.exercise.LearnerID, ev); err != nil {
		h.log().Error().Err(err).Msg("Failed to publish partial")
	}
}

func (h *Handler) publishOutcome(ctx context.Context, ev any) {
	if h.publisher == nil {
		return
	}
	if err := h.validator.Validate(ev); err != nil {
		h.log().Error().Err(err).Msg("Outcome event rejected")
		return
	}
	if err := h.publisher.PublishOutcome(ctx, h.exercise.LearnerID, ev); err != nil {
		h.log().Error().Err(err).Msg("Failed to publish outcome")
	}
}
