// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pronunciation-practice-service/internal/service/stt"
	"pronunciation-practice-service/internal/service/transcript"
)

// Config holds recognition settings for the streaming session.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   8000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// defaultDrainTimeout bounds how long Close waits for results that follow
// the half-close of a stream.
const defaultDrainTimeout = 2 * time.Second

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
// Google closes streaming sessions after a few minutes; that surfaces as
// OnSessionEnd so the caller can restart on the same client.
type Adapter struct {
	client       *speech.Client
	cfg          Config
	drainTimeout time.Duration

	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
	cb     stt.Callback
	done   chan struct{} // closed once the current stream's listener stops receiving
	closed bool
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: c, cfg: cfg, drainTimeout: defaultDrainTimeout}, nil
}

// Start opens a streaming recognition session, sends the config and starts
// receiving results in the background.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        parseAudioEncoding(a.cfg.AudioEncoding),
					SampleRateHertz: a.cfg.SampleRateHz,
					LanguageCode:    a.cfg.LanguageCode,
				},
				InterimResults: a.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		return err
	}

	a.attach(stream, cb)
	return nil
}

// attach makes stream the current session and starts receiving its results.
func (a *Adapter) attach(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback) {
	done := make(chan struct{})

	a.mu.Lock()
	a.stream = stream
	a.cb = cb
	a.done = done
	a.mu.Unlock()

	go a.listen(stream, cb, done)
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()

	if stream == nil {
		return errors.New("google: session not started")
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the streaming session and waits, up to the drain
// timeout, for Google to deliver the results still owed for audio already
// sent. The client is closed afterwards.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	stream, done := a.stream, a.done
	a.mu.Unlock()

	var err error
	if stream != nil {
		err = stream.CloseSend()
		if err == nil {
			a.drain(done)
		}
	}
	if a.client != nil {
		if cerr := a.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (a *Adapter) drain(done <-chan struct{}) {
	timer := time.NewTimer(a.drainTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		log.Warn().
			Str("sttProvider", "google").
			Dur("drainTimeout", a.drainTimeout).
			Msg("Recognizer did not finish after half-close")
	}
}

// listen receives results for one stream until it ends. Results that arrive
// after Close are still delivered; the end of the stream is then silent.
func (a *Adapter) listen(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback, done chan struct{}) {
	for {
		resp, err := stream.Recv()
		if err != nil {
			a.mu.Lock()
			closed := a.closed
			a.mu.Unlock()
			close(done)

			switch {
			case closed:
			case errors.Is(err, io.EOF), status.Code(err) == codes.OutOfRange:
				// Stream limit reached or server finished the session.
				cb.OnSessionEnd()
			default:
				log.Error().Err(err).Str("sttProvider", "google").Msg("Streaming recognize failed")
				cb.OnError(err)
			}
			return
		}

		if frags := toFragments(resp.GetResults()); len(frags) > 0 {
			cb.OnFragments(frags)
		}
	}
}

// toFragments turns one streaming response into fragments. Final results
// become separate fragments; interim results are joined into one.
func toFragments(results []*speechpb.StreamingRecognitionResult) []transcript.Fragment {
	var frags []transcript.Fragment
	var interim []string

	for i, r := range results {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		text := strings.TrimSpace(alts[0].GetTranscript())
		if text == "" {
			continue
		}
		if r.GetIsFinal() {
			frags = append(frags, transcript.Fragment{Text: text, IsFinal: true, SequenceIndex: i})
			continue
		}
		interim = append(interim, text)
	}

	if len(interim) > 0 {
		frags = append(frags, transcript.Fragment{
			Text:          strings.Join(interim, " "),
			SequenceIndex: len(results) - 1,
		})
	}
	return frags
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
