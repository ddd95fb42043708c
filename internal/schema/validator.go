// Package schema validates practice events before they are published.
package schema

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"pronunciation-practice-service/internal/models"
)

var ErrInvalidEvent = errors.New("invalid event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the required fields of a known event type.
// Unknown types are rejected.
func (v *Validator) Validate(event any) error {
	var errs []error

	switch ev := event.(type) {
	case models.TranscriptPartial:
		errs = append(errs, requireType(ev.EventType, models.EventTranscriptPartial))
		errs = append(errs, requireIds(ev.LearnerID, ev.AttemptID)...)
	case models.AttemptScored:
		errs = append(errs, requireType(ev.EventType, models.EventAttemptScored))
		errs = append(errs, requireIds(ev.LearnerID, ev.AttemptID)...)
		if ev.AccuracyPercent < 0 || ev.AccuracyPercent > 100 {
			errs = append(errs, fmt.Errorf("accuracyPercent %d out of range [0, 100]", ev.AccuracyPercent))
		}
		if ev.Reference == "" {
			errs = append(errs, errors.New("reference is required"))
		}
	case models.AttemptDropped:
		errs = append(errs, requireType(ev.EventType, models.EventAttemptDropped))
		errs = append(errs, requireIds(ev.LearnerID, ev.AttemptID)...)
		if ev.Reason == "" {
			errs = append(errs, errors.New("reason is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported event type %T", event))
	}

	if err := errors.Join(errs...); err != nil {
		log.Debug().Err(err).Msg("Event failed schema validation")
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return nil
}

func requireType(got, want string) error {
	if got != want {
		return fmt.Errorf("eventType %q, want %q", got, want)
	}
	return nil
}

func requireIds(learnerId, attemptId string) []error {
	var errs []error
	if learnerId == "" {
		errs = append(errs, errors.New("learnerId is required"))
	}
	if attemptId == "" {
		errs = append(errs, errors.New("attemptId is required"))
	}
	return errs
}
