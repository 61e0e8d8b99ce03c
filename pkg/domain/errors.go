package domain

import (
	"errors"
	"fmt"
)

// ErrBusy is matched (via errors.Is) by every ReentrancyError.
var ErrBusy = errors.New("soul is busy")

// ErrStreamAbandoned is returned when a stream stops before it completes,
// either because the consumer gave up or the context was cancelled.
var ErrStreamAbandoned = errors.New("stream abandoned")

// ErrFactNotFound is returned by fact stores for unknown keys.
var ErrFactNotFound = errors.New("fact not found")

// ErrTranscriptNotFound is returned when no transcript exists for a session ID.
var ErrTranscriptNotFound = errors.New("transcript not found")

// ErrBlueprintNotFound is returned when a blueprint cannot be located.
var ErrBlueprintNotFound = errors.New("blueprint not found")

// ValidationError reports a structured response that does not conform to
// the declared schema, including decision labels outside the choice set.
type ValidationError struct {
	Step   string
	Reason string
	Value  any
	Cause  error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("step '%s': invalid structured response: %s", e.Step, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// ProcessorError reports a failed, timed out or abandoned Processor call.
type ProcessorError struct {
	Step  string
	Cause error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("step '%s': processor failed: %v", e.Step, e.Cause)
}

func (e *ProcessorError) Unwrap() error {
	return e.Cause
}

// ReentrancyError is returned when a perception arrives while the soul is
// still processing a previous one.
type ReentrancyError struct {
	Soul string
}

func (e *ReentrancyError) Error() string {
	return fmt.Sprintf("soul '%s' is already processing a perception", e.Soul)
}

func (e *ReentrancyError) Is(target error) bool {
	return target == ErrBusy
}
