package player

import (
	"errors"
	"fmt"

	"github.com/glebovdev/livetv-cli/internal/metrics"
)

var (
	ErrPlaybackTimeout   = errors.New("playback did not start in time")
	ErrUnsupportedFormat = errors.New("stream format is not supported")
)

// FatalEngineError is an unrecoverable error reported by the streaming
// engine or the media output.
type FatalEngineError struct {
	Details string
	Err     error
}

func (e *FatalEngineError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("fatal playback error: %v", e.Err)
	}
	return fmt.Sprintf("fatal playback error (%s): %v", e.Details, e.Err)
}

func (e *FatalEngineError) Unwrap() error {
	return e.Err
}

// StartRejectedError means the output refused to start playback.
type StartRejectedError struct {
	Err error
}

func (e *StartRejectedError) Error() string {
	return fmt.Sprintf("playback start rejected: %v", e.Err)
}

func (e *StartRejectedError) Unwrap() error {
	return e.Err
}

// Message returns the text shown on the error overlay for err.
func Message(err error) string {
	var fatal *FatalEngineError
	var rejected *StartRejectedError

	switch {
	case errors.Is(err, ErrPlaybackTimeout):
		return "Stream took too long to start. Press R to retry."
	case errors.Is(err, ErrUnsupportedFormat):
		return "This stream format is not supported."
	case errors.As(err, &rejected):
		return "Playback could not be started. Press R to retry."
	case errors.As(err, &fatal):
		return "Stream unavailable. Press R to retry."
	default:
		return "Playback failed. Press R to retry."
	}
}

func failureReason(err error) string {
	var fatal *FatalEngineError
	var rejected *StartRejectedError

	switch {
	case errors.Is(err, ErrPlaybackTimeout):
		return metrics.ReasonTimeout
	case errors.Is(err, ErrUnsupportedFormat):
		return metrics.ReasonUnsupported
	case errors.As(err, &rejected):
		return metrics.ReasonRejected
	case errors.As(err, &fatal) && fatal.Details == detailOutput:
		return metrics.ReasonOutput
	default:
		return metrics.ReasonEngine
	}
}
