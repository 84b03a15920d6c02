package player

import (
	"errors"
	"fmt"
	"testing"

	"github.com/glebovdev/livetv-cli/internal/engine"
	"github.com/glebovdev/livetv-cli/internal/metrics"
	"github.com/stretchr/testify/assert"
)

func TestMessage(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", ErrPlaybackTimeout, "Stream took too long to start. Press R to retry."},
		{"wrapped timeout", fmt.Errorf("session x: %w", ErrPlaybackTimeout), "Stream took too long to start. Press R to retry."},
		{"unsupported", ErrUnsupportedFormat, "This stream format is not supported."},
		{"rejected", &StartRejectedError{Err: cause}, "Playback could not be started. Press R to retry."},
		{"fatal", &FatalEngineError{Details: engine.DetailManifestLoad, Err: cause}, "Stream unavailable. Press R to retry."},
		{"other", cause, "Playback failed. Press R to retry."},
		{"nil", nil, "Playback failed. Press R to retry."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("network down")

	fatal := &FatalEngineError{Details: engine.DetailLevelLoad, Err: cause}
	assert.ErrorIs(t, fatal, cause)
	assert.Contains(t, fatal.Error(), engine.DetailLevelLoad)

	rejected := &StartRejectedError{Err: cause}
	assert.ErrorIs(t, rejected, cause)

	var target *FatalEngineError
	assert.ErrorAs(t, fmt.Errorf("wrapped: %w", fatal), &target)
	assert.Equal(t, engine.DetailLevelLoad, target.Details)

	assert.Equal(t, "fatal playback error: network down", (&FatalEngineError{Err: cause}).Error())
}

func TestFailureReason(t *testing.T) {
	cause := errors.New("x")

	assert.Equal(t, metrics.ReasonTimeout, failureReason(ErrPlaybackTimeout))
	assert.Equal(t, metrics.ReasonUnsupported, failureReason(ErrUnsupportedFormat))
	assert.Equal(t, metrics.ReasonRejected, failureReason(&StartRejectedError{Err: cause}))
	assert.Equal(t, metrics.ReasonOutput, failureReason(&FatalEngineError{Details: detailOutput, Err: cause}))
	assert.Equal(t, metrics.ReasonEngine, failureReason(&FatalEngineError{Details: engine.DetailSegmentLoad, Err: cause}))
}

func TestStateOverlay(t *testing.T) {
	assert.Equal(t, OverlayHidden, StateIdle.Overlay())
	assert.Equal(t, OverlayLoading, StateLoading.Overlay())
	assert.Equal(t, OverlayHidden, StatePlaying.Overlay())
	assert.Equal(t, OverlayLoading, StateBuffering.Overlay())
	assert.Equal(t, OverlayError, StateError.Overlay())
	assert.Equal(t, "LIVE", StatePlaying.String())
}
