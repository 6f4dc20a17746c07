package rectify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/stretchr/testify/assert"
)

func TestError_WrapsKindAndCause(t *testing.T) {
	cause := fmt.Errorf("%w: corners collapse", ErrDegenerate)
	err := wrap(StageOrder, cause)

	assert.EqualError(t, err, "rectify order: degenerate corner configuration: corners collapse")
	assert.ErrorIs(t, err, ErrDegenerate)
	assert.NotErrorIs(t, err, ErrSingular)

	var rerr *Error
	assert.ErrorAs(t, err, &rerr)
	assert.Equal(t, ErrDegenerate, rerr.Kind)
	assert.Nil(t, wrap(StageOrder, nil))
}

func TestKindNameAndUserMessage(t *testing.T) {
	tests := []struct {
		err      error
		name     string
		category Category
	}{
		{ErrLowConfidence, "low_confidence", CategoryDetection},
		{ErrDegenerate, "degenerate", CategoryGeometry},
		{ErrTooSmall, "too_small", CategoryGeometry},
		{ErrTooLarge, "too_large", CategoryGeometry},
		{ErrSingular, "singular", CategoryGeometry},
		{ErrInverseSingular, "inverse_singular", CategoryResampling},
		{errors.New("boom"), "internal", CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrap(StageWarp, fmt.Errorf("ctx: %w", tt.err))
			assert.Equal(t, tt.name, KindName(wrapped))
			assert.NotEmpty(t, UserMessage(wrapped))

			var rerr *Error
			assert.ErrorAs(t, wrapped, &rerr)
			assert.Equal(t, tt.category, rerr.Category())
		})
	}
}

func TestError_DetectStageIsDetectionCategory(t *testing.T) {
	err := &Error{Stage: StageDetect, Err: context.DeadlineExceeded}
	assert.Equal(t, CategoryDetection, err.Category())
	assert.Equal(t, "card not found, move the card fully into the frame", UserMessage(ErrLowConfidence))
}

func TestKindName_DetectorAndContext(t *testing.T) {
	assert.Equal(t, "no_card", KindName(WrapDetect(detector.ErrNoCard)))
	assert.Equal(t, "canceled", KindName(wrap(StageOrder, context.Canceled)))
	assert.Equal(t, UserMessage(ErrLowConfidence), UserMessage(WrapDetect(detector.ErrNoCard)))
}

func TestWrapDetect(t *testing.T) {
	assert.NoError(t, WrapDetect(nil))

	cause := errors.New("no card detected")
	err := WrapDetect(cause)
	var rerr *Error
	assert.ErrorAs(t, err, &rerr)
	assert.Equal(t, StageDetect, rerr.Stage)
	assert.Equal(t, CategoryDetection, rerr.Category())
	assert.ErrorIs(t, err, cause)

	// Already wrapped errors pass through.
	assert.Same(t, err, WrapDetect(err))
}
