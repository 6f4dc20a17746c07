package rectify

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/cardrectify/internal/detector"
)

// Error kinds. Every failure returned by the pipeline wraps exactly one of these.
var (
	ErrLowConfidence   = errors.New("detection confidence below threshold")
	ErrDegenerate      = errors.New("degenerate corner configuration")
	ErrTooSmall        = errors.New("target size below minimum")
	ErrTooLarge        = errors.New("target size above maximum")
	ErrSingular        = errors.New("homography is singular")
	ErrInverseSingular = errors.New("homography has no usable inverse")
)

// Stage names a step of the rectification pipeline.
type Stage string

const (
	StageDetect     Stage = "detect"
	StageConfidence Stage = "confidence"
	StageOrder      Stage = "order"
	StageDimensions Stage = "dimensions"
	StageHomography Stage = "homography"
	StageWarp       Stage = "warp"
)

// Category groups error kinds by who is at fault.
type Category string

const (
	CategoryDetection  Category = "detection"
	CategoryGeometry   Category = "geometry"
	CategoryResampling Category = "resampling"
	CategoryUnknown    Category = "unknown"
)

var kinds = []error{
	ErrLowConfidence, ErrDegenerate, ErrTooSmall, ErrTooLarge, ErrSingular, ErrInverseSingular,
}

// Error is returned by Pipeline.Rectify. Kind is one of the Err* sentinels
// (nil for detector or context failures) and Err is the stage's own error.
type Error struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rectify %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Category classifies the failure.
func (e *Error) Category() Category {
	switch e.Kind {
	case ErrLowConfidence:
		return CategoryDetection
	case ErrDegenerate, ErrTooSmall, ErrTooLarge, ErrSingular:
		return CategoryGeometry
	case ErrInverseSingular:
		return CategoryResampling
	}
	if e.Stage == StageDetect {
		return CategoryDetection
	}
	return CategoryUnknown
}

func wrap(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Stage: stage, Kind: KindOf(err), Err: err}
}

// WrapDetect marks err as a failure of the detection step that precedes
// Rectify, so callers see one error type for the whole request.
func WrapDetect(err error) error {
	var rerr *Error
	if err == nil || errors.As(err, &rerr) {
		return err
	}
	return wrap(StageDetect, err)
}

// KindOf returns the sentinel kind carried by err, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns a short machine-readable name for the kind carried by err.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrLowConfidence:
		return "low_confidence"
	case ErrDegenerate:
		return "degenerate"
	case ErrTooSmall:
		return "too_small"
	case ErrTooLarge:
		return "too_large"
	case ErrSingular:
		return "singular"
	case ErrInverseSingular:
		return "inverse_singular"
	}
	if errors.Is(err, detector.ErrNoCard) {
		return "no_card"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "internal"
}

// UserMessage maps err to an actionable hint for the person holding the card.
func UserMessage(err error) string {
	switch KindOf(err) {
	case ErrLowConfidence:
		return "card not found, move the card fully into the frame"
	case ErrDegenerate, ErrSingular:
		return "card corners unclear, please retake the photo"
	case ErrTooSmall:
		return "card too small, move closer"
	case ErrTooLarge:
		return "card image too large"
	case ErrInverseSingular:
		return "internal rectification failure"
	}
	if errors.Is(err, detector.ErrNoCard) {
		return "card not found, move the card fully into the frame"
	}
	return "rectification failed"
}
