// Package utils holds image I/O, transport encodings and drawing helpers used
// around the rectification core.
package utils

import "fmt"

// ImageProcessingError represents errors that can occur while loading,
// decoding or encoding images.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }
