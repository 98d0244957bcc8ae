package emotion

import (
	"errors"
	"fmt"
)

// ErrNoFace is returned by classifiers running with strict detection when a frame
// contains no detectable face.
var ErrNoFace = errors.New("no face detected")

// VideoOpenError means the path did not yield a usable video stream.
// It is fatal for one analysis call.
type VideoOpenError struct {
	Path string
	Err  error
}

func (e *VideoOpenError) Error() string {
	return fmt.Sprintf("open video %s: %v", e.Path, e.Err)
}

func (e *VideoOpenError) Unwrap() error {
	return e.Err
}

// ClassificationError means a single frame could not be classified.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify frame: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// IsVideoOpenError reports whether err carries a *VideoOpenError.
func IsVideoOpenError(err error) bool {
	var openErr *VideoOpenError
	return errors.As(err, &openErr)
}
