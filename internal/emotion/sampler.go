package emotion

import (
	"context"
	"errors"
	"image"
	"io"
	"iter"
)

// DefaultInterval is the sampling stride used when none is configured.
const DefaultInterval = 10

// Decoder opens video sources for sequential decoding.
type Decoder interface {
	Open(ctx context.Context, path string) (VideoHandle, error)
}

// VideoHandle is an open video source. Next returns io.EOF once the stream ends.
type VideoHandle interface {
	Next() (image.Image, error)
	Close() error
}

// Frame is a decoded image and its index in the original sequence.
type Frame struct {
	Index int
	Image image.Image
}

// Sampler yields every Kth frame of a video.
type Sampler struct {
	decoder  Decoder
	interval int
}

func NewSampler(decoder Decoder, interval int) *Sampler {
	if interval < 1 {
		interval = DefaultInterval
	}
	return &Sampler{decoder: decoder, interval: interval}
}

func (s *Sampler) Interval() int {
	return s.interval
}

// Open opens path and returns the sampled frame sequence. Failing to open the
// video is reported as a *VideoOpenError.
func (s *Sampler) Open(ctx context.Context, path string) (*Sequence, error) {
	handle, err := s.decoder.Open(ctx, path)
	if err != nil {
		var openErr *VideoOpenError
		if errors.As(err, &openErr) {
			return nil, err
		}
		return nil, &VideoOpenError{Path: path, Err: err}
	}
	return &Sequence{handle: handle, interval: s.interval}, nil
}

// Sequence is a lazy, finite, single-use stream of sampled frames.
// The underlying handle is released when iteration ends for any reason.
type Sequence struct {
	handle   VideoHandle
	interval int

	read    int
	err     error
	started bool
	closed  bool
}

// Frames iterates the sampled frames in increasing index order. A second call
// yields nothing.
func (q *Sequence) Frames() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		if q.started {
			return
		}
		q.started = true
		defer q.release()

		for {
			img, err := q.handle.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					q.err = err
				}
				return
			}

			index := q.read
			q.read++
			if index%q.interval != 0 {
				continue
			}
			if !yield(Frame{Index: index, Image: img}) {
				return
			}
		}
	}
}

// FramesRead is the number of frames decoded so far, sampled or not.
func (q *Sequence) FramesRead() int {
	return q.read
}

// Err returns the decode or close error that ended the stream early, if any.
func (q *Sequence) Err() error {
	return q.err
}

// Close releases the video handle. It is safe to call more than once.
func (q *Sequence) Close() error {
	if q.closed {
		return nil
	}
	q.closed = true
	return q.handle.Close()
}

func (q *Sequence) release() {
	if err := q.Close(); err != nil && q.err == nil {
		q.err = err
	}
}
