// Package opencv provides the gocv-backed video decoder and frame emotion
// classifier. Both need OpenCV 4 with the dnn module at build time.
package opencv

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"

	"gocv.io/x/gocv"

	"github.com/facetally/facetally/internal/emotion"
)

type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Name() string { return "opencv" }

func (d *Decoder) Open(ctx context.Context, path string) (emotion.VideoHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, &emotion.VideoOpenError{Path: path, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &emotion.VideoOpenError{Path: path, Err: errors.New("capture not opened")}
	}

	return &capture{vc: vc, mat: gocv.NewMat()}, nil
}

type capture struct {
	vc   *gocv.VideoCapture
	mat  gocv.Mat
	once sync.Once
	err  error
}

// Next converts each BGR frame to an RGBA image owned by the caller.
func (c *capture) Next() (image.Image, error) {
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, io.EOF
	}
	return c.mat.ToImage()
}

func (c *capture) Close() error {
	c.once.Do(func() {
		c.mat.Close()
		c.err = c.vc.Close()
	})
	return c.err
}
