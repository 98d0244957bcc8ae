package emotion

import (
	"context"
	"errors"
	"image"
	"io"
)

type fakeDecoder struct {
	frames  int
	openErr error
	failAt  int // decode error at this index; 0 disables

	opened  int
	handles []*fakeHandle
}

func (d *fakeDecoder) Open(ctx context.Context, path string) (VideoHandle, error) {
	d.opened++
	if d.openErr != nil {
		return nil, d.openErr
	}
	h := &fakeHandle{total: d.frames, failAt: d.failAt}
	d.handles = append(d.handles, h)
	return h, nil
}

func (d *fakeDecoder) allClosed() bool {
	for _, h := range d.handles {
		if h.closes == 0 {
			return false
		}
	}
	return true
}

type fakeHandle struct {
	total  int
	failAt int
	next   int
	closes int
}

var errDecode = errors.New("corrupt packet")

func (h *fakeHandle) Next() (image.Image, error) {
	if h.closes > 0 {
		return nil, errors.New("read after close")
	}
	if h.failAt > 0 && h.next == h.failAt {
		return nil, errDecode
	}
	if h.next >= h.total {
		return nil, io.EOF
	}
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.Pix[0] = uint8(h.next)
	h.next++
	return img, nil
}

func (h *fakeHandle) Close() error {
	h.closes++
	return nil
}

// scriptedClassifier returns labels in order; "" means the call fails.
type scriptedClassifier struct {
	script []Label
	calls  int
}

func (c *scriptedClassifier) Classify(ctx context.Context, img image.Image) Outcome {
	i := c.calls
	c.calls++
	if i >= len(c.script) || c.script[i] == "" {
		return Failed(ErrNoFace)
	}
	return Classified(c.script[i])
}
