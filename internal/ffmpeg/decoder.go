// Package ffmpeg decodes videos by piping raw rgb24 frames out of an ffmpeg
// subprocess. It needs the ffmpeg and ffprobe binaries but no cgo.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/facetally/facetally/internal/emotion"
	"github.com/facetally/facetally/internal/subprocess"
)

type Decoder struct {
	ffmpeg  string
	ffprobe string
	logger  *slog.Logger
}

// NewDecoder resolves the two binaries, preferring the configured paths.
func NewDecoder(ffmpegBin, ffprobeBin string, logger *slog.Logger) (*Decoder, error) {
	ff, err := subprocess.ResolveBinary(ffmpegBin, "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("resolve ffmpeg: %w", err)
	}
	fp, err := subprocess.ResolveBinary(ffprobeBin, "ffprobe")
	if err != nil {
		return nil, fmt.Errorf("resolve ffprobe: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Decoder{ffmpeg: ff, ffprobe: fp, logger: logger}, nil
}

func (d *Decoder) Name() string { return "ffmpeg" }

// Open probes the file and starts streaming its frames. A probe failure
// means the file is not a readable video.
func (d *Decoder) Open(ctx context.Context, path string) (emotion.VideoHandle, error) {
	probe, err := d.Probe(ctx, path)
	if err != nil {
		return nil, &emotion.VideoOpenError{Path: path, Err: err}
	}

	width, height := probe.FrameSize()

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, d.ffmpeg, decodeArgs(path)...)
	stderr := subprocess.NewTailBuffer(subprocess.MaxStderrBytes)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &emotion.VideoOpenError{Path: path, Err: err}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &emotion.VideoOpenError{Path: path, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	d.logger.Debug("ffmpeg decode started",
		"path", path,
		"width", width,
		"height", height,
		"rotation", probe.Rotation,
		"codec", probe.Codec,
		"fps", probe.FrameRate,
	)

	return &handle{
		cmd:    cmd,
		cancel: cancel,
		stderr: stderr,
		frames: newFrameReader(stdout, width, height),
	}, nil
}

// decodeArgs streams the first video stream as packed rgb24. Autorotation
// stays on so faces reach the classifier upright; see ProbeResult.FrameSize.
func decodeArgs(path string) []string {
	return []string{
		"-nostdin",
		"-v", "error",
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	}
}

type handle struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr *subprocess.TailBuffer
	frames *frameReader

	closeOnce sync.Once
	waitErr   error
	waited    bool
}

func (h *handle) Next() (image.Image, error) {
	img, err := h.frames.Next()
	if err == nil {
		return img, nil
	}
	if !errors.Is(err, io.EOF) {
		return nil, err
	}
	// Stream ended; a non-zero exit means ffmpeg gave up mid-file.
	if werr := h.wait(); werr != nil {
		return nil, fmt.Errorf("ffmpeg exited: %w (stderr: %s)", werr,
			subprocess.Truncate(strings.TrimSpace(h.stderr.String()), 500))
	}
	return nil, io.EOF
}

func (h *handle) wait() error {
	if !h.waited {
		h.waited = true
		h.waitErr = h.cmd.Wait()
	}
	return h.waitErr
}

// Close kills ffmpeg if it is still running and reaps it.
func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		h.cancel()
		_ = h.wait()
	})
	return nil
}

// frameReader slices a packed rgb24 stream into fixed-size frames.
type frameReader struct {
	r      io.Reader
	width  int
	height int
	buf    []byte
}

func newFrameReader(r io.Reader, width, height int) *frameReader {
	return &frameReader{
		r:      r,
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
	}
}

// Next returns io.EOF at a clean frame boundary and io.ErrUnexpectedEOF on a
// truncated trailing frame.
func (f *frameReader) Next() (image.Image, error) {
	if _, err := io.ReadFull(f.r, f.buf); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	for src, dst := 0, 0; src < len(f.buf); src, dst = src+3, dst+4 {
		img.Pix[dst] = f.buf[src]
		img.Pix[dst+1] = f.buf[src+1]
		img.Pix[dst+2] = f.buf[src+2]
		img.Pix[dst+3] = 0xff
	}
	return img, nil
}
