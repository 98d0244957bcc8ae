package opencv

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/facetally/facetally/internal/emotion"
)

// FER+ networks take a single 64x64 grayscale face.
const ferInputSize = 64

type ClassifierOptions struct {
	CascadePath      string
	ModelPath        string
	EnforceDetection bool
}

// Classifier finds the largest face with a Haar cascade and runs a FER+ ONNX
// network on it. gocv nets are not safe for concurrent use, so calls are
// serialised.
type Classifier struct {
	mu      sync.Mutex
	cascade gocv.CascadeClassifier
	net     gocv.Net
	enforce bool
	logger  *slog.Logger
}

func NewClassifier(opts ClassifierOptions, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(opts.CascadePath) {
		cascade.Close()
		return nil, fmt.Errorf("load face cascade %s", opts.CascadePath)
	}

	net := gocv.ReadNet(opts.ModelPath, "")
	if net.Empty() {
		cascade.Close()
		net.Close()
		return nil, fmt.Errorf("load emotion model %s", opts.ModelPath)
	}

	logger.Info("opencv classifier loaded",
		"cascade", opts.CascadePath,
		"model", opts.ModelPath,
		"enforce_detection", opts.EnforceDetection,
	)

	return &Classifier{
		cascade: cascade,
		net:     net,
		enforce: opts.EnforceDetection,
		logger:  logger,
	}, nil
}

func (c *Classifier) Name() string { return "opencv" }

func (c *Classifier) Classify(ctx context.Context, img image.Image) emotion.Outcome {
	if err := ctx.Err(); err != nil {
		return emotion.Failed(err)
	}

	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return emotion.Failed(fmt.Errorf("convert frame: %w", err))
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	c.mu.Lock()
	defer c.mu.Unlock()

	face, found := largestFace(c.cascade.DetectMultiScale(gray))
	if !found {
		if c.enforce {
			return emotion.Failed(emotion.ErrNoFace)
		}
		face = image.Rect(0, 0, gray.Cols(), gray.Rows())
	}

	roi := gray.Region(face)
	defer roi.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(roi, &resized, image.Pt(ferInputSize, ferInputSize), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0, image.Pt(ferInputSize, ferInputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	c.net.SetInput(blob, "")
	scores := c.net.Forward("")
	defer scores.Close()

	_, _, _, maxLoc := gocv.MinMaxLoc(scores)
	label, err := emotion.FERPlusLabel(maxLoc.X)
	if err != nil {
		return emotion.Failed(err)
	}
	return emotion.Classified(label)
}

func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.net.Close()
	return c.cascade.Close()
}

func largestFace(rects []image.Rectangle) (image.Rectangle, bool) {
	var best image.Rectangle
	bestArea := 0
	for _, r := range rects {
		if a := r.Dx() * r.Dy(); a > bestArea {
			best, bestArea = r, a
		}
	}
	return best, bestArea > 0
}
