package emotion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facetally/facetally/internal/metrics"
)

// Analysis is the result of one video analysis call.
type Analysis struct {
	Label            Label
	FramesRead       int
	FramesSampled    int
	FramesClassified int
	FramesFailed     int
	Tally            Tally
	Duration         time.Duration
}

// Outcome names the kind of result for records and metrics.
func (a *Analysis) Outcome() string {
	switch a.Label {
	case LabelNoFrames:
		return metrics.OutcomeNoFrames
	case LabelNoFaces:
		return metrics.OutcomeNoFaces
	default:
		return metrics.OutcomeAnalyzed
	}
}

// Analyzer samples a video, classifies each sampled frame and reports the
// majority emotion.
type Analyzer struct {
	sampler    *Sampler
	classifier Classifier
	logger     *slog.Logger
}

func NewAnalyzer(sampler *Sampler, classifier Classifier, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{sampler: sampler, classifier: classifier, logger: logger}
}

// Analyze runs one analysis. A video that cannot be opened returns a
// *VideoOpenError; frame-level classification failures are skipped.
func (a *Analyzer) Analyze(ctx context.Context, path string) (*Analysis, error) {
	start := time.Now()

	seq, err := a.sampler.Open(ctx, path)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return nil, err
	}
	defer seq.Close()

	res := &Analysis{}
	for frame := range seq.Frames() {
		if err := ctx.Err(); err != nil {
			return nil, a.abort(res, seq, err)
		}

		res.FramesSampled++
		metrics.FramesSampledTotal.Inc()

		out := a.classifier.Classify(ctx, frame.Image)
		if !out.OK() {
			res.FramesFailed++
			metrics.ClassificationsTotal.WithLabelValues("failed").Inc()
			a.logger.Warn("frame classification failed",
				"frame", frame.Index,
				"error", outcomeError(out),
			)
			continue
		}

		res.Tally.Add(out.Label)
		res.FramesClassified++
		metrics.ClassificationsTotal.WithLabelValues("ok").Inc()
		a.logger.Debug("frame classified", "frame", frame.Index, "emotion", out.Label)
	}

	// A cancelled decoder ends its stream; that must not read as an empty video.
	if err := ctx.Err(); err != nil {
		return nil, a.abort(res, seq, err)
	}

	if err := seq.Err(); err != nil {
		a.logger.Warn("video stream ended early", "frames_read", seq.FramesRead(), "error", err)
	}

	res.FramesRead = seq.FramesRead()
	metrics.FramesDecodedTotal.Add(float64(res.FramesRead))

	switch {
	case res.FramesRead == 0:
		res.Label = LabelNoFrames
	case res.Tally.Len() == 0:
		res.Label = LabelNoFaces
	default:
		res.Label, _ = res.Tally.Majority()
	}

	res.Duration = time.Since(start)
	metrics.AnalysesTotal.WithLabelValues(res.Outcome()).Inc()
	metrics.AnalysisDuration.Observe(res.Duration.Seconds())

	a.logger.Info("video analysed",
		"emotion", res.Label,
		"frames_read", res.FramesRead,
		"frames_sampled", res.FramesSampled,
		"frames_classified", res.FramesClassified,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (a *Analyzer) abort(res *Analysis, seq *Sequence, err error) error {
	metrics.AnalysesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
	a.logger.Warn("video analysis aborted",
		"frames_read", seq.FramesRead(),
		"frames_sampled", res.FramesSampled,
		"error", err,
	)
	return fmt.Errorf("analysis aborted after %d frames: %w", seq.FramesRead(), err)
}

func outcomeError(o Outcome) error {
	if o.Err != nil {
		return o.Err
	}
	return &ClassificationError{Err: errors.New("classifier returned no label")}
}
