package emotion

import (
	"context"
	"image"
)

// Classifier reports the dominant emotion of a single image.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) Outcome
}

// Outcome is the per-frame result of a classifier call: either a label or a failure.
type Outcome struct {
	Label Label
	Err   error
}

// Classified builds a successful outcome.
func Classified(l Label) Outcome {
	return Outcome{Label: l}
}

// Failed builds a failed outcome, wrapping err in a *ClassificationError
// unless it already is one.
func Failed(err error) Outcome {
	if _, ok := err.(*ClassificationError); ok {
		return Outcome{Err: err}
	}
	return Outcome{Err: &ClassificationError{Err: err}}
}

func (o Outcome) OK() bool {
	return o.Err == nil && o.Label != ""
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, img image.Image) Outcome

func (f ClassifierFunc) Classify(ctx context.Context, img image.Image) Outcome {
	return f(ctx, img)
}
