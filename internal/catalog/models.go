package catalog

import (
	"time"

	"github.com/facetally/facetally/internal/emotion"
)

// Video is the record kept for one uploaded file.
type Video struct {
	Filename         string         `json:"filename"`
	Emotion          string         `json:"emotion"`
	Outcome          string         `json:"outcome"`
	Size             int64          `json:"size"`
	ContentType      string         `json:"content_type"`
	FramesRead       int            `json:"frames_read"`
	FramesSampled    int            `json:"frames_sampled"`
	FramesClassified int            `json:"frames_classified"`
	Emotions         map[string]int `json:"emotions,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// HasFaces reports whether the record carries a real emotion rather than
// one of the sentinel results.
func (v *Video) HasFaces() bool {
	return !emotion.Label(v.Emotion).IsSentinel()
}

func newVideo(filename string, size int64, contentType string, a *emotion.Analysis, now time.Time) *Video {
	counts := a.Tally.Counts()
	emotions := make(map[string]int, len(counts))
	for l, n := range counts {
		emotions[string(l)] = n
	}
	return &Video{
		Filename:         filename,
		Emotion:          string(a.Label),
		Outcome:          a.Outcome(),
		Size:             size,
		ContentType:      contentType,
		FramesRead:       a.FramesRead,
		FramesSampled:    a.FramesSampled,
		FramesClassified: a.FramesClassified,
		Emotions:         emotions,
		CreatedAt:        now,
	}
}
