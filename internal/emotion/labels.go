// Package emotion turns a video into a single dominant emotion.
//
// A Sampler decodes the video and yields every Kth frame, a Classifier labels each
// sampled frame, and the Analyzer tallies successful labels and picks the majority.
package emotion

import (
	"fmt"
	"strings"
)

// Label is the dominant emotion reported for a frame or a whole video.
type Label string

const (
	Angry    Label = "angry"
	Disgust  Label = "disgust"
	Fear     Label = "fear"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Surprise Label = "surprise"
	Neutral  Label = "neutral"
)

// Sentinel labels. They are successful outcomes, never errors.
const (
	// LabelNoFrames means the stream produced zero frames.
	LabelNoFrames Label = "No frames"
	// LabelNoFaces means frames were read but none was classified.
	LabelNoFaces Label = "No faces detected"
)

// Vocabulary lists every label a classifier may produce.
var Vocabulary = []Label{Angry, Disgust, Fear, Happy, Sad, Surprise, Neutral}

var known = func() map[Label]bool {
	m := make(map[Label]bool, len(Vocabulary))
	for _, l := range Vocabulary {
		m[l] = true
	}
	return m
}()

// ferPlusClasses is the output order of the FER+ emotion network.
var ferPlusClasses = []Label{Neutral, Happy, Surprise, Sad, Angry, Disgust, Fear, Disgust}

// ParseLabel normalises a classifier label and checks it against the vocabulary.
func ParseLabel(s string) (Label, error) {
	l := Label(strings.ToLower(strings.TrimSpace(s)))
	if !known[l] {
		return "", fmt.Errorf("unknown emotion label %q", s)
	}
	return l, nil
}

// FERPlusLabel maps a FER+ class index to a label. Contempt folds into disgust.
func FERPlusLabel(class int) (Label, error) {
	if class < 0 || class >= len(ferPlusClasses) {
		return "", fmt.Errorf("emotion class %d out of range", class)
	}
	return ferPlusClasses[class], nil
}

// IsSentinel reports whether l is one of the reserved no-frames / no-faces labels.
func (l Label) IsSentinel() bool {
	return l == LabelNoFrames || l == LabelNoFaces
}

func (l Label) String() string {
	return string(l)
}
