package emotion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func tallyOf(labels ...Label) *Tally {
	t := &Tally{}
	for _, l := range labels {
		t.Add(l)
	}
	return t
}

func TestTally_Majority(t *testing.T) {
	tests := []struct {
		name   string
		labels []Label
		want   Label
	}{
		{"clear winner", []Label{Happy, Sad, Happy, Angry, Happy}, Happy},
		{"two-way tie goes to first element", []Label{Happy, Sad, Happy, Sad}, Happy},
		{"tie decided by first occurrence", []Label{Sad, Happy, Happy, Sad}, Sad},
		{"late winner", []Label{Neutral, Fear, Fear}, Fear},
		{"single label", []Label{Surprise}, Surprise},
		{"all distinct", []Label{Disgust, Angry, Neutral}, Disgust},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tallyOf(tt.labels...).Majority()
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTally_MajorityEmpty(t *testing.T) {
	_, ok := (&Tally{}).Majority()
	assert.False(t, ok)
}

func TestTally_CountsAndLabels(t *testing.T) {
	tally := tallyOf(Happy, Sad, Happy)

	assert.Equal(t, 3, tally.Len())
	assert.Equal(t, map[Label]int{Happy: 2, Sad: 1}, tally.Counts())

	labels := tally.Labels()
	labels[0] = Angry
	assert.Equal(t, []Label{Happy, Sad, Happy}, tally.Labels(), "Labels must return a copy")
}
