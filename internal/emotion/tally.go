package emotion

// Tally is the ordered list of labels collected for one video.
// It only grows; failed frames are never added.
type Tally struct {
	labels []Label
}

func (t *Tally) Add(l Label) {
	t.labels = append(t.labels, l)
}

func (t *Tally) Len() int {
	return len(t.labels)
}

// Labels returns a copy of the tally in insertion order.
func (t *Tally) Labels() []Label {
	out := make([]Label, len(t.labels))
	copy(out, t.labels)
	return out
}

// Counts returns how often each label was recorded.
func (t *Tally) Counts() map[Label]int {
	counts := make(map[Label]int, len(t.labels))
	for _, l := range t.labels {
		counts[l]++
	}
	return counts
}

// Majority returns the most frequent label. Ties go to the label that first
// appears earliest in the tally, not to the label that reached the top count
// first: [sad happy happy sad] is sad. ok is false when the tally is empty.
func (t *Tally) Majority() (Label, bool) {
	if len(t.labels) == 0 {
		return "", false
	}

	counts := t.Counts()
	best := t.labels[0]
	for _, l := range t.labels {
		if counts[l] > counts[best] {
			best = l
		}
	}
	return best, true
}
