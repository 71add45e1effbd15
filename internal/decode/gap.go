package decode

import "time"

// dayGroup identifies the (date, group) a gap is measured within.
type dayGroup struct {
	date  string
	group int
}

func keyOf(date time.Time, group int) dayGroup {
	return dayGroup{date: date.Format("2006-01-02"), group: group}
}

// gapTracker remembers where the last emitted session of each (date, group)
// ended. It belongs to a single Decode call.
type gapTracker struct {
	baseline int
	lastEnd  map[dayGroup]int
}

func newGapTracker(baseline int) *gapTracker {
	return &gapTracker{baseline: baseline, lastEnd: make(map[dayGroup]int)}
}

// close records a session and returns its spacing to the previous one,
// floored at zero. The first session of a key is measured from the baseline.
func (t *gapTracker) close(k dayGroup, start, duration int) int {
	last, ok := t.lastEnd[k]
	if !ok {
		last = t.baseline
	}
	t.lastEnd[k] = start + duration
	return max(0, start-last)
}

// span is a closed run of identical labels.
type span struct {
	subject  string
	start    int
	duration int
}

// runState is the slot scan accumulator. It is threaded by value through a
// row scan; the zero value has no open run.
type runState struct {
	open bool
	cur  span
}

// step feeds one slot into the run. label is the normalized cell text ("" for
// an empty slot). It returns the next state and the run closed by this slot,
// if any.
func (s runState) step(label string, slotStart, slotLen int) (runState, span, bool) {
	switch {
	case label == "":
		if s.open {
			return runState{}, s.cur, true
		}
		return s, span{}, false
	case !s.open:
		return runState{open: true, cur: span{subject: label, start: slotStart, duration: slotLen}}, span{}, false
	case label == s.cur.subject:
		s.cur.duration += slotLen
		return s, span{}, false
	default:
		closed := s.cur
		return runState{open: true, cur: span{subject: label, start: slotStart, duration: slotLen}}, closed, true
	}
}

// flush closes the open run at the end of a row.
func (s runState) flush() (span, bool) {
	return s.cur, s.open
}
