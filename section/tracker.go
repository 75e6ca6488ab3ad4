package section

// Tracker walks a validated section list in lockstep with a message stream.
// Inside reports the decision for CurrentIndex; Advance moves to the next
// message. It never rewinds and holds no message data. Once every section
// has been passed the tracker reports outside for good.
type Tracker struct {
	sections     []IndexSection
	currentIndex int
	sectionIndex int
	inside       bool
}

// NewTracker creates a tracker. sections must already be validated.
func NewTracker(sections []IndexSection) *Tracker {
	return &Tracker{
		sections: sections,
		inside:   len(sections) > 0 && sections[0].FirstLine == 0,
	}
}

// Inside reports whether the current index falls in a section.
func (t *Tracker) Inside() bool { return t.inside }

// CurrentIndex returns the message index being classified.
func (t *Tracker) CurrentIndex() int { return t.currentIndex }

// Exhausted reports whether every section has been passed.
func (t *Tracker) Exhausted() bool { return t.sectionIndex >= len(t.sections) }

// Advance moves to the next message index.
func (t *Tracker) Advance() {
	t.currentIndex++
	if t.Exhausted() {
		t.inside = false
		return
	}

	active := t.sections[t.sectionIndex]
	if !t.inside {
		if active.FirstLine == t.currentIndex {
			t.inside = true
		}
		return
	}

	if active.LastLine < t.currentIndex {
		t.inside = false
		t.sectionIndex++
		// adjacent section starting right here
		if !t.Exhausted() && t.sections[t.sectionIndex].FirstLine == t.currentIndex {
			t.inside = true
		}
	}
}
