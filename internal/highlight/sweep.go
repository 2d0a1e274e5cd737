package highlight

import "sort"

// Range ties an annotation to the half-open interval it covers on a
// surface.
type Range struct {
	Start        int
	End          int
	AnnotationID string
}

// Segment is one disjoint piece of painted output. AnnotationIDs holds
// the covering annotations in activation order; Primary is the
// earliest-activated one and supplies note and tooltip metadata. An
// empty AnnotationIDs means plain text.
type Segment struct {
	Start         int
	End           int
	Text          string
	AnnotationIDs []string
	Primary       string
}

// Event kinds. End sorts before start at equal positions so adjacent
// ranges never produce a spurious one-character overlap.
const (
	eventEnd = iota
	eventStart
)

type event struct {
	pos  int
	kind int
	id   string
}

// Paint sweeps the ranges over the surface and emits non-overlapping
// segments covering the full text. Degenerate ranges (end <= start) are
// dropped silently; out-of-bounds offsets clamp to the surface, which is
// where stale offsets from a shrunk re-crawl end up. Paint is
// deterministic and can be re-run on every annotation or surface change.
func Paint(surface *Surface, ranges []Range) []Segment {
	events := make([]event, 0, len(ranges)*2)
	for _, rng := range ranges {
		if rng.End <= rng.Start {
			continue
		}
		start := clamp(rng.Start, 0, len(surface.Text))
		end := clamp(rng.End, 0, len(surface.Text))
		if end <= start {
			continue
		}
		events = append(events, event{pos: start, kind: eventStart, id: rng.AnnotationID})
		events = append(events, event{pos: end, kind: eventEnd, id: rng.AnnotationID})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].pos != events[j].pos {
			return events[i].pos < events[j].pos
		}
		return events[i].kind < events[j].kind
	})

	var segments []Segment
	active := newActiveSet()
	cursor := 0
	for _, ev := range events {
		if ev.pos > cursor {
			segments = append(segments, makeSegment(surface, cursor, ev.pos, active))
			cursor = ev.pos
		}
		if ev.kind == eventStart {
			active.add(ev.id)
		} else {
			active.remove(ev.id)
		}
	}
	if cursor < len(surface.Text) {
		segments = append(segments, makeSegment(surface, cursor, len(surface.Text), active))
	}
	return segments
}

func makeSegment(surface *Surface, start, end int, active *activeSet) Segment {
	ids := active.snapshot()
	seg := Segment{
		Start:         start,
		End:           end,
		Text:          surface.Text[start:end],
		AnnotationIDs: ids,
	}
	if len(ids) > 0 {
		seg.Primary = ids[0]
	}
	return seg
}

// activeSet tracks covering annotations in activation order with O(1)
// membership checks. Re-adding an active annotation is a no-op, so
// duplicate ranges for the same annotation never double-count.
type activeSet struct {
	order   []string
	present map[string]struct{}
}

func newActiveSet() *activeSet {
	return &activeSet{present: make(map[string]struct{})}
}

func (a *activeSet) add(id string) {
	if _, ok := a.present[id]; ok {
		return
	}
	a.present[id] = struct{}{}
	a.order = append(a.order, id)
}

func (a *activeSet) remove(id string) {
	if _, ok := a.present[id]; !ok {
		return
	}
	delete(a.present, id)
	for i, v := range a.order {
		if v == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

func (a *activeSet) snapshot() []string {
	if len(a.order) == 0 {
		return nil
	}
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
