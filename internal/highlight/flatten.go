// Package highlight turns rendered document text into a flat addressable
// surface and paints annotation ranges over it as disjoint segments. All
// of it is pure computation: offsets in, segments out, no I/O.
package highlight

import "strings"

// Run is one contiguous piece of rendered text in display order: a
// paragraph, a page, a text node. Runs are immutable once produced.
type Run struct {
	ID   string
	Text string
}

// Span records where a run landed in the flattened text. Half-open:
// the run covers [Start, End).
type Span struct {
	RunID string
	Start int
	End   int
}

// Surface is the flattened text with its offset index. Offsets count
// bytes of the UTF-8 text, the same unit annotation offsets are
// captured in.
type Surface struct {
	Text  string
	Spans []Span
}

// Flatten concatenates runs into a single monotonically indexed
// surface. Zero-length runs are skipped. The same runs always flatten
// to the same offsets; regenerated runs (reflow, re-crawl) need a fresh
// Flatten because offsets do not survive regeneration.
func Flatten(runs []Run) *Surface {
	var b strings.Builder
	spans := make([]Span, 0, len(runs))
	offset := 0
	for _, run := range runs {
		if len(run.Text) == 0 {
			continue
		}
		b.WriteString(run.Text)
		spans = append(spans, Span{RunID: run.ID, Start: offset, End: offset + len(run.Text)})
		offset += len(run.Text)
	}
	return &Surface{Text: b.String(), Spans: spans}
}

// RunAt returns the span covering the offset. A boundary offset belongs
// to the later run, matching half-open span intervals; the surface end
// belongs to no run.
func (s *Surface) RunAt(offset int) (Span, bool) {
	for _, span := range s.Spans {
		if offset >= span.Start && offset < span.End {
			return span, true
		}
	}
	return Span{}, false
}

// Overlapping returns the spans intersecting [start, end), in order.
func (s *Surface) Overlapping(start, end int) []Span {
	var out []Span
	for _, span := range s.Spans {
		if span.Start < end && span.End > start {
			out = append(out, span)
		}
	}
	return out
}
