package highlight

import (
	"reflect"
	"strings"
	"testing"
)

func surfaceOf(text string) *Surface {
	return Flatten([]Run{{ID: "run_1", Text: text}})
}

func joinSegments(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.Text)
	}
	return b.String()
}

func TestPaintOverlappingRanges(t *testing.T) {
	surface := surfaceOf("abcdefghij")
	ranges := []Range{
		{Start: 2, End: 6, AnnotationID: "A"},
		{Start: 4, End: 8, AnnotationID: "B"},
	}
	segments := Paint(surface, ranges)

	want := []struct {
		text    string
		ids     []string
		primary string
	}{
		{"ab", nil, ""},
		{"cd", []string{"A"}, "A"},
		{"ef", []string{"A", "B"}, "A"},
		{"gh", []string{"B"}, "B"},
		{"ij", nil, ""},
	}
	if len(segments) != len(want) {
		t.Fatalf("expected %d segments, got %d: %+v", len(want), len(segments), segments)
	}
	for i, w := range want {
		got := segments[i]
		if got.Text != w.text {
			t.Fatalf("segment %d: expected text %q, got %q", i, w.text, got.Text)
		}
		if !reflect.DeepEqual(got.AnnotationIDs, w.ids) {
			t.Fatalf("segment %d: expected ids %v, got %v", i, w.ids, got.AnnotationIDs)
		}
		if got.Primary != w.primary {
			t.Fatalf("segment %d: expected primary %q, got %q", i, w.primary, got.Primary)
		}
	}
}

func TestPaintIdempotent(t *testing.T) {
	surface := surfaceOf("abcdefghij")
	ranges := []Range{
		{Start: 2, End: 6, AnnotationID: "A"},
		{Start: 4, End: 8, AnnotationID: "B"},
		{Start: 0, End: 10, AnnotationID: "C"},
	}
	first := Paint(surface, ranges)
	second := Paint(surface, ranges)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical output across runs:\n%+v\n%+v", first, second)
	}
}

func TestPaintTotalCoverage(t *testing.T) {
	surface := surfaceOf("the quick brown fox jumps over the lazy dog")
	cases := []struct {
		name   string
		ranges []Range
	}{
		{"no ranges", nil},
		{"single range", []Range{{Start: 4, End: 9, AnnotationID: "A"}}},
		{"fully overlapping", []Range{
			{Start: 0, End: 44, AnnotationID: "A"},
			{Start: 0, End: 44, AnnotationID: "B"},
		}},
		{"adjacent non-overlapping", []Range{
			{Start: 0, End: 10, AnnotationID: "A"},
			{Start: 10, End: 20, AnnotationID: "B"},
		}},
		{"nested", []Range{
			{Start: 4, End: 25, AnnotationID: "A"},
			{Start: 10, End: 15, AnnotationID: "B"},
		}},
		{"degenerate mixed in", []Range{
			{Start: 4, End: 9, AnnotationID: "A"},
			{Start: 9, End: 9, AnnotationID: "B"},
		}},
	}
	for _, tc := range cases {
		segments := Paint(surface, tc.ranges)
		if got := joinSegments(segments); got != surface.Text {
			t.Fatalf("%s: expected full coverage %q, got %q", tc.name, surface.Text, got)
		}
	}
}

func TestPaintAdjacentRangesDoNotOverlap(t *testing.T) {
	// The end event at 5 is processed before the start event at 5, so
	// "fghij" carries only B.
	surface := surfaceOf("abcdefghij")
	segments := Paint(surface, []Range{
		{Start: 0, End: 5, AnnotationID: "A"},
		{Start: 5, End: 10, AnnotationID: "B"},
	})
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segments), segments)
	}
	if !reflect.DeepEqual(segments[0].AnnotationIDs, []string{"A"}) {
		t.Fatalf("expected first segment covered by A only, got %v", segments[0].AnnotationIDs)
	}
	if !reflect.DeepEqual(segments[1].AnnotationIDs, []string{"B"}) {
		t.Fatalf("expected second segment covered by B only, got %v", segments[1].AnnotationIDs)
	}
}

func TestPaintDropsDegenerateRanges(t *testing.T) {
	surface := surfaceOf("abcdefghij")

	segments := Paint(surface, []Range{{Start: 5, End: 5, AnnotationID: "A"}})
	if len(segments) != 1 || segments[0].Text != "abcdefghij" || segments[0].AnnotationIDs != nil {
		t.Fatalf("expected single plain segment, got %+v", segments)
	}

	with := Paint(surface, []Range{
		{Start: 2, End: 6, AnnotationID: "A"},
		{Start: 5, End: 5, AnnotationID: "Z"},
		{Start: 8, End: 3, AnnotationID: "Y"},
	})
	without := Paint(surface, []Range{{Start: 2, End: 6, AnnotationID: "A"}})
	if !reflect.DeepEqual(with, without) {
		t.Fatalf("degenerate ranges changed output:\n%+v\n%+v", with, without)
	}
}

func TestPaintDuplicateRangesCountOnce(t *testing.T) {
	surface := surfaceOf("abcdefghij")
	once := Paint(surface, []Range{{Start: 2, End: 6, AnnotationID: "A"}})
	twice := Paint(surface, []Range{
		{Start: 2, End: 6, AnnotationID: "A"},
		{Start: 2, End: 6, AnnotationID: "A"},
	})
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("duplicate range double-counted:\n%+v\n%+v", once, twice)
	}
}

func TestPaintPrimaryFollowsActivationOrder(t *testing.T) {
	surface := surfaceOf("abcdefghij")
	segments := Paint(surface, []Range{
		{Start: 4, End: 10, AnnotationID: "late"},
		{Start: 0, End: 8, AnnotationID: "early"},
	})
	// [0,4) early; [4,8) early+late with early primary; [8,10) late.
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d: %+v", len(segments), segments)
	}
	if segments[1].Primary != "early" {
		t.Fatalf("expected earliest-activated annotation as primary, got %q", segments[1].Primary)
	}
	if !reflect.DeepEqual(segments[1].AnnotationIDs, []string{"early", "late"}) {
		t.Fatalf("expected activation order preserved, got %v", segments[1].AnnotationIDs)
	}
	if segments[2].Primary != "late" {
		t.Fatalf("expected late primary after early ends, got %q", segments[2].Primary)
	}
}

func TestPaintClampsStaleOffsets(t *testing.T) {
	surface := surfaceOf("abcdefghij")
	segments := Paint(surface, []Range{
		{Start: 8, End: 99, AnnotationID: "A"},
		{Start: -3, End: 2, AnnotationID: "B"},
		{Start: 50, End: 60, AnnotationID: "C"},
	})
	if got := joinSegments(segments); got != surface.Text {
		t.Fatalf("expected full coverage, got %q", got)
	}
	if !reflect.DeepEqual(segments[0].AnnotationIDs, []string{"B"}) {
		t.Fatalf("expected clamped B at the front, got %v", segments[0].AnnotationIDs)
	}
	last := segments[len(segments)-1]
	if !reflect.DeepEqual(last.AnnotationIDs, []string{"A"}) {
		t.Fatalf("expected clamped A at the tail, got %v", last.AnnotationIDs)
	}
	for _, seg := range segments {
		for _, id := range seg.AnnotationIDs {
			if id == "C" {
				t.Fatalf("expected fully out-of-range C dropped, got %+v", segments)
			}
		}
	}
}

func TestPaintEmptySurface(t *testing.T) {
	segments := Paint(surfaceOf(""), []Range{{Start: 0, End: 5, AnnotationID: "A"}})
	if len(segments) != 0 {
		t.Fatalf("expected no segments on empty surface, got %+v", segments)
	}
}
