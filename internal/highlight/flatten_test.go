package highlight

import (
	"reflect"
	"testing"
)

func TestFlattenBuildsMonotonicIndex(t *testing.T) {
	surface := Flatten([]Run{
		{ID: "p1", Text: "Hello, "},
		{ID: "p2", Text: "world"},
		{ID: "p3", Text: "!"},
	})
	if surface.Text != "Hello, world!" {
		t.Fatalf("expected flattened text, got %q", surface.Text)
	}
	want := []Span{
		{RunID: "p1", Start: 0, End: 7},
		{RunID: "p2", Start: 7, End: 12},
		{RunID: "p3", Start: 12, End: 13},
	}
	if !reflect.DeepEqual(surface.Spans, want) {
		t.Fatalf("expected spans %+v, got %+v", want, surface.Spans)
	}
}

func TestFlattenSkipsEmptyRuns(t *testing.T) {
	surface := Flatten([]Run{
		{ID: "p1", Text: "ab"},
		{ID: "empty", Text: ""},
		{ID: "p2", Text: "cd"},
	})
	if surface.Text != "abcd" {
		t.Fatalf("expected abcd, got %q", surface.Text)
	}
	if len(surface.Spans) != 2 {
		t.Fatalf("expected empty run skipped, got %+v", surface.Spans)
	}
	if surface.Spans[1].RunID != "p2" || surface.Spans[1].Start != 2 {
		t.Fatalf("expected p2 at offset 2, got %+v", surface.Spans[1])
	}
}

func TestFlattenIdempotent(t *testing.T) {
	runs := []Run{{ID: "p1", Text: "alpha"}, {ID: "p2", Text: "beta"}}
	first := Flatten(runs)
	second := Flatten(runs)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical surfaces:\n%+v\n%+v", first, second)
	}
}

func TestFlattenEmpty(t *testing.T) {
	surface := Flatten(nil)
	if surface.Text != "" || len(surface.Spans) != 0 {
		t.Fatalf("expected empty surface, got %+v", surface)
	}
}

func TestRunAtBoundaries(t *testing.T) {
	surface := Flatten([]Run{
		{ID: "p1", Text: "abcde"},
		{ID: "p2", Text: "fghij"},
	})
	cases := []struct {
		offset int
		runID  string
		found  bool
	}{
		{0, "p1", true},
		{4, "p1", true},
		{5, "p2", true}, // boundary offset starts the later run
		{9, "p2", true},
		{10, "", false}, // surface end belongs to no run
		{-1, "", false},
	}
	for _, tc := range cases {
		span, ok := surface.RunAt(tc.offset)
		if ok != tc.found {
			t.Fatalf("RunAt(%d): expected found=%v, got %v", tc.offset, tc.found, ok)
		}
		if ok && span.RunID != tc.runID {
			t.Fatalf("RunAt(%d): expected run %s, got %s", tc.offset, tc.runID, span.RunID)
		}
	}
}

func TestOverlappingSpans(t *testing.T) {
	surface := Flatten([]Run{
		{ID: "p1", Text: "abcde"},
		{ID: "p2", Text: "fghij"},
		{ID: "p3", Text: "klmno"},
	})
	spans := surface.Overlapping(3, 12)
	if len(spans) != 3 {
		t.Fatalf("expected 3 overlapping spans, got %+v", spans)
	}
	spans = surface.Overlapping(5, 10)
	if len(spans) != 1 || spans[0].RunID != "p2" {
		t.Fatalf("expected exactly p2 for [5,10), got %+v", spans)
	}
	if spans := surface.Overlapping(15, 20); spans != nil {
		t.Fatalf("expected no spans past the end, got %+v", spans)
	}
}
