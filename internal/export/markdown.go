package export

import (
	"fmt"
	"strings"

	"margin/api/internal/highlight"
	"margin/api/internal/store"
)

// exportMarkdown emits the document text with footnote-style notes.
// Each noted annotation gets a marker after the last painted segment it
// covers; annotations whose range was orphaned by a re-crawl have no
// segment to mark, so their notes land in a trailing list instead.
func exportMarkdown(doc store.Document, anns []store.Annotation, segments []highlight.Segment, authors map[string]string, includeNotes bool) (*Result, error) {
	lastSeg := make(map[string]int)
	for i, seg := range segments {
		for _, id := range seg.AnnotationIDs {
			lastSeg[id] = i
		}
	}

	// Annotations arrive in start-offset order, so footnotes number in
	// reading order.
	number := make(map[string]int)
	var footnotes []string
	var orphaned []store.Annotation
	if includeNotes {
		for _, a := range anns {
			if strings.TrimSpace(a.Body) == "" {
				continue
			}
			if _, ok := lastSeg[a.ID]; !ok {
				orphaned = append(orphaned, a)
				continue
			}
			number[a.ID] = len(footnotes) + 1
			footnotes = append(footnotes, fmt.Sprintf("[^%d]: %s: %s", len(footnotes)+1, authors[a.UserID], singleLine(a.Body)))
		}
	}

	var b strings.Builder
	b.WriteString("# " + doc.Title + "\n\n")
	if doc.URL != "" {
		b.WriteString("> " + doc.URL + "\n\n")
	}

	for i, seg := range segments {
		b.WriteString(seg.Text)
		for _, id := range seg.AnnotationIDs {
			if lastSeg[id] != i {
				continue
			}
			if n, ok := number[id]; ok {
				fmt.Fprintf(&b, "[^%d]", n)
			}
		}
	}
	b.WriteString("\n")

	if len(footnotes) > 0 {
		b.WriteString("\n")
		for _, fn := range footnotes {
			b.WriteString(fn + "\n")
		}
	}
	if len(orphaned) > 0 {
		b.WriteString("\n## Unanchored notes\n\n")
		for _, a := range orphaned {
			fmt.Fprintf(&b, "- %s: %s\n", authors[a.UserID], singleLine(a.Body))
		}
	}

	return &Result{
		Data:     []byte(b.String()),
		Filename: sanitizeFilename(doc.Title) + ".md",
		MimeType: "text/markdown; charset=utf-8",
	}, nil
}

// singleLine collapses whitespace so a note body cannot break out of
// its footnote definition.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
