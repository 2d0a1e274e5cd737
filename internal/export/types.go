// Package export renders annotated documents to standalone HTML,
// printable PDF, and Markdown with footnote notes.
package export

import "errors"

// Format is the export output format.
type Format string

const (
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
)

// Request describes one export. Collaborators is the viewer's
// collaborator set for the document; annotations are filtered with it
// before rendering, so an export never shows highlights the viewer
// could not see on screen. IncludeNotes adds the note list (HTML) or
// footnotes (Markdown) for annotations that carry a body.
type Request struct {
	DocumentID    string
	ViewerID      string
	Format        Format
	Collaborators map[string]struct{}
	IncludeNotes  bool
}

// Result is the rendered artifact.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable means the document has no text yet, usually
	// because the crawler has not fetched its URL.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing means no chromium binary is on PATH.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
