package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"margin/api/internal/access"
	"margin/api/internal/highlight"
	"margin/api/internal/store"
)

// DataStore loads the pieces of a document view. Both relational
// backends satisfy it.
type DataStore interface {
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	ListDocumentAnnotations(ctx context.Context, documentID string) ([]store.Annotation, error)
	GetUsersByIDs(ctx context.Context, userIDs []string) ([]store.User, error)
}

// Service renders annotated documents into downloadable artifacts.
type Service struct {
	store DataStore
}

// NewService creates a new export service.
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format. The caller is
// expected to have checked read access on the document already; Export
// only applies per-annotation visibility.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	doc, err := s.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc.TextContent == "" {
		return nil, ErrContentUnavailable
	}

	all, err := s.store.ListDocumentAnnotations(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}

	anns := make([]store.Annotation, 0, len(all))
	for _, a := range all {
		if access.AnnotationVisible(req.ViewerID, a.UserID, a.Visibility, req.Collaborators) {
			anns = append(anns, a)
		}
	}

	authors, err := s.authorNames(ctx, anns)
	if err != nil {
		return nil, fmt.Errorf("load authors: %w", err)
	}

	surface := highlight.Flatten([]highlight.Run{{ID: doc.ID, Text: doc.TextContent}})
	ranges := make([]highlight.Range, 0, len(anns))
	for _, a := range anns {
		ranges = append(ranges, highlight.Range{Start: a.StartOffset, End: a.EndOffset, AnnotationID: a.ID})
	}
	segments := highlight.Paint(surface, ranges)

	switch req.Format {
	case FormatHTML:
		html, err := s.renderHTML(doc, anns, segments, authors, req.IncludeNotes)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(doc.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		html, err := s.renderHTML(doc, anns, segments, authors, req.IncludeNotes)
		if err != nil {
			return nil, err
		}
		return exportPDF(html, doc.Title)
	case FormatMarkdown:
		return exportMarkdown(doc, anns, segments, authors, req.IncludeNotes)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

// renderHTML builds template data from the painted segments and runs
// the document template.
func (s *Service) renderHTML(doc store.Document, anns []store.Annotation, segments []highlight.Segment, authors map[string]string, includeNotes bool) (string, error) {
	byID := make(map[string]store.Annotation, len(anns))
	for _, a := range anns {
		byID[a.ID] = a
	}

	data := TemplateData{
		Title:      doc.Title,
		URL:        doc.URL,
		ExportedAt: time.Now(),
	}

	for _, seg := range segments {
		ts := TemplateSegment{Text: seg.Text}
		if len(seg.AnnotationIDs) > 0 {
			ts.Marked = true
			ts.Tint = tint(byID[seg.Primary].Color)
			ts.IDs = strings.Join(seg.AnnotationIDs, ",")
		}
		data.Segments = append(data.Segments, ts)
	}

	if includeNotes {
		for _, a := range anns {
			if strings.TrimSpace(a.Body) == "" {
				continue
			}
			data.Notes = append(data.Notes, TemplateNote{
				Quote:     a.Quote,
				Body:      a.Body,
				Author:    authors[a.UserID],
				Color:     noteColor(a.Color),
				CreatedAt: a.CreatedAt,
			})
		}
	}

	return RenderDocumentHTML(data)
}

// authorNames resolves the display name of every annotation author.
func (s *Service) authorNames(ctx context.Context, anns []store.Annotation) (map[string]string, error) {
	seen := make(map[string]struct{}, len(anns))
	ids := make([]string, 0, len(anns))
	for _, a := range anns {
		if _, ok := seen[a.UserID]; ok {
			continue
		}
		seen[a.UserID] = struct{}{}
		ids = append(ids, a.UserID)
	}
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

// tint turns an annotation color into a translucent highlight tint by
// appending an alpha channel to the #rrggbb value.
func tint(color string) string {
	return noteColor(color) + "33"
}

func noteColor(color string) string {
	if len(color) == 7 && color[0] == '#' {
		return color
	}
	return "#f59e0b"
}
