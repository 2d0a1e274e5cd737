package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"margin/api/internal/access"
	"margin/api/internal/export"
	"margin/api/internal/highlight"
	"margin/api/internal/search"
	"margin/api/internal/store"
	"margin/api/internal/textrepo"
	"margin/api/internal/util"
)

// CreateDocumentInput carries a new document. URL and Text are
// alternatives: a URL queues a crawl, pasted text is usable at once.
// When both are set the crawl replaces the pasted text.
type CreateDocumentInput struct {
	URL   string
	Title string
	Text  string
}

// CreateDocument stores a document and makes the caller its owner. The
// owner link and the admin grant are written together: the resolver
// honors either, and the pair keeps listing and sharing queries simple.
func (s *Service) CreateDocument(ctx context.Context, userID string, input CreateDocumentInput) (store.Document, error) {
	rawURL := strings.TrimSpace(input.URL)
	title := strings.TrimSpace(input.Title)
	text := input.Text
	if rawURL == "" && strings.TrimSpace(text) == "" {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "a url or pasted text is required", nil)
	}
	if rawURL != "" {
		parsed, err := url.Parse(rawURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return store.Document{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "url must be http or https", nil)
		}
	}
	if title == "" {
		title = rawURL
	}
	if title == "" {
		title = "Untitled"
	}

	doc := store.Document{
		ID:          util.NewID("doc"),
		URL:         rawURL,
		Title:       title,
		TextContent: text,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return store.Document{}, fmt.Errorf("insert document: %w", err)
	}
	if err := s.store.UpsertUserDocument(ctx, store.UserDocument{
		UserID:     userID,
		DocumentID: doc.ID,
		Role:       access.RoleOwner,
	}); err != nil {
		return store.Document{}, fmt.Errorf("link owner: %w", err)
	}
	if err := s.store.UpsertPermission(ctx, store.Permission{
		ID:            util.NewID("perm"),
		ResourceType:  string(access.TypeDocument),
		ResourceID:    doc.ID,
		PrincipalType: access.PrincipalUser,
		PrincipalID:   userID,
		Level:         string(access.LevelAdmin),
		GrantedBy:     userID,
	}); err != nil {
		return store.Document{}, fmt.Errorf("grant owner admin: %w", err)
	}

	if strings.TrimSpace(text) != "" {
		s.snapshotText(ctx, doc.ID, text, userID, "Import pasted text")
		s.search.IndexDocument(search.DocumentRecord{ID: doc.ID, Title: doc.Title, URL: doc.URL, Text: text})
	}
	return doc, nil
}

// ListDocuments returns the documents the user can read: owned, linked,
// granted, reachable through a group, and the legacy world-readable
// ones when that fallback is on.
func (s *Service) ListDocuments(ctx context.Context, userID string) ([]store.Document, error) {
	return s.store.ListDocumentsForUser(ctx, userID, s.cfg.LegacyWorldReadable)
}

// AnnotationView is an annotation with its visible comments attached.
type AnnotationView struct {
	store.Annotation
	Comments []store.Comment
}

// DocumentView is everything a reader needs to render a document: the
// text split into highlight segments, the annotations the viewer may
// see with their comments, the document's chats, and the authors
// behind all of them.
type DocumentView struct {
	Document    store.Document
	Segments    []highlight.Segment
	Annotations []AnnotationView
	Chats       []store.Chat
	Authors     []store.User
}

// GetDocumentView assembles the reading view. Annotations, comments,
// and chats are all filtered through the per-document collaborator
// set before anything is painted.
func (s *Service) GetDocumentView(ctx context.Context, userID, documentID string) (*DocumentView, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fetchErr("document", err)
	}
	if err := s.require(ctx, userID, access.TypeDocument, documentID, access.LevelRead); err != nil {
		return nil, err
	}

	collaborators, err := s.resolver.VisibleAnnotationAuthors(ctx, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("build collaborator set: %w", err)
	}

	all, err := s.store.ListDocumentAnnotations(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}

	authorIDs := map[string]struct{}{}
	visible := make([]AnnotationView, 0, len(all))
	ranges := make([]highlight.Range, 0, len(all))
	for _, a := range all {
		if !access.AnnotationVisible(userID, a.UserID, a.Visibility, collaborators) {
			continue
		}
		comments, err := s.store.ListAnnotationComments(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		kept := make([]store.Comment, 0, len(comments))
		for _, c := range comments {
			if access.AnnotationVisible(userID, c.UserID, c.Visibility, collaborators) {
				kept = append(kept, c)
				authorIDs[c.UserID] = struct{}{}
			}
		}
		visible = append(visible, AnnotationView{Annotation: a, Comments: kept})
		authorIDs[a.UserID] = struct{}{}
		// Orphaned annotations sit at the zero-length range and are
		// listed but never painted.
		if a.EndOffset > a.StartOffset {
			ranges = append(ranges, highlight.Range{Start: a.StartOffset, End: a.EndOffset, AnnotationID: a.ID})
		}
	}

	chats, err := s.store.ListDocumentChats(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	// Chats follow the same visibility rule annotations do.
	keptChats := make([]store.Chat, 0, len(chats))
	for _, c := range chats {
		if access.AnnotationVisible(userID, c.UserID, c.Visibility, collaborators) {
			keptChats = append(keptChats, c)
			authorIDs[c.UserID] = struct{}{}
		}
	}

	surface := highlight.Flatten([]highlight.Run{{ID: doc.ID, Text: doc.TextContent}})
	segments := highlight.Paint(surface, ranges)

	authors, err := s.lookupAuthors(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	return &DocumentView{
		Document:    doc,
		Segments:    segments,
		Annotations: visible,
		Chats:       keptChats,
		Authors:     authors,
	}, nil
}

// UpdateDocumentTitle renames a document.
func (s *Service) UpdateDocumentTitle(ctx context.Context, userID, documentID, title string) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, fetchErr("document", err)
	}
	if err := s.require(ctx, userID, access.TypeDocument, documentID, access.LevelWrite); err != nil {
		return store.Document{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "title is required", nil)
	}
	if err := s.store.UpdateDocumentTitle(ctx, documentID, title); err != nil {
		return store.Document{}, fmt.Errorf("update title: %w", err)
	}
	doc.Title = title
	s.search.IndexDocument(search.DocumentRecord{ID: doc.ID, Title: doc.Title, URL: doc.URL, Text: doc.TextContent})
	return doc, nil
}

// UpdateDocumentText replaces the document's text with an edited
// version and re-anchors every annotation against the new surface.
func (s *Service) UpdateDocumentText(ctx context.Context, userID, documentID, text string) (*DocumentView, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fetchErr("document", err)
	}
	if err := s.require(ctx, userID, access.TypeDocument, documentID, access.LevelWrite); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "validation_failed", "text is required", nil)
	}
	surface := highlight.Flatten([]highlight.Run{{ID: doc.ID, Text: text}})
	if err := s.applyNewText(ctx, doc, "", surface, userID, "Edit text"); err != nil {
		return nil, err
	}
	return s.GetDocumentView(ctx, userID, documentID)
}

// RecrawlDocument fetches the document's URL again and applies the new
// text. Annotations are re-anchored rather than discarded.
func (s *Service) RecrawlDocument(ctx context.Context, userID, documentID string) (*DocumentView, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fetchErr("document", err)
	}
	if err := s.require(ctx, userID, access.TypeDocument, documentID, access.LevelWrite); err != nil {
		return nil, err
	}
	if doc.URL == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "validation_failed", "document has no url to crawl", nil)
	}
	page, err := s.crawler.Fetch(ctx, doc.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", doc.URL, err)
	}
	if err := s.applyNewText(ctx, doc, page.Title, highlight.Flatten(page.Runs), userID, "Recrawl "+doc.URL); err != nil {
		return nil, err
	}
	return s.GetDocumentView(ctx, userID, documentID)
}

// ProcessCrawlQueue fetches up to limit documents whose URL has never
// been crawled. Fetch failures leave the document pending so the next
// sweep retries it. Returns the number of documents whose text was
// applied.
func (s *Service) ProcessCrawlQueue(ctx context.Context, limit int) (int, error) {
	pending, err := s.store.ListPendingCrawls(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending crawls: %w", err)
	}
	done := 0
	for _, doc := range pending {
		page, err := s.crawler.Fetch(ctx, doc.URL)
		if err != nil {
			log.Printf("app: crawl %s: %v", doc.URL, err)
			continue
		}
		if err := s.applyNewText(ctx, doc, page.Title, highlight.Flatten(page.Runs), "", "Crawl "+doc.URL); err != nil {
			log.Printf("app: apply crawl %s: %v", doc.ID, err)
			continue
		}
		done++
	}
	return done, nil
}

// DeleteDocument removes the document and everything hanging off it.
// The relational cascade drops annotations, comments, chats, links,
// and grants; the search index is cleaned afterwards.
func (s *Service) DeleteDocument(ctx context.Context, userID, documentID string) error {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return fetchErr("document", err)
	}
	if err := s.require(ctx, userID, access.TypeDocument, documentID, access.LevelAdmin); err != nil {
		return err
	}
	annotations, err := s.store.ListDocumentAnnotations(ctx, documentID)
	if err != nil {
		return fmt.Errorf("list annotations: %w", err)
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.search.DeleteDocument(documentID)
	for _, a := range annotations {
		s.search.DeleteAnnotation(a.ID)
	}
	return nil
}

// ExportDocument renders the document for download. The exporter gets
// the same collaborator set the document view uses, so an export never
// shows more than the screen does.
func (s *Service) ExportDocument(ctx context.Context, userID, documentID string, format export.Format, includeNotes bool) (*export.Result, error) {
	switch format {
	case export.FormatHTML, export.FormatPDF, export.FormatMarkdown:
	default:
		return nil, domainError(http.StatusUnprocessableEntity, "validation_failed", "format must be html, pdf, or markdown", nil)
	}
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, fetchErr("document", err)
	}
	if err := s.require(ctx, userID, access.TypeDocument, documentID, access.LevelRead); err != nil {
		return nil, err
	}
	collaborators, err := s.resolver.VisibleAnnotationAuthors(ctx, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("build collaborator set: %w", err)
	}
	result, err := s.exporter.Export(ctx, export.Request{
		DocumentID:    documentID,
		ViewerID:      userID,
		Format:        format,
		Collaborators: collaborators,
		IncludeNotes:  includeNotes,
	})
	if errors.Is(err, export.ErrContentUnavailable) {
		return nil, domainError(http.StatusConflict, "conflict", "document has no text to export yet", nil)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DocumentHistory lists the document's text snapshots, newest first.
func (s *Service) DocumentHistory(ctx context.Context, userID, documentID string, limit int) ([]textrepo.Version, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, fetchErr("document", err)
	}
	if err := s.require(ctx, userID, access.TypeDocument, documentID, access.LevelRead); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.texts.History(documentID, limit)
}

// DocumentVersion returns the text stored at one snapshot, by full or
// abbreviated hash.
func (s *Service) DocumentVersion(ctx context.Context, userID, documentID, hash string) (string, textrepo.Version, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return "", textrepo.Version{}, fetchErr("document", err)
	}
	if err := s.require(ctx, userID, access.TypeDocument, documentID, access.LevelRead); err != nil {
		return "", textrepo.Version{}, err
	}
	text, version, err := s.texts.GetVersion(documentID, hash)
	if err != nil {
		return "", textrepo.Version{}, domainError(http.StatusNotFound, "not_found", "version not found", nil)
	}
	return text, version, nil
}

// applyNewText persists a new text surface: the row update, the
// history snapshot, annotation re-anchoring, and the search index, in
// that order. title replaces the stored title only when non-empty.
func (s *Service) applyNewText(ctx context.Context, doc store.Document, title string, surface *highlight.Surface, authorID, message string) error {
	if err := s.store.UpdateDocumentContent(ctx, doc.ID, title, surface.Text); err != nil {
		return fmt.Errorf("update document content: %w", err)
	}
	s.snapshotText(ctx, doc.ID, surface.Text, authorID, message)
	if err := s.reanchorAnnotations(ctx, doc.ID, surface); err != nil {
		return err
	}
	if title == "" {
		title = doc.Title
	}
	s.search.IndexDocument(search.DocumentRecord{ID: doc.ID, Title: title, URL: doc.URL, Text: surface.Text})
	return nil
}

// reanchorAnnotations relocates every annotation on a new surface
// using its stored quote and context. Relocated annotations get fresh
// context captured around the new position; quotes that no longer
// occur anywhere collapse to the zero-length orphan range and keep
// their old context so a later revision can pick them back up.
func (s *Service) reanchorAnnotations(ctx context.Context, documentID string, surface *highlight.Surface) error {
	annotations, err := s.store.ListDocumentAnnotations(ctx, documentID)
	if err != nil {
		return fmt.Errorf("list annotations: %w", err)
	}
	for _, a := range annotations {
		if a.Quote == "" {
			continue
		}
		start, end, found := highlight.Anchor(surface, a.Quote, a.Prefix, a.Suffix, a.StartOffset)
		if !found {
			if a.StartOffset == 0 && a.EndOffset == 0 {
				continue
			}
			if err := s.store.UpdateAnnotationAnchor(ctx, a.ID, 0, 0, a.Quote, a.Prefix, a.Suffix); err != nil {
				return fmt.Errorf("orphan annotation %s: %w", a.ID, err)
			}
			continue
		}
		quote, prefix, suffix := highlight.Context(surface, start, end)
		if err := s.store.UpdateAnnotationAnchor(ctx, a.ID, start, end, quote, prefix, suffix); err != nil {
			return fmt.Errorf("reanchor annotation %s: %w", a.ID, err)
		}
	}
	return nil
}

// snapshotText commits document text to the history repo. History is
// best-effort: a failed commit is logged, never surfaced.
func (s *Service) snapshotText(ctx context.Context, documentID, text, authorID, message string) {
	author := "margin"
	if authorID != "" {
		if user, err := s.store.GetUserByID(ctx, authorID); err == nil {
			author = user.Name
		}
	}
	if _, err := s.texts.Snapshot(documentID, text, author, message); err != nil {
		log.Printf("app: snapshot %s: %v", documentID, err)
	}
}
