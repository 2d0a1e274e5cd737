package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"margin/api/internal/access"
	"margin/api/internal/highlight"
	"margin/api/internal/search"
	"margin/api/internal/store"
	"margin/api/internal/util"
)

// defaultVisibility is what annotations and comments get when the
// caller does not choose: visible to collaborators, not the world.
const defaultVisibility = "shared"

var validVisibilities = map[string]bool{
	"private": true,
	"shared":  true,
	"public":  true,
}

// CreateAnnotationInput carries a new annotation. Start and End index
// the document's flattened text as a half-open range.
type CreateAnnotationInput struct {
	DocumentID string
	Start      int
	End        int
	Body       string
	Visibility string
}

// CreateAnnotation anchors a highlight on a document. Reading the
// document is enough to annotate it; the annotation lives in the
// creator's own layer at the chosen visibility. Quote and context are
// captured server-side from the stored text so re-anchoring never
// depends on what a client sent.
func (s *Service) CreateAnnotation(ctx context.Context, userID string, input CreateAnnotationInput) (store.Annotation, error) {
	doc, err := s.store.GetDocument(ctx, input.DocumentID)
	if err != nil {
		return store.Annotation{}, fetchErr("document", err)
	}
	if err := s.require(ctx, userID, access.TypeDocument, input.DocumentID, access.LevelRead); err != nil {
		return store.Annotation{}, err
	}

	visibility := input.Visibility
	if visibility == "" {
		visibility = defaultVisibility
	}
	if !validVisibilities[visibility] {
		return store.Annotation{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "visibility must be private, shared, or public", nil)
	}
	if input.Start < 0 || input.End <= input.Start || input.End > len(doc.TextContent) {
		return store.Annotation{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "annotation range is out of bounds", map[string]any{
			"start":  input.Start,
			"end":    input.End,
			"length": len(doc.TextContent),
		})
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.Annotation{}, fetchErr("user", err)
	}

	surface := highlight.Flatten([]highlight.Run{{ID: doc.ID, Text: doc.TextContent}})
	quote, prefix, suffix := highlight.Context(surface, input.Start, input.End)

	annotation := store.Annotation{
		ID:          util.NewID("ann"),
		DocumentID:  doc.ID,
		UserID:      userID,
		StartOffset: input.Start,
		EndOffset:   input.End,
		Quote:       quote,
		Prefix:      prefix,
		Suffix:      suffix,
		Body:        strings.TrimSpace(input.Body),
		Color:       user.Color,
		Visibility:  visibility,
	}
	if err := s.store.InsertAnnotation(ctx, annotation); err != nil {
		return store.Annotation{}, fmt.Errorf("insert annotation: %w", err)
	}
	s.indexAnnotation(annotation)
	return annotation, nil
}

// UpdateAnnotationInput carries annotation edits. Nil fields keep
// their current values; an empty body clears the note.
type UpdateAnnotationInput struct {
	Body       *string
	Color      *string
	Visibility *string
}

// UpdateAnnotation edits an annotation's note, color, or visibility.
// Only the creator may edit; sharing grants never extend to rewriting
// someone else's words.
func (s *Service) UpdateAnnotation(ctx context.Context, userID, annotationID string, input UpdateAnnotationInput) (store.Annotation, error) {
	annotation, err := s.store.GetAnnotation(ctx, annotationID)
	if err != nil {
		return store.Annotation{}, fetchErr("annotation", err)
	}
	if annotation.UserID != userID {
		return store.Annotation{}, domainError(http.StatusForbidden, "forbidden", "only the annotation's creator can edit it", nil)
	}
	if input.Body != nil {
		annotation.Body = strings.TrimSpace(*input.Body)
	}
	if input.Color != nil {
		annotation.Color = *input.Color
	}
	if input.Visibility != nil {
		if !validVisibilities[*input.Visibility] {
			return store.Annotation{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "visibility must be private, shared, or public", nil)
		}
		annotation.Visibility = *input.Visibility
	}
	if err := s.store.UpdateAnnotation(ctx, annotationID, annotation.Body, annotation.Color, annotation.Visibility); err != nil {
		return store.Annotation{}, fmt.Errorf("update annotation: %w", err)
	}
	s.indexAnnotation(annotation)
	return annotation, nil
}

// DeleteAnnotation removes an annotation and its comments. Write on
// the annotation covers the creator and explicit write grantees;
// document admins do not inherit it.
func (s *Service) DeleteAnnotation(ctx context.Context, userID, annotationID string) error {
	if _, err := s.store.GetAnnotation(ctx, annotationID); err != nil {
		return fetchErr("annotation", err)
	}
	if err := s.require(ctx, userID, access.TypeAnnotation, annotationID, access.LevelWrite); err != nil {
		return err
	}
	if err := s.store.DeleteAnnotation(ctx, annotationID); err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	s.search.DeleteAnnotation(annotationID)
	return nil
}

// CreateCommentInput carries a reply to an annotation.
type CreateCommentInput struct {
	AnnotationID string
	Body         string
	Visibility   string
}

// CreateComment replies to an annotation. Anyone who can read the
// annotation can comment on it.
func (s *Service) CreateComment(ctx context.Context, userID string, input CreateCommentInput) (store.Comment, error) {
	if _, err := s.store.GetAnnotation(ctx, input.AnnotationID); err != nil {
		return store.Comment{}, fetchErr("annotation", err)
	}
	if err := s.require(ctx, userID, access.TypeAnnotation, input.AnnotationID, access.LevelRead); err != nil {
		return store.Comment{}, err
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return store.Comment{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "comment body is required", nil)
	}
	visibility := input.Visibility
	if visibility == "" {
		visibility = defaultVisibility
	}
	if !validVisibilities[visibility] {
		return store.Comment{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "visibility must be private, shared, or public", nil)
	}
	comment := store.Comment{
		ID:           util.NewID("cmt"),
		AnnotationID: input.AnnotationID,
		UserID:       userID,
		Body:         body,
		Visibility:   visibility,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return store.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return comment, nil
}

// UpdateCommentInput carries comment edits. Nil fields keep their
// current values.
type UpdateCommentInput struct {
	Body       *string
	Visibility *string
}

// UpdateComment edits a comment, creator only.
func (s *Service) UpdateComment(ctx context.Context, userID, commentID string, input UpdateCommentInput) (store.Comment, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return store.Comment{}, fetchErr("comment", err)
	}
	if comment.UserID != userID {
		return store.Comment{}, domainError(http.StatusForbidden, "forbidden", "only the comment's creator can edit it", nil)
	}
	if input.Body != nil {
		body := strings.TrimSpace(*input.Body)
		if body == "" {
			return store.Comment{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "comment body is required", nil)
		}
		comment.Body = body
	}
	if input.Visibility != nil {
		if !validVisibilities[*input.Visibility] {
			return store.Comment{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "visibility must be private, shared, or public", nil)
		}
		comment.Visibility = *input.Visibility
	}
	if err := s.store.UpdateComment(ctx, commentID, comment.Body, comment.Visibility); err != nil {
		return store.Comment{}, fmt.Errorf("update comment: %w", err)
	}
	return comment, nil
}

// DeleteComment removes a comment: the creator or an explicit write
// grant on the comment.
func (s *Service) DeleteComment(ctx context.Context, userID, commentID string) error {
	if _, err := s.store.GetComment(ctx, commentID); err != nil {
		return fetchErr("comment", err)
	}
	if err := s.require(ctx, userID, access.TypeComment, commentID, access.LevelWrite); err != nil {
		return err
	}
	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

func (s *Service) indexAnnotation(a store.Annotation) {
	s.search.IndexAnnotation(search.AnnotationRecord{
		ID:         a.ID,
		DocumentID: a.DocumentID,
		UserID:     a.UserID,
		Quote:      a.Quote,
		Body:       a.Body,
		Visibility: a.Visibility,
	})
}
