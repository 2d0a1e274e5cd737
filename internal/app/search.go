package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"margin/api/internal/access"
	"margin/api/internal/search"
)

// SearchInput scopes a query. Type narrows hits to documents or
// annotations; DocumentID narrows to one document.
type SearchInput struct {
	Query      string
	Type       string
	DocumentID string
	Limit      int
	Offset     int
}

// Search runs the query through the search facade and drops every hit
// the viewer cannot read. Document hits need read on the document;
// annotation hits need that plus the same per-annotation visibility
// rule the document view applies. Total shrinks by the hits dropped
// from the returned page.
func (s *Service) Search(ctx context.Context, userID string, input SearchInput) (search.Response, error) {
	text := strings.TrimSpace(input.Query)
	if text == "" {
		return search.Response{Results: []search.Result{}}, nil
	}
	var filterType search.ResultType
	switch input.Type {
	case "":
	case string(search.ResultDocument), string(search.ResultAnnotation):
		filterType = search.ResultType(input.Type)
	default:
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "type must be document or annotation", nil)
	}
	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	resp := s.search.Search(search.Query{
		Text:             text,
		FilterType:       filterType,
		FilterDocumentID: input.DocumentID,
		Limit:            limit,
		Offset:           offset,
	})

	// Levels and collaborator sets are memoized per document for the
	// duration of one query; a page of annotation hits on the same
	// document costs one resolution.
	levels := map[string]access.Level{}
	collaborators := map[string]map[string]struct{}{}

	kept := make([]search.Result, 0, len(resp.Results))
	for _, hit := range resp.Results {
		switch hit.Type {
		case search.ResultDocument:
			level, err := s.cachedDocLevel(ctx, userID, hit.ID, levels)
			if err != nil {
				return search.Response{}, err
			}
			if level.AtLeast(access.LevelRead) {
				kept = append(kept, hit)
			}
		case search.ResultAnnotation:
			level, err := s.cachedDocLevel(ctx, userID, hit.DocumentID, levels)
			if err != nil {
				return search.Response{}, err
			}
			if !level.AtLeast(access.LevelRead) {
				continue
			}
			authors, err := s.cachedCollaborators(ctx, userID, hit.DocumentID, collaborators)
			if err != nil {
				return search.Response{}, err
			}
			if access.AnnotationVisible(userID, hit.UserID, hit.Visibility, authors) {
				kept = append(kept, hit)
			}
		}
	}

	resp.Total -= len(resp.Results) - len(kept)
	if resp.Total < 0 {
		resp.Total = 0
	}
	resp.Results = kept
	return resp, nil
}

func (s *Service) cachedDocLevel(ctx context.Context, userID, documentID string, cache map[string]access.Level) (access.Level, error) {
	if level, ok := cache[documentID]; ok {
		return level, nil
	}
	level, err := s.resolver.ComputeAccessLevel(ctx, userID, access.TypeDocument, documentID)
	if err != nil {
		return access.LevelNone, fmt.Errorf("resolve document level: %w", err)
	}
	cache[documentID] = level
	return level, nil
}

func (s *Service) cachedCollaborators(ctx context.Context, userID, documentID string, cache map[string]map[string]struct{}) (map[string]struct{}, error) {
	if authors, ok := cache[documentID]; ok {
		return authors, nil
	}
	authors, err := s.resolver.VisibleAnnotationAuthors(ctx, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("build collaborator set: %w", err)
	}
	cache[documentID] = authors
	return authors, nil
}
