package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"margin/api/internal/access"
	"margin/api/internal/store"
	"margin/api/internal/util"
)

// Groups are governed by ownership and membership alone, so they are
// not shareable; everything else is.
var shareableResources = map[string]bool{
	"document":   true,
	"annotation": true,
	"comment":    true,
	"chat":       true,
}

var grantLevels = map[string]bool{
	"read":  true,
	"write": true,
	"admin": true,
}

var grantPrincipals = map[string]bool{
	"user":  true,
	"group": true,
}

// ShareInput names a grant: a principal gains a level on a resource.
type ShareInput struct {
	ResourceType  string
	ResourceID    string
	PrincipalType string
	PrincipalID   string
	Level         string
}

// Share grants a principal access to a resource, upserting over any
// existing grant for the same pair. Documents are shared by their
// admins; annotations, comments, and chats by anyone holding write,
// which is their creator. User principals get a mail when SMTP is
// configured.
func (s *Service) Share(ctx context.Context, userID string, input ShareInput) (store.Permission, error) {
	if !shareableResources[input.ResourceType] {
		return store.Permission{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "resource type must be document, annotation, comment, or chat", nil)
	}
	if !grantPrincipals[input.PrincipalType] {
		return store.Permission{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "principal type must be user or group", nil)
	}
	if !grantLevels[input.Level] {
		return store.Permission{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "level must be read, write, or admin", nil)
	}

	var grantee store.User
	switch input.PrincipalType {
	case access.PrincipalUser:
		user, err := s.store.GetUserByID(ctx, input.PrincipalID)
		if err != nil {
			return store.Permission{}, fetchErr("user", err)
		}
		grantee = user
	case access.PrincipalGroup:
		if _, err := s.store.GetGroup(ctx, input.PrincipalID); err != nil {
			return store.Permission{}, fetchErr("group", err)
		}
	}

	title, err := s.resourceTitle(ctx, input.ResourceType, input.ResourceID)
	if err != nil {
		return store.Permission{}, err
	}
	if err := s.require(ctx, userID, access.ResourceType(input.ResourceType), input.ResourceID, sharingLevel(input.ResourceType)); err != nil {
		return store.Permission{}, err
	}

	grant := store.Permission{
		ID:            util.NewID("perm"),
		ResourceType:  input.ResourceType,
		ResourceID:    input.ResourceID,
		PrincipalType: input.PrincipalType,
		PrincipalID:   input.PrincipalID,
		Level:         input.Level,
		GrantedBy:     userID,
	}
	if err := s.store.UpsertPermission(ctx, grant); err != nil {
		return store.Permission{}, fmt.Errorf("upsert permission: %w", err)
	}

	if input.PrincipalType == access.PrincipalUser && s.email.IsConfigured() && grantee.Email != "" {
		if granter, err := s.store.GetUserByID(ctx, userID); err == nil {
			if err := s.email.SendShareNotification(grantee.Email, grantee.Name, granter.Name, input.ResourceType, title, input.Level); err != nil {
				log.Printf("app: share mail to %s: %v", grantee.Email, err)
			}
		}
	}
	return grant, nil
}

// Unshare revokes a grant. The same right that creates a grant removes
// it; revoking a grant that does not exist is a not_found.
func (s *Service) Unshare(ctx context.Context, userID, resourceType, resourceID, principalType, principalID string) error {
	if !shareableResources[resourceType] {
		return domainError(http.StatusUnprocessableEntity, "validation_failed", "resource type must be document, annotation, comment, or chat", nil)
	}
	if !grantPrincipals[principalType] {
		return domainError(http.StatusUnprocessableEntity, "validation_failed", "principal type must be user or group", nil)
	}
	if _, err := s.resourceTitle(ctx, resourceType, resourceID); err != nil {
		return err
	}
	if err := s.require(ctx, userID, access.ResourceType(resourceType), resourceID, sharingLevel(resourceType)); err != nil {
		return err
	}
	changed, err := s.store.DeletePermission(ctx, resourceType, resourceID, principalType, principalID)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if !changed {
		return domainError(http.StatusNotFound, "not_found", "grant not found", nil)
	}
	return nil
}

// ListPermissions returns the grants on a resource with principal
// names resolved, for the sharing dialog.
func (s *Service) ListPermissions(ctx context.Context, userID, resourceType, resourceID string) ([]store.PermissionWithPrincipal, error) {
	if !shareableResources[resourceType] {
		return nil, domainError(http.StatusUnprocessableEntity, "validation_failed", "resource type must be document, annotation, comment, or chat", nil)
	}
	if _, err := s.resourceTitle(ctx, resourceType, resourceID); err != nil {
		return nil, err
	}
	if err := s.require(ctx, userID, access.ResourceType(resourceType), resourceID, sharingLevel(resourceType)); err != nil {
		return nil, err
	}
	return s.store.ListResourcePermissions(ctx, resourceType, resourceID)
}

// ListAccessDenials returns recent denial audit rows, newest first.
// There is no user-level path to this; it exists for operators.
func (s *Service) ListAccessDenials(ctx context.Context, limit int) ([]store.AccessDenial, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListAccessDenials(ctx, limit)
}

// sharingLevel is the level needed to manage grants on a resource.
// Child resources cap inherited access at read, so write there means
// the creator or an explicitly trusted hand.
func sharingLevel(resourceType string) access.Level {
	if resourceType == string(access.TypeDocument) {
		return access.LevelAdmin
	}
	return access.LevelWrite
}

// resourceTitle names a resource for notifications: a document's
// title, an annotation's quote, a comment excerpt, a chat's title. It
// doubles as the existence check before a grant is written.
func (s *Service) resourceTitle(ctx context.Context, resourceType, resourceID string) (string, error) {
	switch resourceType {
	case string(access.TypeDocument):
		doc, err := s.store.GetDocument(ctx, resourceID)
		if err != nil {
			return "", fetchErr("document", err)
		}
		return doc.Title, nil
	case string(access.TypeAnnotation):
		annotation, err := s.store.GetAnnotation(ctx, resourceID)
		if err != nil {
			return "", fetchErr("annotation", err)
		}
		if annotation.Quote != "" {
			return excerpt(annotation.Quote), nil
		}
		return "an annotation", nil
	case string(access.TypeComment):
		comment, err := s.store.GetComment(ctx, resourceID)
		if err != nil {
			return "", fetchErr("comment", err)
		}
		return excerpt(comment.Body), nil
	case string(access.TypeChat):
		chat, err := s.store.GetChat(ctx, resourceID)
		if err != nil {
			return "", fetchErr("chat", err)
		}
		return chat.Title, nil
	}
	return "", domainError(http.StatusUnprocessableEntity, "validation_failed", "unknown resource type", nil)
}

// excerpt clips quoted text for mail subjects and cards.
func excerpt(s string) string {
	const max = 60
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "..."
}
