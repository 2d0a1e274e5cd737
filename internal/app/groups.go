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

// CreateGroup starts a group owned by the caller. Ownership is not a
// membership row; the owner writes, members read.
func (s *Service) CreateGroup(ctx context.Context, userID, name string) (store.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Group{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "group name is required", nil)
	}
	group := store.Group{ID: util.NewID("grp"), Name: name, UserID: userID}
	if err := s.store.InsertGroup(ctx, group); err != nil {
		return store.Group{}, fmt.Errorf("insert group: %w", err)
	}
	return group, nil
}

// ListGroups returns the groups the user owns or belongs to.
func (s *Service) ListGroups(ctx context.Context, userID string) ([]store.Group, error) {
	return s.store.ListGroupsForUser(ctx, userID)
}

// GroupView is a group with its roster and reading list resolved.
type GroupView struct {
	Group     store.Group
	Members   []store.User
	Documents []store.Document
}

// GetGroupView returns the group's members and linked documents.
// Members and the owner may look; outsiders get a denial.
func (s *Service) GetGroupView(ctx context.Context, userID, groupID string) (*GroupView, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fetchErr("group", err)
	}
	if err := s.require(ctx, userID, access.TypeGroup, groupID, access.LevelRead); err != nil {
		return nil, err
	}
	members, err := s.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	for i := range members {
		members[i].PasswordHash = ""
	}
	documents, err := s.store.ListGroupDocuments(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group documents: %w", err)
	}
	return &GroupView{Group: group, Members: members, Documents: documents}, nil
}

// RenameGroup renames a group, owner only.
func (s *Service) RenameGroup(ctx context.Context, userID, groupID, name string) (store.Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return store.Group{}, fetchErr("group", err)
	}
	if err := s.require(ctx, userID, access.TypeGroup, groupID, access.LevelWrite); err != nil {
		return store.Group{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Group{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "group name is required", nil)
	}
	if err := s.store.RenameGroup(ctx, groupID, name); err != nil {
		return store.Group{}, fmt.Errorf("rename group: %w", err)
	}
	group.Name = name
	return group, nil
}

// DeleteGroup removes the group, its membership, its document links,
// and any grants held through it.
func (s *Service) DeleteGroup(ctx context.Context, userID, groupID string) error {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return fetchErr("group", err)
	}
	if err := s.require(ctx, userID, access.TypeGroup, groupID, access.LevelWrite); err != nil {
		return err
	}
	if err := s.store.DeleteGroup(ctx, groupID); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

// AddGroupMember adds a user to the roster and tells them by mail when
// SMTP is configured. Adding an existing member is a no-op.
func (s *Service) AddGroupMember(ctx context.Context, userID, groupID, memberID string) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return fetchErr("group", err)
	}
	if err := s.require(ctx, userID, access.TypeGroup, groupID, access.LevelWrite); err != nil {
		return err
	}
	member, err := s.store.GetUserByID(ctx, memberID)
	if err != nil {
		return fetchErr("user", err)
	}
	if err := s.store.AddGroupMember(ctx, groupID, memberID); err != nil {
		return fmt.Errorf("add group member: %w", err)
	}

	if s.email.IsConfigured() && member.Email != "" {
		if inviter, err := s.store.GetUserByID(ctx, userID); err == nil {
			if err := s.email.SendGroupInviteNotification(member.Email, member.Name, inviter.Name, group.Name); err != nil {
				log.Printf("app: group invite mail to %s: %v", member.Email, err)
			}
		}
	}
	return nil
}

// RemoveGroupMember drops a member. Members may remove themselves;
// removing anyone else is the owner's call.
func (s *Service) RemoveGroupMember(ctx context.Context, userID, groupID, memberID string) error {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return fetchErr("group", err)
	}
	if userID != memberID {
		if err := s.require(ctx, userID, access.TypeGroup, groupID, access.LevelWrite); err != nil {
			return err
		}
	}
	if err := s.store.RemoveGroupMember(ctx, groupID, memberID); err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}

// AddDocumentToGroup links a document into the group's reading list
// and grants the group read on it. The link feeds the collaborator
// set; the grant keeps the permission table authoritative for level
// lookups. Sharing a document into a group needs admin on the
// document and ownership of the group.
func (s *Service) AddDocumentToGroup(ctx context.Context, userID, groupID, documentID string) error {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return fetchErr("group", err)
	}
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return fetchErr("document", err)
	}
	if err := s.require(ctx, userID, access.TypeGroup, groupID, access.LevelWrite); err != nil {
		return err
	}
	if err := s.require(ctx, userID, access.TypeDocument, documentID, access.LevelAdmin); err != nil {
		return err
	}
	if err := s.store.AddGroupDocument(ctx, groupID, documentID); err != nil {
		return fmt.Errorf("add group document: %w", err)
	}
	if err := s.store.UpsertPermission(ctx, store.Permission{
		ID:            util.NewID("perm"),
		ResourceType:  string(access.TypeDocument),
		ResourceID:    documentID,
		PrincipalType: access.PrincipalGroup,
		PrincipalID:   groupID,
		Level:         string(access.LevelRead),
		GrantedBy:     userID,
	}); err != nil {
		return fmt.Errorf("grant group read: %w", err)
	}
	return nil
}

// RemoveDocumentFromGroup unlinks the document and revokes the group's
// grant on it, whatever level the grant had grown to.
func (s *Service) RemoveDocumentFromGroup(ctx context.Context, userID, groupID, documentID string) error {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return fetchErr("group", err)
	}
	if err := s.require(ctx, userID, access.TypeGroup, groupID, access.LevelWrite); err != nil {
		return err
	}
	if err := s.store.RemoveGroupDocument(ctx, groupID, documentID); err != nil {
		return fmt.Errorf("remove group document: %w", err)
	}
	if _, err := s.store.DeletePermission(ctx, string(access.TypeDocument), documentID, access.PrincipalGroup, groupID); err != nil {
		return fmt.Errorf("revoke group grant: %w", err)
	}
	return nil
}
