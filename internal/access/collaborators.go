package access

import (
	"context"
	"fmt"
)

// VisibleAnnotationAuthors builds the collaborator set for a document:
// the users whose shared (non-private) annotations the viewer may see.
// Shared groups are the intersection of the viewer's groups with the
// document's groups, where the document's groups come from both
// group-document links and group-principal grants. The set is rebuilt on
// every document read; nothing caches it.
func (r *Resolver) VisibleAnnotationAuthors(ctx context.Context, userID, documentID string) (map[string]struct{}, error) {
	userGroups, err := r.store.GetUserGroupIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user groups: %w", err)
	}
	docGroups, err := r.store.GetDocumentGroupIDs(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document groups: %w", err)
	}

	inUserGroups := make(map[string]struct{}, len(userGroups))
	for _, g := range userGroups {
		inUserGroups[g] = struct{}{}
	}

	authors := map[string]struct{}{userID: {}}
	for _, g := range docGroups {
		if _, shared := inUserGroups[g]; !shared {
			continue
		}
		members, err := r.store.GetGroupMembers(ctx, g)
		if err != nil {
			return nil, fmt.Errorf("get group members: %w", err)
		}
		for _, m := range members {
			authors[m] = struct{}{}
		}
		owner, ok, err := r.store.GetGroupOwner(ctx, g)
		if err != nil {
			return nil, fmt.Errorf("get group owner: %w", err)
		}
		if ok {
			authors[owner] = struct{}{}
		}
	}

	grantees, err := r.store.GetDocumentUserGrantees(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document grantees: %w", err)
	}
	for _, u := range grantees {
		authors[u] = struct{}{}
	}

	linked, err := r.store.GetDocumentLinkedUsers(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get linked users: %w", err)
	}
	for _, u := range linked {
		authors[u] = struct{}{}
	}

	return authors, nil
}

// AnnotationVisible decides whether a viewer sees one annotation given
// the document's collaborator set. Creators always see their own;
// public annotations are visible to anyone who can read the document;
// everything else shows only when the creator is a collaborator and the
// annotation is not private.
func AnnotationVisible(viewerID, creatorID, visibility string, collaborators map[string]struct{}) bool {
	if creatorID == viewerID {
		return true
	}
	if visibility == VisibilityPublic {
		return true
	}
	if visibility == VisibilityPrivate {
		return false
	}
	_, ok := collaborators[creatorID]
	return ok
}
