package access

import (
	"context"
	"fmt"
)

// Resource is the slice of a stored row the resolver needs: who created
// it, how visible it is, and where it hangs in the hierarchy. UserID is
// the group owner for groups and empty for documents (documents have no
// single creator). ParentID is the annotation ID for comments and the
// document ID for annotations and chats.
type Resource struct {
	Type       ResourceType
	ID         string
	UserID     string
	Visibility string
	ParentID   string
}

// Store is the read surface the resolver and collaborator builder need.
// Implementations return (nil, nil) from GetResource for absent rows;
// missing data is never an error at this layer.
type Store interface {
	GetResource(ctx context.Context, typ ResourceType, id string) (*Resource, error)
	GetDirectGrants(ctx context.Context, typ ResourceType, id, userID string, groupIDs []string) ([]Level, error)
	GetUserDocumentLink(ctx context.Context, userID, documentID string) (string, bool, error)
	CountPermissionRows(ctx context.Context, typ ResourceType, id string) (int, error)
	CountUserDocumentLinks(ctx context.Context, documentID string) (int, error)
	GetUserGroupIDs(ctx context.Context, userID string) ([]string, error)
	GetGroupMembers(ctx context.Context, groupID string) ([]string, error)
	GetGroupOwner(ctx context.Context, groupID string) (string, bool, error)
	GetDocumentGroupIDs(ctx context.Context, documentID string) ([]string, error)
	GetDocumentUserGrantees(ctx context.Context, documentID string) ([]string, error)
	GetDocumentLinkedUsers(ctx context.Context, documentID string) ([]string, error)
}

type Resolver struct {
	store Store

	// LegacyWorldReadable keeps documents that predate the permission
	// system readable by anyone: a document with zero permission rows
	// and zero user-document links resolves to read for every user.
	// Deployments that have backfilled ownership can turn this off.
	LegacyWorldReadable bool
}

func NewResolver(st Store) *Resolver {
	return &Resolver{store: st, LegacyWorldReadable: true}
}

// ComputeAccessLevel resolves the effective level a user holds on a
// resource. A missing resource resolves to none; an error means a store
// read failed, nothing else.
func (r *Resolver) ComputeAccessLevel(ctx context.Context, userID string, typ ResourceType, id string) (Level, error) {
	res, err := r.store.GetResource(ctx, typ, id)
	if err != nil {
		return LevelNone, fmt.Errorf("get %s %s: %w", typ, id, err)
	}
	if res == nil {
		return LevelNone, nil
	}

	switch typ {
	case TypeDocument:
		return r.documentLevel(ctx, userID, id)
	case TypeGroup:
		return r.groupLevel(ctx, userID, res)
	case TypeAnnotation, TypeComment, TypeChat:
		return r.childLevel(ctx, userID, res)
	default:
		return LevelNone, nil
	}
}

// documentLevel is the dedicated document path: direct grants win, then
// ownership links, then the legacy fallback. Documents have no creator
// column and no visibility flag, so the generic child path never applies.
func (r *Resolver) documentLevel(ctx context.Context, userID, documentID string) (Level, error) {
	direct, err := r.directLevel(ctx, userID, TypeDocument, documentID)
	if err != nil {
		return LevelNone, err
	}
	if direct != LevelNone {
		return direct, nil
	}

	role, linked, err := r.store.GetUserDocumentLink(ctx, userID, documentID)
	if err != nil {
		return LevelNone, fmt.Errorf("get user document link: %w", err)
	}
	if linked {
		if role == RoleOwner {
			return LevelAdmin, nil
		}
		return LevelRead, nil
	}

	return r.legacyFallbackLevel(ctx, documentID)
}

// legacyFallbackLevel is the sole home of the pre-permission-era rule:
// a document nobody has been granted on and nobody is linked to is
// treated as world-readable. Kept behind LegacyWorldReadable so it can
// be switched off without touching the rest of the resolver.
func (r *Resolver) legacyFallbackLevel(ctx context.Context, documentID string) (Level, error) {
	if !r.LegacyWorldReadable {
		return LevelNone, nil
	}
	grants, err := r.store.CountPermissionRows(ctx, TypeDocument, documentID)
	if err != nil {
		return LevelNone, fmt.Errorf("count permission rows: %w", err)
	}
	links, err := r.store.CountUserDocumentLinks(ctx, documentID)
	if err != nil {
		return LevelNone, fmt.Errorf("count user document links: %w", err)
	}
	if grants == 0 && links == 0 {
		return LevelRead, nil
	}
	return LevelNone, nil
}

// groupLevel: owner writes, members read, nobody else sees the group.
// Groups inherit from nothing.
func (r *Resolver) groupLevel(ctx context.Context, userID string, res *Resource) (Level, error) {
	if res.UserID != "" && res.UserID == userID {
		return LevelWrite, nil
	}
	members, err := r.store.GetGroupMembers(ctx, res.ID)
	if err != nil {
		return LevelNone, fmt.Errorf("get group members: %w", err)
	}
	for _, m := range members {
		if m == userID {
			return LevelRead, nil
		}
	}
	return LevelNone, nil
}

// childLevel handles annotations, comments, and chats: creator rights,
// then the private wall, then direct grants, then read-capped
// inheritance from the parent.
func (r *Resolver) childLevel(ctx context.Context, userID string, res *Resource) (Level, error) {
	if res.UserID != "" && res.UserID == userID {
		return LevelWrite, nil
	}
	if res.Visibility == VisibilityPrivate {
		return LevelNone, nil
	}

	direct, err := r.directLevel(ctx, userID, res.Type, res.ID)
	if err != nil {
		return LevelNone, err
	}
	if direct != LevelNone {
		return direct, nil
	}

	ptype, ok := parentType(res.Type)
	if !ok || res.ParentID == "" {
		return LevelNone, nil
	}
	parent, err := r.ComputeAccessLevel(ctx, userID, ptype, res.ParentID)
	if err != nil {
		return LevelNone, err
	}
	if parent.AtLeast(LevelRead) {
		return LevelRead, nil
	}
	return LevelNone, nil
}

// directLevel is the maximum across explicit grants to the user and to
// any group the user owns or belongs to.
func (r *Resolver) directLevel(ctx context.Context, userID string, typ ResourceType, id string) (Level, error) {
	groupIDs, err := r.store.GetUserGroupIDs(ctx, userID)
	if err != nil {
		return LevelNone, fmt.Errorf("get user groups: %w", err)
	}
	grants, err := r.store.GetDirectGrants(ctx, typ, id, userID, groupIDs)
	if err != nil {
		return LevelNone, fmt.Errorf("get direct grants: %w", err)
	}
	level := LevelNone
	for _, g := range grants {
		level = MaxLevel(level, g)
	}
	return level, nil
}
