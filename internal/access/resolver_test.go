package access

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	getResourceFn             func(context.Context, ResourceType, string) (*Resource, error)
	getDirectGrantsFn         func(context.Context, ResourceType, string, string, []string) ([]Level, error)
	getUserDocumentLinkFn     func(context.Context, string, string) (string, bool, error)
	countPermissionRowsFn     func(context.Context, ResourceType, string) (int, error)
	countUserDocumentLinksFn  func(context.Context, string) (int, error)
	getUserGroupIDsFn         func(context.Context, string) ([]string, error)
	getGroupMembersFn         func(context.Context, string) ([]string, error)
	getGroupOwnerFn           func(context.Context, string) (string, bool, error)
	getDocumentGroupIDsFn     func(context.Context, string) ([]string, error)
	getDocumentUserGranteesFn func(context.Context, string) ([]string, error)
	getDocumentLinkedUsersFn  func(context.Context, string) ([]string, error)
}

func (f *fakeStore) GetResource(ctx context.Context, typ ResourceType, id string) (*Resource, error) {
	if f.getResourceFn != nil {
		return f.getResourceFn(ctx, typ, id)
	}
	return nil, nil
}
func (f *fakeStore) GetDirectGrants(ctx context.Context, typ ResourceType, id, userID string, groupIDs []string) ([]Level, error) {
	if f.getDirectGrantsFn != nil {
		return f.getDirectGrantsFn(ctx, typ, id, userID, groupIDs)
	}
	return nil, nil
}
func (f *fakeStore) GetUserDocumentLink(ctx context.Context, userID, documentID string) (string, bool, error) {
	if f.getUserDocumentLinkFn != nil {
		return f.getUserDocumentLinkFn(ctx, userID, documentID)
	}
	return "", false, nil
}
func (f *fakeStore) CountPermissionRows(ctx context.Context, typ ResourceType, id string) (int, error) {
	if f.countPermissionRowsFn != nil {
		return f.countPermissionRowsFn(ctx, typ, id)
	}
	return 0, nil
}
func (f *fakeStore) CountUserDocumentLinks(ctx context.Context, documentID string) (int, error) {
	if f.countUserDocumentLinksFn != nil {
		return f.countUserDocumentLinksFn(ctx, documentID)
	}
	return 0, nil
}
func (f *fakeStore) GetUserGroupIDs(ctx context.Context, userID string) ([]string, error) {
	if f.getUserGroupIDsFn != nil {
		return f.getUserGroupIDsFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) GetGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	if f.getGroupMembersFn != nil {
		return f.getGroupMembersFn(ctx, groupID)
	}
	return nil, nil
}
func (f *fakeStore) GetGroupOwner(ctx context.Context, groupID string) (string, bool, error) {
	if f.getGroupOwnerFn != nil {
		return f.getGroupOwnerFn(ctx, groupID)
	}
	return "", false, nil
}
func (f *fakeStore) GetDocumentGroupIDs(ctx context.Context, documentID string) ([]string, error) {
	if f.getDocumentGroupIDsFn != nil {
		return f.getDocumentGroupIDsFn(ctx, documentID)
	}
	return nil, nil
}
func (f *fakeStore) GetDocumentUserGrantees(ctx context.Context, documentID string) ([]string, error) {
	if f.getDocumentUserGranteesFn != nil {
		return f.getDocumentUserGranteesFn(ctx, documentID)
	}
	return nil, nil
}
func (f *fakeStore) GetDocumentLinkedUsers(ctx context.Context, documentID string) ([]string, error) {
	if f.getDocumentLinkedUsersFn != nil {
		return f.getDocumentLinkedUsersFn(ctx, documentID)
	}
	return nil, nil
}

// resourceTable wires getResourceFn from a literal map keyed by type+id.
func resourceTable(rows map[string]*Resource) func(context.Context, ResourceType, string) (*Resource, error) {
	return func(_ context.Context, typ ResourceType, id string) (*Resource, error) {
		return rows[string(typ)+"/"+id], nil
	}
}

func TestMissingResourceResolvesNone(t *testing.T) {
	r := NewResolver(&fakeStore{})
	for _, typ := range []ResourceType{TypeDocument, TypeAnnotation, TypeComment, TypeChat, TypeGroup} {
		level, err := r.ComputeAccessLevel(context.Background(), "usr_a", typ, "missing")
		if err != nil {
			t.Fatalf("ComputeAccessLevel(%s) error = %v", typ, err)
		}
		if level != LevelNone {
			t.Fatalf("expected none for missing %s, got %s", typ, level)
		}
	}
}

func TestCreatorAlwaysWrites(t *testing.T) {
	cases := []struct {
		typ        ResourceType
		visibility string
	}{
		{TypeAnnotation, VisibilityPrivate},
		{TypeAnnotation, VisibilityPublic},
		{TypeComment, VisibilityPrivate},
		{TypeChat, VisibilityPrivate},
	}
	for _, tc := range cases {
		fs := &fakeStore{
			getResourceFn: resourceTable(map[string]*Resource{
				string(tc.typ) + "/res_1": {Type: tc.typ, ID: "res_1", UserID: "usr_creator", Visibility: tc.visibility, ParentID: "doc_1"},
			}),
		}
		level, err := NewResolver(fs).ComputeAccessLevel(context.Background(), "usr_creator", tc.typ, "res_1")
		if err != nil {
			t.Fatalf("ComputeAccessLevel(%s) error = %v", tc.typ, err)
		}
		if level != LevelWrite {
			t.Fatalf("expected creator write on %s %s, got %s", tc.visibility, tc.typ, level)
		}
	}
}

func TestPrivateResourceHiddenFromOthers(t *testing.T) {
	// usr_b owns the parent document outright; the private annotation
	// must still resolve to none for them.
	fs := &fakeStore{
		getResourceFn: resourceTable(map[string]*Resource{
			"annotation/ann_1": {Type: TypeAnnotation, ID: "ann_1", UserID: "usr_a", Visibility: VisibilityPrivate, ParentID: "doc_1"},
			"document/doc_1":   {Type: TypeDocument, ID: "doc_1"},
		}),
		getUserDocumentLinkFn: func(_ context.Context, userID, documentID string) (string, bool, error) {
			if userID == "usr_b" && documentID == "doc_1" {
				return RoleOwner, true, nil
			}
			return "", false, nil
		},
	}
	level, err := NewResolver(fs).ComputeAccessLevel(context.Background(), "usr_b", TypeAnnotation, "ann_1")
	if err != nil {
		t.Fatalf("ComputeAccessLevel() error = %v", err)
	}
	if level != LevelNone {
		t.Fatalf("expected none for private annotation, got %s", level)
	}
}

func TestPrivateBlocksExplicitGrantees(t *testing.T) {
	// Visibility is checked before grants for child resources, so even
	// an explicit grant does not open a private annotation.
	fs := &fakeStore{
		getResourceFn: resourceTable(map[string]*Resource{
			"annotation/ann_1": {Type: TypeAnnotation, ID: "ann_1", UserID: "usr_a", Visibility: VisibilityPrivate, ParentID: "doc_1"},
		}),
		getDirectGrantsFn: func(_ context.Context, _ ResourceType, _ string, _ string, _ []string) ([]Level, error) {
			return []Level{LevelRead}, nil
		},
	}
	level, err := NewResolver(fs).ComputeAccessLevel(context.Background(), "usr_b", TypeAnnotation, "ann_1")
	if err != nil {
		t.Fatalf("ComputeAccessLevel() error = %v", err)
	}
	if level != LevelNone {
		t.Fatalf("expected none for grantee on private annotation, got %s", level)
	}
}

func TestInheritanceCapsAtRead(t *testing.T) {
	// usr_b has admin on the document via an owner link; their level on
	// somebody else's public annotation is read, never more.
	fs := &fakeStore{
		getResourceFn: resourceTable(map[string]*Resource{
			"annotation/ann_1": {Type: TypeAnnotation, ID: "ann_1", UserID: "usr_a", Visibility: VisibilityPublic, ParentID: "doc_1"},
			"document/doc_1":   {Type: TypeDocument, ID: "doc_1"},
		}),
		getUserDocumentLinkFn: func(_ context.Context, userID, _ string) (string, bool, error) {
			if userID == "usr_b" {
				return RoleOwner, true, nil
			}
			return "", false, nil
		},
	}
	r := NewResolver(fs)

	docLevel, err := r.ComputeAccessLevel(context.Background(), "usr_b", TypeDocument, "doc_1")
	if err != nil {
		t.Fatalf("ComputeAccessLevel(document) error = %v", err)
	}
	if docLevel != LevelAdmin {
		t.Fatalf("expected admin on owned document, got %s", docLevel)
	}

	annLevel, err := r.ComputeAccessLevel(context.Background(), "usr_b", TypeAnnotation, "ann_1")
	if err != nil {
		t.Fatalf("ComputeAccessLevel(annotation) error = %v", err)
	}
	if annLevel != LevelRead {
		t.Fatalf("expected inherited level capped at read, got %s", annLevel)
	}
}

func TestCommentInheritsThroughAnnotationChain(t *testing.T) {
	rows := map[string]*Resource{
		"comment/cmt_1":    {Type: TypeComment, ID: "cmt_1", UserID: "usr_a", Visibility: VisibilityPublic, ParentID: "ann_1"},
		"annotation/ann_1": {Type: TypeAnnotation, ID: "ann_1", UserID: "usr_a", Visibility: "", ParentID: "doc_1"},
		"document/doc_1":   {Type: TypeDocument, ID: "doc_1"},
	}
	fs := &fakeStore{
		getResourceFn: resourceTable(rows),
		getUserDocumentLinkFn: func(_ context.Context, userID, _ string) (string, bool, error) {
			if userID == "usr_b" {
				return RoleViewer, true, nil
			}
			return "", false, nil
		},
	}
	level, err := NewResolver(fs).ComputeAccessLevel(context.Background(), "usr_b", TypeComment, "cmt_1")
	if err != nil {
		t.Fatalf("ComputeAccessLevel() error = %v", err)
	}
	if level != LevelRead {
		t.Fatalf("expected read via comment->annotation->document chain, got %s", level)
	}

	// A private annotation in the middle of the chain shuts the comment off.
	rows["annotation/ann_1"].Visibility = VisibilityPrivate
	level, err = NewResolver(fs).ComputeAccessLevel(context.Background(), "usr_b", TypeComment, "cmt_1")
	if err != nil {
		t.Fatalf("ComputeAccessLevel() error = %v", err)
	}
	if level != LevelNone {
		t.Fatalf("expected none through private parent, got %s", level)
	}
}

func TestChatInheritsDocumentRead(t *testing.T) {
	fs := &fakeStore{
		getResourceFn: resourceTable(map[string]*Resource{
			"chat/cht_1":     {Type: TypeChat, ID: "cht_1", UserID: "usr_a", ParentID: "doc_1"},
			"document/doc_1": {Type: TypeDocument, ID: "doc_1"},
		}),
		getUserDocumentLinkFn: func(_ context.Context, userID, _ string) (string, bool, error) {
			if userID == "usr_b" {
				return RoleViewer, true, nil
			}
			return "", false, nil
		},
	}
	level, err := NewResolver(fs).ComputeAccessLevel(context.Background(), "usr_b", TypeChat, "cht_1")
	if err != nil {
		t.Fatalf("ComputeAccessLevel() error = %v", err)
	}
	if level != LevelRead {
		t.Fatalf("expected read on chat via document, got %s", level)
	}
}

func TestDocumentOwnerLinkGrantsAdmin(t *testing.T) {
	cases := []struct {
		role string
		want Level
	}{
		{RoleOwner, LevelAdmin},
		{RoleViewer, LevelRead},
		{"annotator", LevelRead}, // any link row at all reads
	}
	for _, tc := range cases {
		fs := &fakeStore{
			getResourceFn: resourceTable(map[string]*Resource{
				"document/doc_1": {Type: TypeDocument, ID: "doc_1"},
			}),
			getUserDocumentLinkFn: func(_ context.Context, _, _ string) (string, bool, error) {
				return tc.role, true, nil
			},
		}
		level, err := NewResolver(fs).ComputeAccessLevel(context.Background(), "usr_b", TypeDocument, "doc_1")
		if err != nil {
			t.Fatalf("ComputeAccessLevel(role=%s) error = %v", tc.role, err)
		}
		if level != tc.want {
			t.Fatalf("role %s: expected %s, got %s", tc.role, tc.want, level)
		}
	}
}

func TestDocumentDirectGrantPrecedesOwnerLink(t *testing.T) {
	// Direct grants are consulted first, so an explicit read grant
	// answers before the owner link would have escalated to admin.
	fs := &fakeStore{
		getResourceFn: resourceTable(map[string]*Resource{
			"document/doc_1": {Type: TypeDocument, ID: "doc_1"},
		}),
		getDirectGrantsFn: func(_ context.Context, _ ResourceType, _ string, _ string, _ []string) ([]Level, error) {
			return []Level{LevelRead}, nil
		},
		getUserDocumentLinkFn: func(_ context.Context, _, _ string) (string, bool, error) {
			return RoleOwner, true, nil
		},
	}
	level, err := NewResolver(fs).ComputeAccessLevel(context.Background(), "usr_b", TypeDocument, "doc_1")
	if err != nil {
		t.Fatalf("ComputeAccessLevel() error = %v", err)
	}
	if level != LevelRead {
		t.Fatalf("expected direct grant to answer first, got %s", level)
	}
}

func TestGroupGrantsTakeMaximum(t *testing.T) {
	fs := &fakeStore{
		getResourceFn: resourceTable(map[string]*Resource{
			"document/doc_1": {Type: TypeDocument, ID: "doc_1"},
		}),
		getUserGroupIDsFn: func(_ context.Context, userID string) ([]string, error) {
			if userID != "usr_b" {
				t.Fatalf("expected group lookup for usr_b, got %q", userID)
			}
			return []string{"grp_1", "grp_2"}, nil
		},
		getDirectGrantsFn: func(_ context.Context, _ ResourceType, _ string, userID string, groupIDs []string) ([]Level, error) {
			if len(groupIDs) != 2 {
				t.Fatalf("expected both groups passed to grant lookup, got %v", groupIDs)
			}
			return []Level{LevelRead, LevelWrite}, nil
		},
	}
	level, err := NewResolver(fs).ComputeAccessLevel(context.Background(), "usr_b", TypeDocument, "doc_1")
	if err != nil {
		t.Fatalf("ComputeAccessLevel() error = %v", err)
	}
	if level != LevelWrite {
		t.Fatalf("expected max of grants (write), got %s", level)
	}
}

func TestLegacyFallbackWorldReadable(t *testing.T) {
	fs := &fakeStore{
		getResourceFn: resourceTable(map[string]*Resource{
			"document/doc_old": {Type: TypeDocument, ID: "doc_old"},
		}),
	}

	r := NewResolver(fs)
	level, err := r.ComputeAccessLevel(context.Background(), "usr_stranger", TypeDocument, "doc_old")
	if err != nil {
		t.Fatalf("ComputeAccessLevel() error = %v", err)
	}
	if level != LevelRead {
		t.Fatalf("expected legacy document world-readable, got %s", level)
	}

	r.LegacyWorldReadable = false
	level, err = r.ComputeAccessLevel(context.Background(), "usr_stranger", TypeDocument, "doc_old")
	if err != nil {
		t.Fatalf("ComputeAccessLevel() error = %v", err)
	}
	if level != LevelNone {
		t.Fatalf("expected none with fallback disabled, got %s", level)
	}
}

func TestLegacyFallbackRequiresNoRowsAtAll(t *testing.T) {
	cases := []struct {
		name   string
		grants int
		links  int
	}{
		{"grant row present", 1, 0},
		{"link row present", 0, 1},
		{"both present", 2, 3},
	}
	for _, tc := range cases {
		fs := &fakeStore{
			getResourceFn: resourceTable(map[string]*Resource{
				"document/doc_1": {Type: TypeDocument, ID: "doc_1"},
			}),
			countPermissionRowsFn: func(context.Context, ResourceType, string) (int, error) {
				return tc.grants, nil
			},
			countUserDocumentLinksFn: func(context.Context, string) (int, error) {
				return tc.links, nil
			},
		}
		level, err := NewResolver(fs).ComputeAccessLevel(context.Background(), "usr_stranger", TypeDocument, "doc_1")
		if err != nil {
			t.Fatalf("%s: ComputeAccessLevel() error = %v", tc.name, err)
		}
		if level != LevelNone {
			t.Fatalf("%s: expected none, got %s", tc.name, level)
		}
	}
}

func TestGroupOwnerWritesMembersRead(t *testing.T) {
	fs := &fakeStore{
		getResourceFn: resourceTable(map[string]*Resource{
			"group/grp_1": {Type: TypeGroup, ID: "grp_1", UserID: "usr_owner"},
		}),
		getGroupMembersFn: func(_ context.Context, groupID string) ([]string, error) {
			return []string{"usr_member"}, nil
		},
	}
	r := NewResolver(fs)

	cases := []struct {
		userID string
		want   Level
	}{
		{"usr_owner", LevelWrite},
		{"usr_member", LevelRead},
		{"usr_stranger", LevelNone},
	}
	for _, tc := range cases {
		level, err := r.ComputeAccessLevel(context.Background(), tc.userID, TypeGroup, "grp_1")
		if err != nil {
			t.Fatalf("ComputeAccessLevel(%s) error = %v", tc.userID, err)
		}
		if level != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.userID, tc.want, level)
		}
	}
}

func TestStoreFailurePropagates(t *testing.T) {
	boom := errors.New("connection reset")
	fs := &fakeStore{
		getResourceFn: func(context.Context, ResourceType, string) (*Resource, error) {
			return nil, boom
		},
	}
	_, err := NewResolver(fs).ComputeAccessLevel(context.Background(), "usr_a", TypeDocument, "doc_1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
