package access

import (
	"context"
	"testing"
)

func TestVisibleAnnotationAuthorsSharedGroup(t *testing.T) {
	// usr_u owns grp_g; doc_d is linked to grp_g; usr_m is a member.
	// The collaborator set for usr_u must pick up usr_m and the owner.
	fs := &fakeStore{
		getUserGroupIDsFn: func(_ context.Context, userID string) ([]string, error) {
			if userID == "usr_u" {
				return []string{"grp_g"}, nil
			}
			return nil, nil
		},
		getDocumentGroupIDsFn: func(_ context.Context, documentID string) ([]string, error) {
			if documentID != "doc_d" {
				t.Fatalf("expected doc_d group lookup, got %q", documentID)
			}
			return []string{"grp_g", "grp_other"}, nil
		},
		getGroupMembersFn: func(_ context.Context, groupID string) ([]string, error) {
			if groupID == "grp_other" {
				t.Fatalf("grp_other is not shared, members must not be fetched")
			}
			return []string{"usr_m"}, nil
		},
		getGroupOwnerFn: func(_ context.Context, groupID string) (string, bool, error) {
			return "usr_u", true, nil
		},
	}
	authors, err := NewResolver(fs).VisibleAnnotationAuthors(context.Background(), "usr_u", "doc_d")
	if err != nil {
		t.Fatalf("VisibleAnnotationAuthors() error = %v", err)
	}
	for _, want := range []string{"usr_u", "usr_m"} {
		if _, ok := authors[want]; !ok {
			t.Fatalf("expected %s in collaborator set %v", want, authors)
		}
	}
	if _, ok := authors["usr_stranger"]; ok {
		t.Fatalf("unexpected stranger in collaborator set")
	}
}

func TestVisibleAuthorsIncludeGranteesAndLinkedUsers(t *testing.T) {
	fs := &fakeStore{
		getDocumentUserGranteesFn: func(_ context.Context, _ string) ([]string, error) {
			return []string{"usr_grantee"}, nil
		},
		getDocumentLinkedUsersFn: func(_ context.Context, _ string) ([]string, error) {
			return []string{"usr_linked"}, nil
		},
	}
	authors, err := NewResolver(fs).VisibleAnnotationAuthors(context.Background(), "usr_viewer", "doc_d")
	if err != nil {
		t.Fatalf("VisibleAnnotationAuthors() error = %v", err)
	}
	for _, want := range []string{"usr_viewer", "usr_grantee", "usr_linked"} {
		if _, ok := authors[want]; !ok {
			t.Fatalf("expected %s in collaborator set %v", want, authors)
		}
	}
}

func TestVisibleAuthorsMergeGrantSourcedGroups(t *testing.T) {
	// grp_g reaches the document only through a group-principal grant
	// (the store merges both sources into GetDocumentGroupIDs); members
	// still become collaborators.
	fs := &fakeStore{
		getUserGroupIDsFn: func(_ context.Context, _ string) ([]string, error) {
			return []string{"grp_g"}, nil
		},
		getDocumentGroupIDsFn: func(_ context.Context, _ string) ([]string, error) {
			return []string{"grp_g"}, nil
		},
		getGroupMembersFn: func(_ context.Context, _ string) ([]string, error) {
			return []string{"usr_m"}, nil
		},
	}
	authors, err := NewResolver(fs).VisibleAnnotationAuthors(context.Background(), "usr_u", "doc_d")
	if err != nil {
		t.Fatalf("VisibleAnnotationAuthors() error = %v", err)
	}
	if _, ok := authors["usr_m"]; !ok {
		t.Fatalf("expected grant-sourced group member in set %v", authors)
	}
}

func TestAnnotationVisible(t *testing.T) {
	collaborators := map[string]struct{}{
		"usr_viewer": {},
		"usr_collab": {},
	}
	cases := []struct {
		name       string
		creator    string
		visibility string
		want       bool
	}{
		{"own private annotation", "usr_viewer", VisibilityPrivate, true},
		{"foreign private annotation", "usr_collab", VisibilityPrivate, false},
		{"public by stranger", "usr_stranger", VisibilityPublic, true},
		{"shared by collaborator", "usr_collab", "", true},
		{"shared by stranger", "usr_stranger", "", false},
	}
	for _, tc := range cases {
		got := AnnotationVisible("usr_viewer", tc.creator, tc.visibility, collaborators)
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestPublicAnnotationVisibleToNonMembers(t *testing.T) {
	// The group scenario end to end: a public annotation by a group
	// member is visible even to a viewer outside every group.
	emptySet := map[string]struct{}{"usr_outsider": {}}
	if !AnnotationVisible("usr_outsider", "usr_m", VisibilityPublic, emptySet) {
		t.Fatalf("expected public annotation visible to outsider")
	}
}
