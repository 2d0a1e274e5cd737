package app

import (
	"context"
	"testing"

	"margin/api/internal/search"
)

func TestSearchDropsUnreadableHits(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.seedUser(t, "usr_owner", "Owner")
	stranger := env.seedUser(t, "usr_stranger", "Stranger")
	viewer := env.seedUser(t, "usr_viewer", "Viewer")
	docA := env.seedDocument(t, "doc_a", owner.ID, fableText)
	docB := env.seedDocument(t, "doc_b", owner.ID, fableText)
	env.grant(t, "document", docA.ID, "user", viewer.ID, "read", owner.ID)

	env.search.response = search.Response{
		Results: []search.Result{
			{Type: search.ResultDocument, ID: docA.ID, Title: docA.Title, DocumentID: docA.ID},
			{Type: search.ResultDocument, ID: docB.ID, Title: docB.Title, DocumentID: docB.ID},
			{Type: search.ResultAnnotation, ID: "ann_shared", DocumentID: docA.ID, UserID: owner.ID, Visibility: "shared"},
			{Type: search.ResultAnnotation, ID: "ann_wall", DocumentID: docA.ID, UserID: owner.ID, Visibility: "private"},
			{Type: search.ResultAnnotation, ID: "ann_public", DocumentID: docA.ID, UserID: stranger.ID, Visibility: "public"},
			{Type: search.ResultAnnotation, ID: "ann_outside", DocumentID: docA.ID, UserID: stranger.ID, Visibility: "shared"},
		},
		Total: 10,
		Query: "fox",
	}

	resp, err := env.svc.Search(ctx, viewer.ID, SearchInput{Query: "fox"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	ids := make([]string, 0, len(resp.Results))
	for _, hit := range resp.Results {
		ids = append(ids, hit.ID)
	}
	want := []string{docA.ID, "ann_shared", "ann_public"}
	if len(ids) != len(want) {
		t.Fatalf("expected hits %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected hits %v, got %v", want, ids)
		}
	}

	// docB is unreadable; the private annotation is walled; the shared
	// annotation by a non-collaborator is outside the viewer's circle.
	if resp.Total != 7 {
		t.Errorf("expected total shrunk by the 3 dropped hits, got %d", resp.Total)
	}
}

func TestSearchEmptyQueryShortCircuits(t *testing.T) {
	env := newTestEnv()
	user := env.seedUser(t, "usr_owner", "Owner")

	resp, err := env.svc.Search(context.Background(), user.ID, SearchInput{Query: "   "})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Errorf("expected an empty response, got %+v", resp)
	}
	if len(env.search.queries) != 0 {
		t.Errorf("expected no backend query for blank input")
	}
}

func TestSearchRejectsUnknownType(t *testing.T) {
	env := newTestEnv()
	user := env.seedUser(t, "usr_owner", "Owner")
	_, err := env.svc.Search(context.Background(), user.ID, SearchInput{Query: "fox", Type: "comment"})
	assertDomainCode(t, err, "validation_failed")
}

func TestSearchClampsPagination(t *testing.T) {
	env := newTestEnv()
	user := env.seedUser(t, "usr_owner", "Owner")

	if _, err := env.svc.Search(context.Background(), user.ID, SearchInput{Query: "fox", Limit: 0, Offset: -3}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if _, err := env.svc.Search(context.Background(), user.ID, SearchInput{Query: "fox", Limit: 500, Offset: 40, Type: "document", DocumentID: "doc_1"}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(env.search.queries) != 2 {
		t.Fatalf("expected 2 backend queries, got %d", len(env.search.queries))
	}
	first, second := env.search.queries[0], env.search.queries[1]
	if first.Limit != 20 || first.Offset != 0 {
		t.Errorf("expected defaults 20/0, got %d/%d", first.Limit, first.Offset)
	}
	if second.Limit != 20 || second.Offset != 40 {
		t.Errorf("expected oversized limit reset to 20, got %d/%d", second.Limit, second.Offset)
	}
	if second.FilterType != search.ResultDocument || second.FilterDocumentID != "doc_1" {
		t.Errorf("expected filters forwarded, got %+v", second)
	}
}
