package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
)

func TestCreateAnnotationCapturesContext(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.seedUser(t, "usr_owner", "Owner")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)

	annotation, err := env.svc.CreateAnnotation(ctx, owner.ID, CreateAnnotationInput{
		DocumentID: doc.ID,
		Start:      10,
		End:        15,
		Body:       "  color words  ",
	})
	if err != nil {
		t.Fatalf("CreateAnnotation() error = %v", err)
	}
	if annotation.Quote != "brown" {
		t.Errorf("expected quote %q, got %q", "brown", annotation.Quote)
	}
	if annotation.Prefix != "The quick " {
		t.Errorf("unexpected prefix %q", annotation.Prefix)
	}
	if annotation.Suffix != " fox jumps over the lazy dog." {
		t.Errorf("unexpected suffix %q", annotation.Suffix)
	}
	if annotation.Body != "color words" {
		t.Errorf("expected trimmed body, got %q", annotation.Body)
	}
	if annotation.Visibility != "shared" {
		t.Errorf("expected shared default, got %q", annotation.Visibility)
	}
	if annotation.Color != owner.Color {
		t.Errorf("expected creator color %q, got %q", owner.Color, annotation.Color)
	}
	if len(env.search.indexedAnns) != 1 || env.search.indexedAnns[0].Quote != "brown" {
		t.Errorf("expected the annotation to be indexed")
	}
}

func TestCreateAnnotationRejectsOutOfBounds(t *testing.T) {
	env := newTestEnv()
	owner := env.seedUser(t, "usr_owner", "Owner")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)

	tests := []struct {
		name       string
		start, end int
	}{
		{"negative start", -1, 5},
		{"empty range", 10, 10},
		{"inverted range", 15, 10},
		{"past the end", 40, len(fableText) + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateAnnotation(context.Background(), owner.ID, CreateAnnotationInput{
				DocumentID: doc.ID,
				Start:      tt.start,
				End:        tt.end,
			})
			derr := assertDomainCode(t, err, "validation_failed")
			details, ok := derr.Details.(map[string]any)
			if !ok || details["length"] != len(fableText) {
				t.Errorf("expected details to carry the text length, got %v", derr.Details)
			}
		})
	}
}

func TestCreateAnnotationInvalidVisibility(t *testing.T) {
	env := newTestEnv()
	owner := env.seedUser(t, "usr_owner", "Owner")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)
	_, err := env.svc.CreateAnnotation(context.Background(), owner.ID, CreateAnnotationInput{
		DocumentID: doc.ID,
		Start:      10,
		End:        15,
		Visibility: "everyone",
	})
	assertDomainCode(t, err, "validation_failed")
}

func TestCreateAnnotationNeedsDocumentRead(t *testing.T) {
	env := newTestEnv()
	owner := env.seedUser(t, "usr_owner", "Owner")
	stranger := env.seedUser(t, "usr_stranger", "Stranger")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)

	_, err := env.svc.CreateAnnotation(context.Background(), stranger.ID, CreateAnnotationInput{
		DocumentID: doc.ID,
		Start:      10,
		End:        15,
	})
	assertDomainCode(t, err, "forbidden")
	waitFor(t, "denial audit row", func() bool { return env.store.denialCount() == 1 })
}

func TestUpdateAnnotationCreatorOnly(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.seedUser(t, "usr_owner", "Owner")
	viewer := env.seedUser(t, "usr_viewer", "Viewer")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)
	env.grant(t, "document", doc.ID, "user", viewer.ID, "read", owner.ID)
	annotation := env.seedAnnotation(t, "ann_1", doc.ID, owner.ID, 10, 15, "shared")

	// Even an explicit write grant on the annotation does not allow
	// rewriting someone else's note.
	env.grant(t, "annotation", annotation.ID, "user", viewer.ID, "write", owner.ID)
	body := "rewritten"
	_, err := env.svc.UpdateAnnotation(ctx, viewer.ID, annotation.ID, UpdateAnnotationInput{Body: &body})
	derr := assertDomainCode(t, err, "forbidden")
	if !strings.Contains(derr.Message, "creator") {
		t.Errorf("expected a creator-only message, got %q", derr.Message)
	}

	visibility := "public"
	updated, err := env.svc.UpdateAnnotation(ctx, owner.ID, annotation.ID, UpdateAnnotationInput{
		Body:       &body,
		Visibility: &visibility,
	})
	if err != nil {
		t.Fatalf("UpdateAnnotation() error = %v", err)
	}
	if updated.Body != "rewritten" || updated.Visibility != "public" {
		t.Errorf("unexpected update %+v", updated)
	}
	if updated.Color != annotation.Color {
		t.Errorf("expected untouched color, got %q", updated.Color)
	}
}

func TestDeleteAnnotationNeedsWriteOnIt(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.seedUser(t, "usr_owner", "Owner")
	viewer := env.seedUser(t, "usr_viewer", "Viewer")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)
	env.grant(t, "document", doc.ID, "user", viewer.ID, "read", owner.ID)
	annotation := env.seedAnnotation(t, "ann_1", doc.ID, viewer.ID, 10, 15, "shared")

	// Document admin rights cap at read on children; the owner cannot
	// delete the viewer's annotation.
	err := env.svc.DeleteAnnotation(ctx, owner.ID, annotation.ID)
	assertDomainCode(t, err, "forbidden")

	if err := env.svc.DeleteAnnotation(ctx, viewer.ID, annotation.ID); err != nil {
		t.Fatalf("DeleteAnnotation() error = %v", err)
	}
	if _, err := env.store.GetAnnotation(ctx, annotation.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected annotation to be gone, got %v", err)
	}
	if len(env.search.deletedAnns) != 1 || env.search.deletedAnns[0] != annotation.ID {
		t.Errorf("expected search cleanup")
	}
}

func TestCreateCommentOnReadableAnnotation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.seedUser(t, "usr_owner", "Owner")
	viewer := env.seedUser(t, "usr_viewer", "Viewer")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)
	env.grant(t, "document", doc.ID, "user", viewer.ID, "read", owner.ID)
	shared := env.seedAnnotation(t, "ann_shared", doc.ID, owner.ID, 10, 15, "shared")
	wall := env.seedAnnotation(t, "ann_wall", doc.ID, owner.ID, 20, 25, "private")

	comment, err := env.svc.CreateComment(ctx, viewer.ID, CreateCommentInput{
		AnnotationID: shared.ID,
		Body:         "good catch",
	})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if comment.Visibility != "shared" || comment.UserID != viewer.ID {
		t.Errorf("unexpected comment %+v", comment)
	}

	_, err = env.svc.CreateComment(ctx, viewer.ID, CreateCommentInput{AnnotationID: shared.ID, Body: "   "})
	assertDomainCode(t, err, "validation_failed")

	// A private annotation is invisible to everyone but its creator.
	_, err = env.svc.CreateComment(ctx, viewer.ID, CreateCommentInput{AnnotationID: wall.ID, Body: "hello?"})
	assertDomainCode(t, err, "forbidden")
}

func TestUpdateCommentCreatorOnly(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.seedUser(t, "usr_owner", "Owner")
	viewer := env.seedUser(t, "usr_viewer", "Viewer")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)
	env.grant(t, "document", doc.ID, "user", viewer.ID, "read", owner.ID)
	annotation := env.seedAnnotation(t, "ann_1", doc.ID, owner.ID, 10, 15, "shared")

	comment, err := env.svc.CreateComment(ctx, viewer.ID, CreateCommentInput{AnnotationID: annotation.ID, Body: "first pass"})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}

	body := "second pass"
	_, err = env.svc.UpdateComment(ctx, owner.ID, comment.ID, UpdateCommentInput{Body: &body})
	assertDomainCode(t, err, "forbidden")

	empty := "  "
	_, err = env.svc.UpdateComment(ctx, viewer.ID, comment.ID, UpdateCommentInput{Body: &empty})
	assertDomainCode(t, err, "validation_failed")

	updated, err := env.svc.UpdateComment(ctx, viewer.ID, comment.ID, UpdateCommentInput{Body: &body})
	if err != nil {
		t.Fatalf("UpdateComment() error = %v", err)
	}
	if updated.Body != "second pass" {
		t.Errorf("expected updated body, got %q", updated.Body)
	}
}

func TestDeleteCommentNeedsWriteOnIt(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.seedUser(t, "usr_owner", "Owner")
	viewer := env.seedUser(t, "usr_viewer", "Viewer")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)
	env.grant(t, "document", doc.ID, "user", viewer.ID, "read", owner.ID)
	annotation := env.seedAnnotation(t, "ann_1", doc.ID, owner.ID, 10, 15, "shared")

	comment, err := env.svc.CreateComment(ctx, viewer.ID, CreateCommentInput{AnnotationID: annotation.ID, Body: "mine"})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}

	// The annotation's creator does not own replies to it.
	err = env.svc.DeleteComment(ctx, owner.ID, comment.ID)
	assertDomainCode(t, err, "forbidden")

	if err := env.svc.DeleteComment(ctx, viewer.ID, comment.ID); err != nil {
		t.Fatalf("DeleteComment() error = %v", err)
	}
	if _, err := env.store.GetComment(ctx, comment.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected comment to be gone, got %v", err)
	}
}
