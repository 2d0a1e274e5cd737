package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func TestCreateChatDefaultsPrivate(t *testing.T) {
	env := newTestEnv()
	owner := env.seedUser(t, "usr_owner", "Owner")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)

	chat, err := env.svc.CreateChat(context.Background(), owner.ID, CreateChatInput{DocumentID: doc.ID})
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if chat.Visibility != "private" {
		t.Errorf("expected private default, got %q", chat.Visibility)
	}
	if chat.Title != "New chat" {
		t.Errorf("expected default title, got %q", chat.Title)
	}
	if chat.Messages == nil || len(chat.Messages) != 0 {
		t.Errorf("expected an empty message list, got %+v", chat.Messages)
	}
}

func TestGetChatRespectsPrivacy(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.seedUser(t, "usr_owner", "Owner")
	viewer := env.seedUser(t, "usr_viewer", "Viewer")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)
	env.grant(t, "document", doc.ID, "user", viewer.ID, "read", owner.ID)

	chat, err := env.svc.CreateChat(ctx, owner.ID, CreateChatInput{DocumentID: doc.ID, Title: "Reading log"})
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	_, err = env.svc.GetChat(ctx, viewer.ID, chat.ID)
	assertDomainCode(t, err, "forbidden")

	got, err := env.svc.GetChat(ctx, owner.ID, chat.ID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if got.Title != "Reading log" {
		t.Errorf("unexpected chat %+v", got)
	}
}

func TestAppendChatMessageNeedsWrite(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.seedUser(t, "usr_owner", "Owner")
	viewer := env.seedUser(t, "usr_viewer", "Viewer")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)
	env.grant(t, "document", doc.ID, "user", viewer.ID, "read", owner.ID)

	chat, err := env.svc.CreateChat(ctx, owner.ID, CreateChatInput{DocumentID: doc.ID, Visibility: "shared"})
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	// A shared chat is readable but not writable through the document.
	if _, err := env.svc.GetChat(ctx, viewer.ID, chat.ID); err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	_, err = env.svc.AppendChatMessage(ctx, viewer.ID, chat.ID, "can I join?")
	assertDomainCode(t, err, "forbidden")

	_, err = env.svc.AppendChatMessage(ctx, owner.ID, chat.ID, "   ")
	assertDomainCode(t, err, "validation_failed")

	updated, err := env.svc.AppendChatMessage(ctx, owner.ID, chat.ID, "first note")
	if err != nil {
		t.Fatalf("AppendChatMessage() error = %v", err)
	}
	if len(updated.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(updated.Messages))
	}
	msg := updated.Messages[0]
	if msg.UserID != owner.ID || msg.Body != "first note" || msg.SentAt.IsZero() {
		t.Errorf("unexpected message %+v", msg)
	}

	// An explicit write grant opens the chat up.
	env.grant(t, "chat", chat.ID, "user", viewer.ID, "write", owner.ID)
	updated, err = env.svc.AppendChatMessage(ctx, viewer.ID, chat.ID, "joining in")
	if err != nil {
		t.Fatalf("AppendChatMessage() error = %v", err)
	}
	if len(updated.Messages) != 2 || updated.Messages[1].UserID != viewer.ID {
		t.Errorf("expected the viewer's message appended, got %+v", updated.Messages)
	}
}

func TestUpdateChatCreatorOnly(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.seedUser(t, "usr_owner", "Owner")
	viewer := env.seedUser(t, "usr_viewer", "Viewer")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)
	env.grant(t, "document", doc.ID, "user", viewer.ID, "read", owner.ID)

	chat, err := env.svc.CreateChat(ctx, owner.ID, CreateChatInput{DocumentID: doc.ID, Title: "Drafts"})
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	title := "Renamed"
	_, err = env.svc.UpdateChat(ctx, viewer.ID, chat.ID, UpdateChatInput{Title: &title})
	assertDomainCode(t, err, "forbidden")

	empty := " "
	_, err = env.svc.UpdateChat(ctx, owner.ID, chat.ID, UpdateChatInput{Title: &empty})
	assertDomainCode(t, err, "validation_failed")

	visibility := "shared"
	updated, err := env.svc.UpdateChat(ctx, owner.ID, chat.ID, UpdateChatInput{Title: &title, Visibility: &visibility})
	if err != nil {
		t.Fatalf("UpdateChat() error = %v", err)
	}
	if updated.Title != "Renamed" || updated.Visibility != "shared" {
		t.Errorf("unexpected chat %+v", updated)
	}
}

func TestDeleteChatNeedsWrite(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.seedUser(t, "usr_owner", "Owner")
	viewer := env.seedUser(t, "usr_viewer", "Viewer")
	doc := env.seedDocument(t, "doc_1", owner.ID, fableText)
	env.grant(t, "document", doc.ID, "user", viewer.ID, "read", owner.ID)

	chat, err := env.svc.CreateChat(ctx, owner.ID, CreateChatInput{DocumentID: doc.ID, Visibility: "shared"})
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	err = env.svc.DeleteChat(ctx, viewer.ID, chat.ID)
	assertDomainCode(t, err, "forbidden")

	if err := env.svc.DeleteChat(ctx, owner.ID, chat.ID); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}
	if _, err := env.store.GetChat(ctx, chat.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected chat to be gone, got %v", err)
	}
}
