package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"margin/api/internal/access"
	"margin/api/internal/store"
	"margin/api/internal/util"
)

// CreateChatInput starts a discussion thread on a document. Chats
// default to private, unlike annotations: a reader's running notes on
// a text are theirs until deliberately shared.
type CreateChatInput struct {
	DocumentID string
	Title      string
	Visibility string
}

func (s *Service) CreateChat(ctx context.Context, userID string, input CreateChatInput) (store.Chat, error) {
	if _, err := s.store.GetDocument(ctx, input.DocumentID); err != nil {
		return store.Chat{}, fetchErr("document", err)
	}
	if err := s.require(ctx, userID, access.TypeDocument, input.DocumentID, access.LevelRead); err != nil {
		return store.Chat{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New chat"
	}
	visibility := input.Visibility
	if visibility == "" {
		visibility = access.VisibilityPrivate
	}
	if !validVisibilities[visibility] {
		return store.Chat{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "visibility must be private, shared, or public", nil)
	}
	chat := store.Chat{
		ID:         util.NewID("cht"),
		DocumentID: input.DocumentID,
		UserID:     userID,
		Title:      title,
		Visibility: visibility,
		Messages:   []store.ChatMessage{},
	}
	if err := s.store.InsertChat(ctx, chat); err != nil {
		return store.Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	return chat, nil
}

// GetChat returns one chat with its messages.
func (s *Service) GetChat(ctx context.Context, userID, chatID string) (store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return store.Chat{}, fetchErr("chat", err)
	}
	if err := s.require(ctx, userID, access.TypeChat, chatID, access.LevelRead); err != nil {
		return store.Chat{}, err
	}
	return chat, nil
}

// AppendChatMessage adds a message. Posting needs write on the chat,
// so a shared chat stays read-only for everyone but its owner and
// explicit write grantees.
func (s *Service) AppendChatMessage(ctx context.Context, userID, chatID, body string) (store.Chat, error) {
	if _, err := s.store.GetChat(ctx, chatID); err != nil {
		return store.Chat{}, fetchErr("chat", err)
	}
	if err := s.require(ctx, userID, access.TypeChat, chatID, access.LevelWrite); err != nil {
		return store.Chat{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Chat{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "message body is required", nil)
	}
	msg := store.ChatMessage{UserID: userID, Body: body, SentAt: time.Now()}
	if err := s.store.AppendChatMessage(ctx, chatID, msg); err != nil {
		return store.Chat{}, fmt.Errorf("append chat message: %w", err)
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return store.Chat{}, fmt.Errorf("reload chat: %w", err)
	}
	return chat, nil
}

// UpdateChatInput carries chat edits. Nil fields keep their current
// values.
type UpdateChatInput struct {
	Title      *string
	Visibility *string
}

// UpdateChat renames a chat or changes its visibility, creator only.
func (s *Service) UpdateChat(ctx context.Context, userID, chatID string, input UpdateChatInput) (store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return store.Chat{}, fetchErr("chat", err)
	}
	if chat.UserID != userID {
		return store.Chat{}, domainError(http.StatusForbidden, "forbidden", "only the chat's creator can edit it", nil)
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return store.Chat{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "chat title is required", nil)
		}
		chat.Title = title
	}
	if input.Visibility != nil {
		if !validVisibilities[*input.Visibility] {
			return store.Chat{}, domainError(http.StatusUnprocessableEntity, "validation_failed", "visibility must be private, shared, or public", nil)
		}
		chat.Visibility = *input.Visibility
	}
	if err := s.store.UpdateChat(ctx, chatID, chat.Title, chat.Visibility); err != nil {
		return store.Chat{}, fmt.Errorf("update chat: %w", err)
	}
	return chat, nil
}

// DeleteChat removes a chat: the creator or an explicit write grant.
func (s *Service) DeleteChat(ctx context.Context, userID, chatID string) error {
	if _, err := s.store.GetChat(ctx, chatID); err != nil {
		return fetchErr("chat", err)
	}
	if err := s.require(ctx, userID, access.TypeChat, chatID, access.LevelWrite); err != nil {
		return err
	}
	if err := s.store.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}
