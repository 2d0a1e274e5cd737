package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"margin/api/internal/access"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, color, fallback)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Email, user.Name, user.PasswordHash, user.Color, user.Fallback)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, color, fallback, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Color, &user.Fallback, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, color, fallback, created_at, updated_at
		FROM users
		WHERE email=$1
	`, email).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Color, &user.Fallback, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUsersByIDs(ctx context.Context, userIDs []string) ([]User, error) {
	if len(userIDs) == 0 {
		return []User{}, nil
	}
	placeholders := make([]string, len(userIDs))
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, email, name, password_hash, color, fallback, created_at, updated_at
		FROM users
		WHERE id IN (%s)
		ORDER BY name ASC
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("list users by ids: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var item User
		if err := rows.Scan(&item.ID, &item.Email, &item.Name, &item.PasswordHash, &item.Color, &item.Fallback, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.name, u.password_hash, u.color, u.fallback, u.created_at, u.updated_at
		FROM sessions se
		JOIN users u ON u.id = se.user_id
		WHERE se.token_hash = $1
			AND se.revoked_at IS NULL
			AND se.expires_at > NOW()
	`, tokenHash).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Color, &user.Fallback, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeUserSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked_at=NOW() WHERE user_id=$1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions rows: %w", err)
	}
	return purged, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, url, title, text_content)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.URL, item.Title, item.TextContent)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var item Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, url, title, text_content, crawled_at, created_at, updated_at
		FROM documents
		WHERE id=$1
	`, documentID).Scan(&item.ID, &item.URL, &item.Title, &item.TextContent, &item.CrawledAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	return item, nil
}

// ListDocumentsForUser returns the documents the user is linked to or
// holds a grant on, directly or through a group. With includeLegacy set
// it also returns documents nobody has been linked to or granted on.
func (s *PostgresStore) ListDocumentsForUser(ctx context.Context, userID string, includeLegacy bool) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.url, d.title, d.text_content, d.crawled_at, d.created_at, d.updated_at
		FROM documents d
		WHERE d.id IN (
			SELECT document_id FROM user_documents WHERE user_id=$1
			UNION
			SELECT resource_id FROM permissions
			WHERE resource_type='document' AND principal_type='user' AND principal_id=$1
			UNION
			SELECT resource_id FROM permissions
			WHERE resource_type='document' AND principal_type='group'
				AND principal_id IN (
					SELECT group_id FROM group_members WHERE user_id=$1
					UNION
					SELECT id FROM groups WHERE user_id=$1
				)
		)
		OR ($2::boolean
			AND NOT EXISTS (SELECT 1 FROM user_documents ud WHERE ud.document_id=d.id)
			AND NOT EXISTS (SELECT 1 FROM permissions p WHERE p.resource_type='document' AND p.resource_id=d.id))
		ORDER BY d.updated_at DESC
	`, userID, includeLegacy)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.URL, &item.Title, &item.TextContent, &item.CrawledAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListAllDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, title, text_content, crawled_at, created_at, updated_at
		FROM documents
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.URL, &item.Title, &item.TextContent, &item.CrawledAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListPendingCrawls(ctx context.Context, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, title, text_content, crawled_at, created_at, updated_at
		FROM documents
		WHERE url <> '' AND crawled_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending crawls: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.URL, &item.Title, &item.TextContent, &item.CrawledAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending crawls: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateDocumentTitle(ctx context.Context, documentID, title string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET title=$2, updated_at=NOW() WHERE id=$1
	`, documentID, title)
	if err != nil {
		return fmt.Errorf("update document title: %w", err)
	}
	return nil
}

// UpdateDocumentContent stores a crawl result. The title is only
// overwritten when the crawler found one.
func (s *PostgresStore) UpdateDocumentContent(ctx context.Context, documentID, title, textContent string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title=COALESCE(NULLIF($2, ''), title), text_content=$3, crawled_at=NOW(), updated_at=NOW()
		WHERE id=$1
	`, documentID, title, textContent)
	if err != nil {
		return fmt.Errorf("update document content: %w", err)
	}
	return nil
}

// DeleteDocument removes the document, its annotations, comments, and
// chats, and every permission row pointing at any of them. Permission
// rows are polymorphic and carry no foreign keys, so they are cleared
// explicitly before the row cascade runs.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM permissions
		WHERE (resource_type='document' AND resource_id=$1)
			OR (resource_type='annotation' AND resource_id IN (
				SELECT id FROM annotations WHERE document_id=$1))
			OR (resource_type='comment' AND resource_id IN (
				SELECT c.id FROM comments c JOIN annotations a ON a.id=c.annotation_id WHERE a.document_id=$1))
			OR (resource_type='chat' AND resource_id IN (
				SELECT id FROM chats WHERE document_id=$1))
	`, documentID)
	if err != nil {
		return fmt.Errorf("clear document permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertUserDocument(ctx context.Context, link UserDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_documents (user_id, document_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, document_id) DO UPDATE SET role=EXCLUDED.role
	`, link.UserID, link.DocumentID, link.Role)
	if err != nil {
		return fmt.Errorf("upsert user document: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUserDocument(ctx context.Context, userID, documentID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_documents WHERE user_id=$1 AND document_id=$2
	`, userID, documentID)
	if err != nil {
		return fmt.Errorf("delete user document: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertAnnotation(ctx context.Context, item Annotation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO annotations (id, document_id, user_id, start_offset, end_offset, quote, prefix, suffix, body, color, visibility)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, item.ID, item.DocumentID, item.UserID, item.StartOffset, item.EndOffset, item.Quote, item.Prefix, item.Suffix, item.Body, item.Color, item.Visibility)
	if err != nil {
		return fmt.Errorf("insert annotation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnnotation(ctx context.Context, annotationID string) (Annotation, error) {
	var item Annotation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, user_id, start_offset, end_offset, quote, prefix, suffix, body, color, visibility, created_at, updated_at
		FROM annotations
		WHERE id=$1
	`, annotationID).Scan(
		&item.ID,
		&item.DocumentID,
		&item.UserID,
		&item.StartOffset,
		&item.EndOffset,
		&item.Quote,
		&item.Prefix,
		&item.Suffix,
		&item.Body,
		&item.Color,
		&item.Visibility,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Annotation{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListDocumentAnnotations(ctx context.Context, documentID string) ([]Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, user_id, start_offset, end_offset, quote, prefix, suffix, body, color, visibility, created_at, updated_at
		FROM annotations
		WHERE document_id=$1
		ORDER BY start_offset ASC, created_at ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	items := make([]Annotation, 0)
	for rows.Next() {
		var item Annotation
		if err := rows.Scan(
			&item.ID,
			&item.DocumentID,
			&item.UserID,
			&item.StartOffset,
			&item.EndOffset,
			&item.Quote,
			&item.Prefix,
			&item.Suffix,
			&item.Body,
			&item.Color,
			&item.Visibility,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateAnnotation(ctx context.Context, annotationID, body, color, visibility string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE annotations
		SET body=$2, color=$3, visibility=$4, updated_at=NOW()
		WHERE id=$1
	`, annotationID, body, color, visibility)
	if err != nil {
		return fmt.Errorf("update annotation: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAnnotationAnchor(ctx context.Context, annotationID string, startOffset, endOffset int, quote, prefix, suffix string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE annotations
		SET start_offset=$2, end_offset=$3, quote=$4, prefix=$5, suffix=$6, updated_at=NOW()
		WHERE id=$1
	`, annotationID, startOffset, endOffset, quote, prefix, suffix)
	if err != nil {
		return fmt.Errorf("update annotation anchor: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAnnotation(ctx context.Context, annotationID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM permissions
		WHERE (resource_type='annotation' AND resource_id=$1)
			OR (resource_type='comment' AND resource_id IN (
				SELECT id FROM comments WHERE annotation_id=$1))
	`, annotationID)
	if err != nil {
		return fmt.Errorf("clear annotation permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM annotations WHERE id=$1`, annotationID)
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, annotation_id, user_id, body, visibility)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.AnnotationID, item.UserID, item.Body, item.Visibility)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, annotation_id, user_id, body, visibility, created_at, updated_at
		FROM comments
		WHERE id=$1
	`, commentID).Scan(&item.ID, &item.AnnotationID, &item.UserID, &item.Body, &item.Visibility, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListAnnotationComments(ctx context.Context, annotationID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, annotation_id, user_id, body, visibility, created_at, updated_at
		FROM comments
		WHERE annotation_id=$1
		ORDER BY created_at ASC
	`, annotationID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.AnnotationID, &item.UserID, &item.Body, &item.Visibility, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateComment(ctx context.Context, commentID, body, visibility string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE comments
		SET body=$2, visibility=$3, updated_at=NOW()
		WHERE id=$1
	`, commentID, body, visibility)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM permissions WHERE resource_type='comment' AND resource_id=$1
	`, commentID)
	if err != nil {
		return fmt.Errorf("clear comment permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertChat(ctx context.Context, item Chat) error {
	encoded, err := json.Marshal(item.Messages)
	if err != nil {
		return fmt.Errorf("encode chat messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chats (id, document_id, user_id, title, visibility, messages)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`, item.ID, item.DocumentID, item.UserID, item.Title, item.Visibility, encoded)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChat(ctx context.Context, chatID string) (Chat, error) {
	var item Chat
	var messagesRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, user_id, title, visibility, COALESCE(messages::text, '[]'), created_at, updated_at
		FROM chats
		WHERE id=$1
	`, chatID).Scan(&item.ID, &item.DocumentID, &item.UserID, &item.Title, &item.Visibility, &messagesRaw, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Chat{}, err
	}
	_ = json.Unmarshal(messagesRaw, &item.Messages)
	return item, nil
}

func (s *PostgresStore) ListDocumentChats(ctx context.Context, documentID string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, user_id, title, visibility, COALESCE(messages::text, '[]'), created_at, updated_at
		FROM chats
		WHERE document_id=$1
		ORDER BY updated_at DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	items := make([]Chat, 0)
	for rows.Next() {
		var item Chat
		var messagesRaw []byte
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.UserID, &item.Title, &item.Visibility, &messagesRaw, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		_ = json.Unmarshal(messagesRaw, &item.Messages)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AppendChatMessage(ctx context.Context, chatID string, msg ChatMessage) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE chats
		SET messages = messages || $2::jsonb, updated_at=NOW()
		WHERE id=$1
	`, chatID, encoded)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateChat(ctx context.Context, chatID, title, visibility string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chats
		SET title=$2, visibility=$3, updated_at=NOW()
		WHERE id=$1
	`, chatID, title, visibility)
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteChat(ctx context.Context, chatID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM permissions WHERE resource_type='chat' AND resource_id=$1
	`, chatID)
	if err != nil {
		return fmt.Errorf("clear chat permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertGroup(ctx context.Context, item Group) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, name, user_id)
		VALUES ($1, $2, $3)
	`, item.ID, item.Name, item.UserID)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, groupID string) (Group, error) {
	var item Group
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, user_id, created_at, updated_at
		FROM groups
		WHERE id=$1
	`, groupID).Scan(&item.ID, &item.Name, &item.UserID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Group{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListGroupsForUser(ctx context.Context, userID string) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, user_id, created_at, updated_at
		FROM groups
		WHERE user_id=$1 OR id IN (SELECT group_id FROM group_members WHERE user_id=$1)
		ORDER BY name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	items := make([]Group, 0)
	for rows.Next() {
		var item Group
		if err := rows.Scan(&item.ID, &item.Name, &item.UserID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) RenameGroup(ctx context.Context, groupID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE groups SET name=$2, updated_at=NOW() WHERE id=$1
	`, groupID, name)
	if err != nil {
		return fmt.Errorf("rename group: %w", err)
	}
	return nil
}

// DeleteGroup removes the group, grants held on it, and grants held by
// it. Membership and document link rows go with the row cascade.
func (s *PostgresStore) DeleteGroup(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM permissions
		WHERE (resource_type='group' AND resource_id=$1)
			OR (principal_type='group' AND principal_id=$1)
	`, groupID)
	if err != nil {
		return fmt.Errorf("clear group permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM group_members WHERE group_id=$1 AND user_id=$2
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGroupMembers(ctx context.Context, groupID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.name, u.password_hash, u.color, u.fallback, u.created_at, u.updated_at
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id=$1
		ORDER BY u.name ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var item User
		if err := rows.Scan(&item.ID, &item.Email, &item.Name, &item.PasswordHash, &item.Color, &item.Fallback, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AddGroupDocument(ctx context.Context, groupID, documentID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_documents (group_id, document_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, document_id) DO NOTHING
	`, groupID, documentID)
	if err != nil {
		return fmt.Errorf("add group document: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveGroupDocument(ctx context.Context, groupID, documentID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM group_documents WHERE group_id=$1 AND document_id=$2
	`, groupID, documentID)
	if err != nil {
		return fmt.Errorf("remove group document: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGroupDocuments(ctx context.Context, groupID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.url, d.title, d.text_content, d.crawled_at, d.created_at, d.updated_at
		FROM group_documents gd
		JOIN documents d ON d.id = gd.document_id
		WHERE gd.group_id=$1
		ORDER BY d.updated_at DESC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.URL, &item.Title, &item.TextContent, &item.CrawledAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan group document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertPermission(ctx context.Context, item Permission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permissions (id, resource_type, resource_id, principal_type, principal_id, permission_level, granted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (resource_type, resource_id, principal_type, principal_id)
		DO UPDATE SET permission_level=EXCLUDED.permission_level, granted_by=EXCLUDED.granted_by, updated_at=NOW()
	`, item.ID, item.ResourceType, item.ResourceID, item.PrincipalType, item.PrincipalID, item.Level, item.GrantedBy)
	if err != nil {
		return fmt.Errorf("upsert permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePermission(ctx context.Context, resourceType, resourceID, principalType, principalID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM permissions
		WHERE resource_type=$1 AND resource_id=$2 AND principal_type=$3 AND principal_id=$4
	`, resourceType, resourceID, principalType, principalID)
	if err != nil {
		return false, fmt.Errorf("delete permission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete permission rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListResourcePermissions(ctx context.Context, resourceType, resourceID string) ([]PermissionWithPrincipal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.resource_type, p.resource_id, p.principal_type, p.principal_id, p.permission_level, p.granted_by, p.created_at, p.updated_at,
			COALESCE(u.name, g.name, ''), COALESCE(u.email, '')
		FROM permissions p
		LEFT JOIN users u ON p.principal_type='user' AND u.id = p.principal_id
		LEFT JOIN groups g ON p.principal_type='group' AND g.id = p.principal_id
		WHERE p.resource_type=$1 AND p.resource_id=$2
		ORDER BY p.created_at ASC
	`, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	items := make([]PermissionWithPrincipal, 0)
	for rows.Next() {
		var item PermissionWithPrincipal
		if err := rows.Scan(
			&item.ID,
			&item.ResourceType,
			&item.ResourceID,
			&item.PrincipalType,
			&item.PrincipalID,
			&item.Level,
			&item.GrantedBy,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.PrincipalName,
			&item.PrincipalEmail,
		); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertAccessDenial(ctx context.Context, item AccessDenial) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_denials (user_id, resource_type, resource_id, required_level, actual_level)
		VALUES ($1, $2, $3, $4, $5)
	`, item.UserID, item.ResourceType, item.ResourceID, item.RequiredLevel, item.ActualLevel)
	if err != nil {
		return fmt.Errorf("insert access denial: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAccessDenials(ctx context.Context, limit int) ([]AccessDenial, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, resource_type, resource_id, required_level, actual_level, denied_at
		FROM access_denials
		ORDER BY denied_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list access denials: %w", err)
	}
	defer rows.Close()

	items := make([]AccessDenial, 0)
	for rows.Next() {
		var item AccessDenial
		if err := rows.Scan(&item.ID, &item.UserID, &item.ResourceType, &item.ResourceID, &item.RequiredLevel, &item.ActualLevel, &item.DeniedAt); err != nil {
			return nil, fmt.Errorf("scan access denial: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access denials: %w", err)
	}
	return items, nil
}

// Resolver reads. These back access.Store; absent rows come back as
// zero values, never errors.

func (s *PostgresStore) GetResource(ctx context.Context, typ access.ResourceType, id string) (*access.Resource, error) {
	res := access.Resource{Type: typ, ID: id}
	var err error
	switch typ {
	case access.TypeDocument:
		err = s.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE id=$1`, id).Scan(&res.ID)
	case access.TypeAnnotation:
		err = s.db.QueryRowContext(ctx, `
			SELECT user_id, visibility, document_id FROM annotations WHERE id=$1
		`, id).Scan(&res.UserID, &res.Visibility, &res.ParentID)
	case access.TypeComment:
		err = s.db.QueryRowContext(ctx, `
			SELECT user_id, visibility, annotation_id FROM comments WHERE id=$1
		`, id).Scan(&res.UserID, &res.Visibility, &res.ParentID)
	case access.TypeChat:
		err = s.db.QueryRowContext(ctx, `
			SELECT user_id, visibility, document_id FROM chats WHERE id=$1
		`, id).Scan(&res.UserID, &res.Visibility, &res.ParentID)
	case access.TypeGroup:
		err = s.db.QueryRowContext(ctx, `SELECT user_id FROM groups WHERE id=$1`, id).Scan(&res.UserID)
	default:
		return nil, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return &res, nil
}

func (s *PostgresStore) GetDirectGrants(ctx context.Context, typ access.ResourceType, id, userID string, groupIDs []string) ([]access.Level, error) {
	levels := make([]access.Level, 0, 2)

	var level string
	err := s.db.QueryRowContext(ctx, `
		SELECT permission_level FROM permissions
		WHERE resource_type=$1 AND resource_id=$2 AND principal_type='user' AND principal_id=$3
	`, string(typ), id, userID).Scan(&level)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user grant: %w", err)
	}
	if err == nil {
		levels = append(levels, access.ParseLevel(level))
	}

	if len(groupIDs) == 0 {
		return levels, nil
	}
	placeholders := make([]string, len(groupIDs))
	args := []any{string(typ), id}
	for i, groupID := range groupIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, groupID)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT permission_level FROM permissions
		WHERE resource_type=$1 AND resource_id=$2 AND principal_type='group' AND principal_id IN (%s)
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("get group grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := rows.Scan(&level); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		levels = append(levels, access.ParseLevel(level))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return levels, nil
}

func (s *PostgresStore) GetUserDocumentLink(ctx context.Context, userID, documentID string) (string, bool, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM user_documents WHERE user_id=$1 AND document_id=$2
	`, userID, documentID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get user document link: %w", err)
	}
	return role, true, nil
}

func (s *PostgresStore) CountPermissionRows(ctx context.Context, typ access.ResourceType, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM permissions WHERE resource_type=$1 AND resource_id=$2
	`, string(typ), id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count permissions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountUserDocumentLinks(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_documents WHERE document_id=$1
	`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count user document links: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) GetUserGroupIDs(ctx context.Context, userID string) ([]string, error) {
	return s.queryIDs(ctx, "user groups", `
		SELECT group_id FROM group_members WHERE user_id=$1
		UNION
		SELECT id FROM groups WHERE user_id=$1
	`, userID)
}

func (s *PostgresStore) GetGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	return s.queryIDs(ctx, "group members", `
		SELECT user_id FROM group_members WHERE group_id=$1 ORDER BY created_at ASC
	`, groupID)
}

func (s *PostgresStore) GetGroupOwner(ctx context.Context, groupID string) (string, bool, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM groups WHERE id=$1`, groupID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get group owner: %w", err)
	}
	return owner, true, nil
}

// GetDocumentGroupIDs returns groups attached to the document, whether
// through a group-document link or a group-principal grant.
func (s *PostgresStore) GetDocumentGroupIDs(ctx context.Context, documentID string) ([]string, error) {
	return s.queryIDs(ctx, "document groups", `
		SELECT group_id FROM group_documents WHERE document_id=$1
		UNION
		SELECT principal_id FROM permissions
		WHERE resource_type='document' AND resource_id=$1 AND principal_type='group'
	`, documentID)
}

func (s *PostgresStore) GetDocumentUserGrantees(ctx context.Context, documentID string) ([]string, error) {
	return s.queryIDs(ctx, "document grantees", `
		SELECT principal_id FROM permissions
		WHERE resource_type='document' AND resource_id=$1 AND principal_type='user'
	`, documentID)
}

func (s *PostgresStore) GetDocumentLinkedUsers(ctx context.Context, documentID string) ([]string, error) {
	return s.queryIDs(ctx, "linked users", `
		SELECT user_id FROM user_documents WHERE document_id=$1
	`, documentID)
}

func (s *PostgresStore) queryIDs(ctx context.Context, what, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return ids, nil
}
