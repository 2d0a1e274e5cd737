package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteLike implements Fallback with case-insensitive substring matching.
// The stock SQLite build has no ts_rank equivalent, so hits come back in
// recency order with snippets built in Go.
type SQLiteLike struct {
	db *sql.DB
}

// NewSQLiteLike creates the LIKE-based searcher used in SQLite mode.
func NewSQLiteLike(db *sql.DB) *SQLiteLike {
	return &SQLiteLike{db: db}
}

// Healthy always returns true — if the database is down, the whole app is down.
func (l *SQLiteLike) Healthy() bool {
	return true
}

func (l *SQLiteLike) Search(q Query) ([]Result, int, error) {
	term := strings.TrimSpace(q.Text)
	if term == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	pattern := "%" + strings.ToLower(term) + "%"
	ctx := context.Background()

	var results []Result
	total := 0

	if q.FilterType == "" || q.FilterType == ResultDocument {
		where := "(lower(title) LIKE ? OR lower(text_content) LIKE ?)"
		args := []any{pattern, pattern}
		if q.FilterDocumentID != "" {
			where += " AND id = ?"
			args = append(args, q.FilterDocumentID)
		}

		var count int
		if err := l.db.QueryRowContext(ctx, "SELECT count(*) FROM documents WHERE "+where, args...).Scan(&count); err != nil {
			return nil, 0, fmt.Errorf("like count documents: %w", err)
		}
		total += count

		rows, err := l.db.QueryContext(ctx,
			"SELECT id, title, text_content FROM documents WHERE "+where+" ORDER BY updated_at DESC LIMIT ? OFFSET ?",
			append(args, limit, offset)...)
		if err != nil {
			return nil, 0, fmt.Errorf("like query documents: %w", err)
		}
		for rows.Next() {
			var id, title, text string
			if err := rows.Scan(&id, &title, &text); err != nil {
				rows.Close()
				return nil, 0, fmt.Errorf("like scan document: %w", err)
			}
			results = append(results, Result{
				Type:       ResultDocument,
				ID:         id,
				Title:      title,
				Snippet:    excerpt(text, term),
				DocumentID: id,
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("like iterate documents: %w", err)
		}
		rows.Close()
	}

	if q.FilterType == "" || q.FilterType == ResultAnnotation {
		where := "(lower(quote) LIKE ? OR lower(body) LIKE ?)"
		args := []any{pattern, pattern}
		if q.FilterDocumentID != "" {
			where += " AND document_id = ?"
			args = append(args, q.FilterDocumentID)
		}

		var count int
		if err := l.db.QueryRowContext(ctx, "SELECT count(*) FROM annotations WHERE "+where, args...).Scan(&count); err != nil {
			return nil, 0, fmt.Errorf("like count annotations: %w", err)
		}
		total += count

		rows, err := l.db.QueryContext(ctx,
			"SELECT id, document_id, user_id, quote, body, visibility FROM annotations WHERE "+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
			append(args, limit, offset)...)
		if err != nil {
			return nil, 0, fmt.Errorf("like query annotations: %w", err)
		}
		for rows.Next() {
			var r Result
			var body string
			if err := rows.Scan(&r.ID, &r.DocumentID, &r.UserID, &r.Title, &body, &r.Visibility); err != nil {
				rows.Close()
				return nil, 0, fmt.Errorf("like scan annotation: %w", err)
			}
			r.Type = ResultAnnotation
			r.Snippet = excerpt(body, term)
			results = append(results, r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("like iterate annotations: %w", err)
		}
		rows.Close()
	}

	return results, total, nil
}

// LoadAllRecords returns all searchable records for full reindexing.
func (l *SQLiteLike) LoadAllRecords(ctx context.Context) ([]DocumentRecord, []AnnotationRecord, error) {
	return loadAllRecords(ctx, l.db)
}

// excerpt returns up to radius runes either side of the first occurrence of
// term, with ellipses at cut edges. When the term is absent (the LIKE matched
// another column) it returns the head of the text.
func excerpt(text, term string) string {
	const radius = 80

	runes := []rune(text)
	byteIdx := strings.Index(strings.ToLower(text), strings.ToLower(term))
	if byteIdx < 0 {
		if len(runes) <= 2*radius {
			return text
		}
		return string(runes[:2*radius]) + "…"
	}

	runeIdx := len([]rune(text[:byteIdx]))
	start := runeIdx - radius
	if start < 0 {
		start = 0
	}
	end := runeIdx + len([]rune(term)) + radius
	if end > len(runes) {
		end = len(runes)
	}

	out := string(runes[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}
