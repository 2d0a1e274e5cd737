package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDocument   ResultType = "document"
	ResultAnnotation ResultType = "annotation"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	DocumentID string     `json:"documentId"`
	UserID     string     `json:"userId,omitempty"`
	Visibility string     `json:"visibility,omitempty"`
}

// Query describes a search request. Permission filtering happens above this
// package: callers drop hits the viewer cannot read.
type Query struct {
	Text             string
	FilterType       ResultType // empty = all types
	FilterDocumentID string
	Limit            int
	Offset           int
}

// Response is the envelope returned to the service layer.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Fallback is the database-backed engine used when Meilisearch is down or
// unconfigured. It also feeds full reindexing.
type Fallback interface {
	Searcher
	LoadAllRecords(ctx context.Context) ([]DocumentRecord, []AnnotationRecord, error)
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexDocument(doc DocumentRecord) error
	IndexAnnotation(a AnnotationRecord) error
	DeleteDocument(id string) error
	DeleteAnnotation(id string) error
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// AnnotationRecord is the data we index for an annotation.
type AnnotationRecord struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	Quote      string `json:"quote"`
	Body       string `json:"body"`
	Visibility string `json:"visibility"`
}
