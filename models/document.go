package models

import (
	"fmt"

	"github.com/google/uuid"
)

// MetadataIDKey is the metadata key carrying a document's unique identifier
const MetadataIDKey = "id"

// Document is a piece of retrievable text with its metadata
type Document struct {
	ID       string                 `json:"id" db:"id"`
	Content  string                 `json:"content" db:"document"`
	Metadata map[string]interface{} `json:"metadata" db:"cmetadata"`
}

// TableName returns the table name for the Document model
func (Document) TableName() string {
	return "langchain_pg_embedding"
}

// NewDocument creates a Document, taking its ID from metadata["id"] or
// generating one and writing it back so metadata always carries the identifier.
func NewDocument(content string, metadata map[string]interface{}) *Document {
	md := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}

	var id string
	if raw, ok := md[MetadataIDKey]; ok && raw != nil {
		id = fmt.Sprint(raw)
	}
	if id == "" {
		id = uuid.NewString()
	}
	md[MetadataIDKey] = id

	return &Document{
		ID:       id,
		Content:  content,
		Metadata: md,
	}
}

// ScoreKind tells callers how to read ScoredResult.Score
type ScoreKind string

const (
	// ScoreDistance is a vector distance: lower is more similar, results ascend.
	ScoreDistance ScoreKind = "distance"
	// ScoreFused is alpha*lexical + (1-alpha)*(1-distance): higher is better, results descend.
	ScoreFused ScoreKind = "fused"
)

// ScoredResult is a document returned by a search path with its score
type ScoredResult struct {
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Score     float64                `json:"score"`
	ScoreKind ScoreKind              `json:"score_kind"`
}

// Collection is a named group of embedded documents
type Collection struct {
	UUID uuid.UUID `json:"uuid" db:"uuid"`
	Name string    `json:"name" db:"name"`
}

// TableName returns the table name for the Collection model
func (Collection) TableName() string {
	return "langchain_pg_collection"
}
