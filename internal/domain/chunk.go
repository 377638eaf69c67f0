package domain

import "time"

// Chunk represents one embeddable transcript span. A chunk belongs to exactly
// one source and one owner; the source exclusively controls its lifetime.
// The vector itself lives in Qdrant under the same ID; the row carries the
// text and the model that embedded it.
type Chunk struct {
	ID             string    `gorm:"type:text;primaryKey" json:"id"`
	OwnerID        string    `gorm:"type:text;not null;index:idx_chunks_owner" json:"-"`
	SourceID       string    `gorm:"type:text;not null;index:idx_chunks_source;uniqueIndex:idx_chunks_source_seq" json:"source_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	SequenceIndex  int       `gorm:"not null;uniqueIndex:idx_chunks_source_seq" json:"sequence_index"`
	Title          string    `gorm:"type:text" json:"title"` // display title, denormalized from the source
	EmbeddingModel string    `gorm:"type:text;not null;index:idx_chunks_model" json:"embedding_model"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for Chunk.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Chunk) TableName() string {
	return "chunks"
}

// RetrievedChunk pairs a chunk with its similarity score for one query.
// Never persisted.
type RetrievedChunk struct {
	Chunk
	Score float32 `json:"score"`
}
