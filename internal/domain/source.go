package domain

import "time"

// SourceKind represents how a source's audio was obtained.
// Values include SourceKindVideo, SourceKindPodcast, and SourceKindUpload.
type SourceKind string

const (
	SourceKindVideo   SourceKind = "video"
	SourceKindPodcast SourceKind = "podcast"
	SourceKindUpload  SourceKind = "uploaded-audio"
)

// Source represents one ingested item. A row exists only after acquisition,
// transcription, and chunk embedding have all succeeded; every source owns
// at least one chunk.
type Source struct {
	ID        string     `gorm:"type:text;primaryKey" json:"id"`
	OwnerID   string     `gorm:"type:text;not null;index:idx_sources_owner;uniqueIndex:idx_sources_owner_url" json:"-"`
	Title     string     `gorm:"type:text;not null" json:"title"`
	URL       string     `gorm:"type:text;not null;uniqueIndex:idx_sources_owner_url" json:"url"`
	Kind      SourceKind `gorm:"type:text;not null" json:"kind"`
	Chunks    []Chunk    `gorm:"foreignKey:SourceID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time  `json:"added_at"`
}

// TableName returns the database table name for Source.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Source) TableName() string {
	return "sources"
}

// SourceSummary is the list representation returned by the API.
type SourceSummary struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	Kind       SourceKind `json:"kind"`
	ChunkCount int64      `json:"chunk_count"`
	AddedAt    time.Time  `json:"added_at"`
}
