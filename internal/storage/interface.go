package storage

import (
	"context"
)

// TranscriptArchive persists full transcripts so chunks can be rebuilt
// later without re-acquiring or re-transcribing the source media.
type TranscriptArchive interface {
	// PutTranscript stores the transcript text for one source.
	PutTranscript(ctx context.Context, ownerID, sourceID, text string) error

	// GetTranscript retrieves the transcript text for one source.
	GetTranscript(ctx context.Context, ownerID, sourceID string) (string, error)

	// DeleteTranscript removes the transcript for one source.
	DeleteTranscript(ctx context.Context, ownerID, sourceID string) error

	// Exists checks whether a transcript is archived for one source.
	Exists(ctx context.Context, ownerID, sourceID string) (bool, error)
}
