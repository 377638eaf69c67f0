package storage

import "strings"

// NewArchive creates a TranscriptArchive based on the configuration.
// Parameters:
//   - cfg: storage configuration including endpoint, credentials, and bucket.
// Returns:
//   - TranscriptArchive: initialized archive client.
//   - error: non-nil if the client cannot be created.
func NewArchive(cfg *S3Config) (*S3Archive, error) {
	// Auto-detect storage type if not specified
	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}

	return NewS3Archive(cfg)
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
