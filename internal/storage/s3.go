package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// StorageType defines the type of S3-compatible storage
type StorageType string

const (
	StorageTypeR2           StorageType = "r2"
	StorageTypeS3           StorageType = "s3"
	StorageTypeS3Compatible StorageType = "s3compatible"
)

// S3Config holds configuration for S3-compatible storage
type S3Config struct {
	Type      StorageType
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
}

// S3Archive implements TranscriptArchive on S3-compatible object storage.
// Transcripts live under transcripts/{owner}/{source}.txt so an owner's
// archive can be audited with a plain prefix listing.
type S3Archive struct {
	client    *s3.Client
	bucket    string
	storeType StorageType
}

// NewS3Archive creates a new S3-compatible archive client.
// Supports AWS S3, Cloudflare R2, and other S3-compatible services.
func NewS3Archive(cfg *S3Config) (*S3Archive, error) {
	endpoint := normalizeEndpoint(cfg.Endpoint)

	region := cfg.Region
	if region == "" {
		if cfg.Type == StorageTypeR2 {
			region = "auto"
		} else {
			region = "us-east-1"
		}
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	endpointURL := fmt.Sprintf("%s://%s", scheme, endpoint)

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpointURL)
		o.UsePathStyle = true // Use path-style for S3-compatible services
	})

	return &S3Archive{
		client:    client,
		bucket:    cfg.Bucket,
		storeType: cfg.Type,
	}, nil
}

// normalizeEndpoint removes protocol prefix and path from endpoint
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	if idx := strings.Index(endpoint, "/"); idx != -1 {
		endpoint = endpoint[:idx]
	}

	return strings.TrimSuffix(endpoint, "/")
}

// transcriptKey builds the object key for one source's transcript.
func transcriptKey(ownerID, sourceID string) string {
	return fmt.Sprintf("transcripts/%s/%s.txt", ownerID, sourceID)
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *S3Archive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	// R2 doesn't support creating buckets via API - must use dashboard
	if s.storeType == StorageTypeR2 {
		return fmt.Errorf("bucket %s does not exist, please create it in R2 dashboard", s.bucket)
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// PutTranscript stores the transcript text for one source.
func (s *S3Archive) PutTranscript(ctx context.Context, ownerID, sourceID, text string) error {
	body := []byte(text)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(transcriptKey(ownerID, sourceID)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive transcript: %w", err)
	}

	return nil
}

// GetTranscript retrieves the transcript text for one source.
func (s *S3Archive) GetTranscript(ctx context.Context, ownerID, sourceID string) (string, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(transcriptKey(ownerID, sourceID)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch transcript: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript body: %w", err)
	}

	return string(data), nil
}

// DeleteTranscript removes the transcript for one source.
func (s *S3Archive) DeleteTranscript(ctx context.Context, ownerID, sourceID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(transcriptKey(ownerID, sourceID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	return nil
}

// Exists checks whether a transcript is archived for one source.
func (s *S3Archive) Exists(ctx context.Context, ownerID, sourceID string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(transcriptKey(ownerID, sourceID)),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check transcript existence: %w", err)
	}
	return true, nil
}
