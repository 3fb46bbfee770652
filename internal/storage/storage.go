package storage

import (
	"context"
	"errors"
	"time"
)

// Bucket represents a logical storage zone.
type Bucket string

// Wrapper for standard errors so checking them is consistent
var (
	ErrNotFound     = errors.New("storage: file not found")
	ErrAccessDenied = errors.New("storage: access denied")
)

// Provider abstracts S3, MinIO, or Google Cloud Storage.
type Provider interface {
	// Stat checks the object exists.
	Stat(ctx context.Context, bucket Bucket, key string) error

	// PublicURL is the unsigned URL of an object in a public-read bucket.
	PublicURL(bucket Bucket, key string) string

	// PresignGet generates a temporary download URL (if bucket is private).
	PresignGet(ctx context.Context, bucket Bucket, key string, expiry time.Duration) (string, error)
}
