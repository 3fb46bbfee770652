package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"searchsync/internal/exporter"
)

var (
	_ exporter.FileURLs = (*BucketURLs)(nil)
	_ exporter.FileURLs = PublicBaseURL("")
)

// BucketURLs resolves file keys against one bucket. Public buckets get
// plain object URLs, private ones a presigned URL valid for Expiry.
type BucketURLs struct {
	Provider Provider
	Bucket   Bucket
	Public   bool
	Expiry   time.Duration
	// Verify checks the object exists before handing out its URL.
	Verify bool
}

func (b *BucketURLs) AbsoluteURL(ctx context.Context, key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("empty file key")
	}

	if b.Verify {
		if err := b.Provider.Stat(ctx, b.Bucket, key); err != nil {
			return "", fmt.Errorf("file %s/%s: %w", b.Bucket, key, err)
		}
	}

	if b.Public {
		return b.Provider.PublicURL(b.Bucket, key), nil
	}

	expiry := b.Expiry
	if expiry == 0 {
		expiry = 7 * 24 * time.Hour
	}
	return b.Provider.PresignGet(ctx, b.Bucket, key, expiry)
}

// PublicBaseURL prefixes file keys with the public files URL of the site.
type PublicBaseURL string

func (p PublicBaseURL) AbsoluteURL(_ context.Context, key string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("no public files URL configured")
	}
	return url.JoinPath(string(p), strings.TrimLeft(key, "/"))
}
