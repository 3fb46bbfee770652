package storage_test

import (
	"context"
	"testing"
	"time"

	"searchsync/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Stat(ctx context.Context, bucket storage.Bucket, key string) error {
	return m.Called(bucket, key).Error(0)
}

func (m *MockProvider) PublicURL(bucket storage.Bucket, key string) string {
	return m.Called(bucket, key).String(0)
}

func (m *MockProvider) PresignGet(ctx context.Context, bucket storage.Bucket, key string, expiry time.Duration) (string, error) {
	args := m.Called(bucket, key, expiry)
	return args.String(0), args.Error(1)
}

func TestBucketURLs_Public(t *testing.T) {
	provider := new(MockProvider)
	provider.On("Stat", storage.Bucket("assets"), "uploads/prices.pdf").Return(nil)
	provider.On("PublicURL", storage.Bucket("assets"), "uploads/prices.pdf").Return("https://s3.example.com/assets/uploads/prices.pdf")

	urls := &storage.BucketURLs{Provider: provider, Bucket: "assets", Public: true, Verify: true}

	got, err := urls.AbsoluteURL(context.Background(), "/uploads/prices.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example.com/assets/uploads/prices.pdf", got)
	provider.AssertExpectations(t)
}

func TestBucketURLs_PrivatePresigns(t *testing.T) {
	provider := new(MockProvider)
	provider.On("PresignGet", storage.Bucket("private"), "a.pdf", time.Hour).Return("https://signed", nil)

	urls := &storage.BucketURLs{Provider: provider, Bucket: "private", Expiry: time.Hour}

	got, err := urls.AbsoluteURL(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://signed", got)
	provider.AssertNotCalled(t, "Stat", mock.Anything, mock.Anything)
}

func TestBucketURLs_MissingObject(t *testing.T) {
	provider := new(MockProvider)
	provider.On("Stat", storage.Bucket("assets"), "gone.pdf").Return(storage.ErrNotFound)

	urls := &storage.BucketURLs{Provider: provider, Bucket: "assets", Public: true, Verify: true}

	_, err := urls.AbsoluteURL(context.Background(), "gone.pdf")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPublicBaseURL(t *testing.T) {
	got, err := storage.PublicBaseURL("https://cdn.example.com/public-files/").AbsoluteURL(context.Background(), "/assets/a b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/public-files/assets/a%20b.pdf", got)

	_, err = storage.PublicBaseURL("").AbsoluteURL(context.Background(), "x")
	assert.Error(t, err)
}
