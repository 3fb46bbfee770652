package idempotency

import (
	"context"
	"sync"
	"time"

	"searchsync/internal/cache"
	apperrors "searchsync/internal/errors"
)

const (
	keyPrefix  = "searchsync:idempotency:"
	lockSuffix = ":lock"
	dataSuffix = ":data"

	// DefaultLockTTL bounds how long a running request blocks its replays.
	DefaultLockTTL = 30 * time.Second
	// DefaultDataTTL is how long a finished response is replayed.
	DefaultDataTTL = 24 * time.Hour
)

type Store interface {
	Lock(ctx context.Context, key string) (bool, error)
	GetResponse(ctx context.Context, key string) (*Response, bool, error)
	SaveResponse(ctx context.Context, key string, resp Response) error
	Delete(ctx context.Context, key string) error
}

// Response is a recorded admin response.
type Response struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	cache   *cache.RedisClient
	lockTTL time.Duration
	dataTTL time.Duration
}

func NewRedisStore(c *cache.RedisClient, dataTTL time.Duration) *RedisStore {
	if dataTTL <= 0 {
		dataTTL = DefaultDataTTL
	}
	return &RedisStore{cache: c, lockTTL: DefaultLockTTL, dataTTL: dataTTL}
}

func (s *RedisStore) SaveResponse(ctx context.Context, key string, resp Response) error {
	if err := cache.Set(s.cache, ctx, keyPrefix+key+dataSuffix, resp, s.dataTTL); err != nil {
		return apperrors.New(apperrors.ErrInternal, "Failed to record response", err)
	}

	// Waiting replays read the data once the lock is gone.
	_ = cache.Del(s.cache, ctx, keyPrefix+key+lockSuffix)
	return nil
}

func (s *RedisStore) GetResponse(ctx context.Context, key string) (*Response, bool, error) {
	return cache.Get[Response](s.cache, ctx, keyPrefix+key+dataSuffix)
}

func (s *RedisStore) Lock(ctx context.Context, key string) (bool, error) {
	_, found, err := s.GetResponse(ctx, key)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	return cache.SetNX(s.cache, ctx, keyPrefix+key+lockSuffix, "1", s.lockTTL)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_ = cache.Del(s.cache, ctx, keyPrefix+key+lockSuffix)
	_ = cache.Del(s.cache, ctx, keyPrefix+key+dataSuffix)
	return nil
}

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps responses for the life of the process. Entries never expire.
type InMemoryStore struct {
	mu        sync.Mutex
	locks     map[string]bool
	responses map[string]Response
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{locks: make(map[string]bool), responses: make(map[string]Response)}
}

func (s *InMemoryStore) Lock(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.responses[key]; done || s.locks[key] {
		return false, nil
	}
	s.locks[key] = true
	return true, nil
}

func (s *InMemoryStore) GetResponse(_ context.Context, key string) (*Response, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.responses[key]
	if !ok {
		return nil, false, nil
	}
	return &resp, true, nil
}

func (s *InMemoryStore) SaveResponse(_ context.Context, key string, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[key] = resp
	delete(s.locks, key)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	delete(s.responses, key)
	return nil
}
