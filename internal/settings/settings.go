// Package settings provides the per-deployment credentials and engine name
// of the remote search service. Values are looked up on every call so a
// rotated key or renamed engine applies to the next request.
package settings

import (
	"context"
	"fmt"
	"os"

	"searchsync/internal/cache"
	"searchsync/internal/indexing"
)

// DefaultKey is the Redis key deployment settings are stored under.
const DefaultKey = "searchsync:settings"

// Values holds one layer of settings. Empty fields defer to the next layer.
type Values struct {
	APIKey     string `json:"api_key,omitempty"`
	EngineName string `json:"engine_name,omitempty"`
}

// Source is one layer of settings.
type Source interface {
	Load(ctx context.Context) (Values, error)
}

var _ indexing.Settings = (*Provider)(nil)

// Provider layers sources: the first source with a non-empty value wins.
type Provider struct {
	sources []Source
}

func NewProvider(sources ...Source) *Provider {
	return &Provider{sources: sources}
}

func (p *Provider) APIKey(ctx context.Context) (string, error) {
	key, err := p.first(ctx, func(v Values) string { return v.APIKey })
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("no API key configured")
	}
	return key, nil
}

func (p *Provider) EngineName(ctx context.Context) (string, error) {
	return p.first(ctx, func(v Values) string { return v.EngineName })
}

func (p *Provider) first(ctx context.Context, pick func(Values) string) (string, error) {
	for _, src := range p.sources {
		v, err := src.Load(ctx)
		if err != nil {
			return "", err
		}
		if s := pick(v); s != "" {
			return s, nil
		}
	}
	return "", nil
}

// Static is a fixed layer, typically read from the environment at startup.
type Static Values

func (s Static) Load(context.Context) (Values, error) {
	return Values(s), nil
}

// FromEnv reads SWIFTYPE_API_KEY and SWIFTYPE_ENGINE_NAME.
func FromEnv() Static {
	return Static{
		APIKey:     os.Getenv("SWIFTYPE_API_KEY"),
		EngineName: os.Getenv("SWIFTYPE_ENGINE_NAME"),
	}
}

// Redis is the deployment layer, editable at runtime without a restart.
type Redis struct {
	client *cache.RedisClient
	key    string
}

func NewRedis(client *cache.RedisClient, key string) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Load(ctx context.Context) (Values, error) {
	v, found, err := cache.Get[Values](r.client, ctx, r.key)
	if err != nil {
		return Values{}, fmt.Errorf("load settings from %s: %w", r.key, err)
	}
	if !found {
		return Values{}, nil
	}
	return *v, nil
}

// Save replaces the stored settings.
func (r *Redis) Save(ctx context.Context, v Values) error {
	if v == (Values{}) {
		return cache.Del(r.client, ctx, r.key)
	}
	return cache.Set(r.client, ctx, r.key, v, 0)
}
