package indexing

import (
	"context"
	"errors"
	"slices"
	"strings"

	apperrors "searchsync/internal/errors"
)

// IndexConfig describes one logical index and the record class it holds.
type IndexConfig struct {
	Name                  string   `toml:"name"`
	Class                 string   `toml:"class"`
	CrawlBased            bool     `toml:"crawl_based"`
	SearchableAttributes  []string `toml:"searchable_attributes"`
	AttributesForFaceting []string `toml:"attributes_for_faceting"`
	// PageLink is the public URL prefix records of this index are viewed under.
	PageLink string `toml:"page_link"`
}

// DocumentTypeName is the remote document type holding the index's class.
func (c IndexConfig) DocumentTypeName() string {
	return strings.ToLower(c.Class)
}

// Credentials supplies the API key. Implementations are consulted on every
// request and must not cache beyond what their backing store does.
type Credentials interface {
	APIKey(ctx context.Context) (string, error)
}

// Settings is the per-deployment configuration of the remote service.
type Settings interface {
	Credentials
	// EngineName returns the deployment's engine name override, or "" when unset.
	EngineName(ctx context.Context) (string, error)
}

// Registry resolves logical index names to their configuration.
type Registry struct {
	indices  map[string]IndexConfig
	settings Settings
}

func NewRegistry(settings Settings, indices ...IndexConfig) *Registry {
	r := &Registry{
		indices:  make(map[string]IndexConfig, len(indices)),
		settings: settings,
	}
	for _, cfg := range indices {
		r.indices[cfg.Name] = cfg
	}
	return r
}

// Lookup returns the configuration of the named index with the deployment's
// engine name override applied. The result is meant to be held for one session.
func (r *Registry) Lookup(ctx context.Context, name string) (IndexConfig, error) {
	cfg, ok := r.indices[name]
	if !ok {
		return IndexConfig{}, apperrors.Newf(apperrors.ErrNotFound, nil, "index %q is not configured", name)
	}

	override, err := r.settings.EngineName(ctx)
	if err != nil {
		return IndexConfig{}, apperrors.New(apperrors.ErrConfiguration, "read engine name setting", err)
	}
	if override != "" {
		cfg.Name = override
	}

	cfg.SearchableAttributes = slices.Clone(cfg.SearchableAttributes)
	cfg.AttributesForFaceting = slices.Clone(cfg.AttributesForFaceting)
	return cfg, nil
}

// Names lists the configured logical index names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.indices))
	for name := range r.indices {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func asStatusError(err error, target **StatusError) bool {
	return err != nil && errors.As(err, target)
}
