package indexing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "searchsync/internal/errors"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultSettleTimeout = 30 * time.Second
	DefaultPollInterval  = 250 * time.Millisecond
)

var errStillPresent = errors.New("document type still listed")

// Resolver finds or provisions the engine and document type behind an index.
type Resolver struct {
	indexer       Indexer
	logger        *slog.Logger
	settleTimeout time.Duration
	pollInterval  time.Duration
}

type ResolverOption func(*Resolver)

// WithSettleTimeout bounds how long Resolve waits for a deleted document
// type to disappear before giving up.
func WithSettleTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.settleTimeout = d }
}

// WithPollInterval sets the first delay between absence checks.
func WithPollInterval(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.pollInterval = d }
}

func NewResolver(indexer Indexer, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		indexer:       indexer,
		logger:        logger,
		settleTimeout: DefaultSettleTimeout,
		pollInterval:  DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve gets or creates the engine, then replaces the index's document
// type with a fresh one. An existing document type is always treated as
// stale: it is deleted and recreated only once the service no longer lists it.
func (r *Resolver) Resolve(ctx context.Context, cfg IndexConfig) (Engine, DocumentType, error) {
	engine, found, err := r.lookupEngine(ctx, cfg.Name)
	if err != nil {
		return Engine{}, DocumentType{}, err
	}
	if !found {
		r.logger.InfoContext(ctx, "Creating engine", "engine", cfg.Name)
		engine, err = r.indexer.CreateEngine(ctx, cfg.Name)
		if err != nil {
			return Engine{}, DocumentType{}, apperrors.Newf(apperrors.ErrProvisioning, err, "create engine %q", cfg.Name)
		}
	}

	name := cfg.DocumentTypeName()
	existing, found, err := r.lookupDocumentType(ctx, engine.ID, name)
	if err != nil {
		return Engine{}, DocumentType{}, err
	}
	if found {
		r.logger.InfoContext(ctx, "Replacing document type", "engine", engine.Name, "document_type", name, "document_type_id", existing.ID)
		if err := r.indexer.DeleteDocumentType(ctx, engine.ID, existing.ID); err != nil {
			return Engine{}, DocumentType{}, apperrors.Newf(apperrors.ErrProvisioning, err, "delete document type %q of engine %q", name, engine.Name)
		}
		if err := r.awaitAbsence(ctx, engine, name); err != nil {
			return Engine{}, DocumentType{}, err
		}
	}

	docType, err := r.indexer.CreateDocumentType(ctx, engine.ID, name)
	if err != nil {
		return Engine{}, DocumentType{}, apperrors.Newf(apperrors.ErrProvisioning, err, "create document type %q in engine %q", name, engine.Name)
	}

	r.logger.InfoContext(ctx, "Index resolved", "engine", engine.Name, "engine_id", engine.ID, "document_type", docType.Name, "document_type_id", docType.ID)
	return engine, docType, nil
}

// ResolveForSync only looks the engine and document type up. Sync operations
// never provision or replace anything.
func (r *Resolver) ResolveForSync(ctx context.Context, cfg IndexConfig) (Engine, DocumentType, error) {
	engine, found, err := r.lookupEngine(ctx, cfg.Name)
	if err != nil {
		return Engine{}, DocumentType{}, err
	}
	if !found {
		return Engine{}, DocumentType{}, apperrors.Newf(apperrors.ErrConfiguration, nil, "engine %q does not exist", cfg.Name)
	}

	name := cfg.DocumentTypeName()
	docType, found, err := r.lookupDocumentType(ctx, engine.ID, name)
	if err != nil {
		return Engine{}, DocumentType{}, err
	}
	if !found {
		return Engine{}, DocumentType{}, apperrors.Newf(apperrors.ErrConfiguration, nil, "document type %q does not exist in engine %q", name, cfg.Name)
	}
	return engine, docType, nil
}

func (r *Resolver) lookupEngine(ctx context.Context, name string) (Engine, bool, error) {
	engines, err := r.indexer.Engines(ctx)
	if err != nil {
		return Engine{}, false, err
	}
	for _, e := range engines {
		if e.Name == name {
			return e, true, nil
		}
	}
	return Engine{}, false, nil
}

func (r *Resolver) lookupDocumentType(ctx context.Context, engineID, name string) (DocumentType, bool, error) {
	types, err := r.indexer.DocumentTypes(ctx, engineID)
	if err != nil {
		return DocumentType{}, false, err
	}
	for _, t := range types {
		if t.Name == name {
			return t, true, nil
		}
	}
	return DocumentType{}, false, nil
}

// awaitAbsence polls the engine's document types until name is gone.
func (r *Resolver) awaitAbsence(ctx context.Context, engine Engine, name string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.pollInterval
	b.MaxInterval = 5 * time.Second

	polls := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		polls++
		_, found, err := r.lookupDocumentType(ctx, engine.ID, name)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if found {
			return struct{}{}, errStillPresent
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(r.settleTimeout))

	if errors.Is(err, errStillPresent) {
		return apperrors.Newf(apperrors.ErrProvisioning, err, "document type %q of engine %q still present after %s", name, engine.Name, r.settleTimeout)
	}
	if err != nil {
		return apperrors.Newf(apperrors.ErrProvisioning, err, "wait for deletion of document type %q", name)
	}

	r.logger.DebugContext(ctx, "Document type deletion settled", "engine", engine.Name, "document_type", name, "polls", polls)
	return nil
}
