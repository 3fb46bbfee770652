package indexing

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"searchsync/internal/schema"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("searchsync/indexing")

// SyncClient writes documents of one index to the remote service.
// Every call resolves the target without provisioning anything.
type SyncClient struct {
	indexer  Indexer
	resolver *Resolver
	cfg      IndexConfig
	logger   *slog.Logger
}

func NewSyncClient(indexer Indexer, resolver *Resolver, cfg IndexConfig, logger *slog.Logger) *SyncClient {
	return &SyncClient{
		indexer:  indexer,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.With("index", cfg.Name, "class", cfg.Class),
	}
}

// Config returns the index configuration the client was built for.
func (c *SyncClient) Config() IndexConfig {
	return c.cfg
}

// CreateIndex provisions the engine and a fresh document type.
func (c *SyncClient) CreateIndex(ctx context.Context) (Engine, DocumentType, error) {
	ctx, span := c.start(ctx, "indexing.CreateIndex")
	defer span.End()

	engine, docType, err := c.resolver.Resolve(ctx, c.cfg)
	return engine, docType, record(span, err)
}

// Create creates or updates one document.
func (c *SyncClient) Create(ctx context.Context, doc schema.Document) error {
	ctx, span := c.start(ctx, "indexing.Create", attribute.Int64("record_id", doc.ExternalID))
	defer span.End()

	engine, docType, err := c.resolver.ResolveForSync(ctx, c.cfg)
	if err != nil {
		return record(span, err)
	}

	if err := c.indexer.Upsert(ctx, engine.ID, docType.ID, doc.WithSearchableTypes()); err != nil {
		c.logger.ErrorContext(ctx, "Failed to upsert document", "record_id", doc.ExternalID, "error", err)
		return record(span, err)
	}
	return nil
}

// BulkCreate creates or updates many documents in one remote call.
func (c *SyncClient) BulkCreate(ctx context.Context, docs []schema.Document) error {
	ctx, span := c.start(ctx, "indexing.BulkCreate", attribute.Int("documents", len(docs)))
	defer span.End()

	if len(docs) == 0 {
		return nil
	}

	engine, docType, err := c.resolver.ResolveForSync(ctx, c.cfg)
	if err != nil {
		return record(span, err)
	}

	sent := make([]schema.Document, len(docs))
	for i, doc := range docs {
		sent[i] = doc.WithSearchableTypes()
	}

	if err := c.indexer.BulkUpsert(ctx, engine.ID, docType.ID, sent); err != nil {
		c.logger.ErrorContext(ctx, "Failed to bulk upsert documents", "documents", len(docs), "error", err)
		return record(span, err)
	}
	return nil
}

// Delete removes one document. Deleting an absent document succeeds.
func (c *SyncClient) Delete(ctx context.Context, recordID int64) error {
	ctx, span := c.start(ctx, "indexing.Delete", attribute.Int64("record_id", recordID))
	defer span.End()

	engine, docType, err := c.resolver.ResolveForSync(ctx, c.cfg)
	if err != nil {
		return record(span, err)
	}

	err = c.indexer.Delete(ctx, engine.ID, docType.ID, strconv.FormatInt(recordID, 10))
	if errors.Is(err, ErrNotFound) {
		c.logger.DebugContext(ctx, "Document already absent", "record_id", recordID)
		return nil
	}
	return record(span, err)
}

func (c *SyncClient) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("index", c.cfg.Name), attribute.String("class", c.cfg.Class))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func record(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
