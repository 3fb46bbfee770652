package indexing

import (
	"context"
	"log/slog"

	apperrors "searchsync/internal/errors"
	"searchsync/internal/exporter"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBatchLength is the number of records one bulk export job covers.
const DefaultBatchLength = 100

// BulkExportJob is one unit of a bulk export: the records of Class starting at Offset.
type BulkExportJob struct {
	Index  string
	Class  string
	Offset int
	// RunID groups the jobs scheduled by one ScheduleBulkExport call.
	RunID string
}

// RecordJob addresses a single record of an index.
type RecordJob struct {
	Index    string
	Class    string
	RecordID int64
}

// JobQueue is the task scheduler jobs are handed to.
type JobQueue interface {
	EnqueueBulkExport(ctx context.Context, job BulkExportJob) error
	EnqueueExport(ctx context.Context, job RecordJob) error
	EnqueueDelete(ctx context.Context, job RecordJob) error
}

// Handles the business logic
type Service struct {
	registry     *Registry
	indexer      Indexer
	resolver     *Resolver
	store        exporter.Store
	queue        JobQueue
	logger       *slog.Logger
	client       string
	batchLength  int
	exporterOpts []exporter.Option
}

type ServiceOption func(*Service)

// WithBatchLength sets how many records each bulk export job covers.
func WithBatchLength(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.batchLength = n
		}
	}
}

// WithClientName sets the client identity handed to document enrichers.
func WithClientName(name string) ServiceOption {
	return func(s *Service) { s.client = name }
}

// WithExporterOptions adds options to every exporter the service builds.
func WithExporterOptions(opts ...exporter.Option) ServiceOption {
	return func(s *Service) { s.exporterOpts = append(s.exporterOpts, opts...) }
}

func NewService(registry *Registry, indexer Indexer, resolver *Resolver, store exporter.Store, queue JobQueue, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		registry:    registry,
		indexer:     indexer,
		resolver:    resolver,
		store:       store,
		queue:       queue,
		logger:      logger,
		client:      "swiftype",
		batchLength: DefaultBatchLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateIndex provisions the engine of index and replaces its document type.
func (s *Service) CreateIndex(ctx context.Context, index string) (Engine, DocumentType, error) {
	sync, _, err := s.session(ctx, index, "")
	if err != nil {
		return Engine{}, DocumentType{}, err
	}
	return sync.CreateIndex(ctx)
}

// ScheduleBulkExport enqueues one job per batch of visible records and
// returns the number of jobs enqueued.
func (s *Service) ScheduleBulkExport(ctx context.Context, index, class string) (int, error) {
	sync, cls, err := s.session(ctx, index, class)
	if err != nil {
		return 0, err
	}
	cfg := sync.Config()
	if cfg.CrawlBased {
		s.logger.WarnContext(ctx, "Index is crawl based, not scheduling exports", "index", index)
		return 0, nil
	}

	total, err := s.store.Count(ctx, exporter.Query{Class: cls.Class, OnlyVisible: cls.HasVisibilityFilter()})
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrInternal, err, "count %s records", cls.Class)
	}

	pages := (total + s.batchLength - 1) / s.batchLength
	runID := uuid.NewString()
	for page := range pages {
		job := BulkExportJob{Index: index, Class: cls.Class, Offset: page * s.batchLength, RunID: runID}
		if err := s.queue.EnqueueBulkExport(ctx, job); err != nil {
			return page, apperrors.Newf(apperrors.ErrTransport, err, "enqueue %s export at offset %d", cls.Class, job.Offset)
		}
	}

	s.logger.InfoContext(ctx, "Scheduled bulk export",
		"index", index, "class", cls.Class, "records", total, "jobs", pages, "run_id", runID)
	return pages, nil
}

// ScheduleExport enqueues the export of one record. Records that do not
// exist yield NOT_FOUND; versioned records without a live version are not
// enqueued and report false.
func (s *Service) ScheduleExport(ctx context.Context, index, class string, id int64) (bool, error) {
	sync, cls, err := s.session(ctx, index, class)
	if err != nil {
		return false, err
	}
	if sync.Config().CrawlBased {
		s.logger.WarnContext(ctx, "Index is crawl based, not scheduling export", "index", index, "record_id", id)
		return false, nil
	}

	rec, err := s.store.Get(ctx, cls.Class, id)
	if err != nil {
		return false, apperrors.Newf(apperrors.ErrInternal, err, "load %s #%d", cls.Class, id)
	}
	if rec == nil {
		return false, apperrors.Newf(apperrors.ErrNotFound, nil, "%s #%d does not exist", cls.Class, id)
	}
	if cls.Versioned {
		live, err := s.store.LiveVersion(ctx, cls.Class, id)
		if err != nil {
			return false, apperrors.Newf(apperrors.ErrInternal, err, "load live %s #%d", cls.Class, id)
		}
		if live == nil {
			s.logger.InfoContext(ctx, "Record is not published, not scheduling export", "index", index, "class", cls.Class, "record_id", id)
			return false, nil
		}
	}

	if err := s.queue.EnqueueExport(ctx, RecordJob{Index: index, Class: cls.Class, RecordID: id}); err != nil {
		return false, apperrors.Newf(apperrors.ErrTransport, err, "enqueue export of %s #%d", cls.Class, id)
	}
	return true, nil
}

// ScheduleDelete enqueues the removal of one record from the index.
func (s *Service) ScheduleDelete(ctx context.Context, index, class string, id int64) error {
	_, cls, err := s.session(ctx, index, class)
	if err != nil {
		return err
	}
	if err := s.queue.EnqueueDelete(ctx, RecordJob{Index: index, Class: cls.Class, RecordID: id}); err != nil {
		return apperrors.Newf(apperrors.ErrTransport, err, "enqueue delete of %s #%d", cls.Class, id)
	}
	return nil
}

// HandleBulkExport exports one batch and sends it in a single bulk call.
// Permanent failures are logged and swallowed so the job is acknowledged;
// anything else is returned so the queue redelivers it.
func (s *Service) HandleBulkExport(ctx context.Context, job BulkExportJob) error {
	ctx, span := tracer.Start(ctx, "indexing.HandleBulkExport", trace.WithAttributes(
		attribute.String("index", job.Index),
		attribute.String("class", job.Class),
		attribute.Int("offset", job.Offset),
	))
	defer span.End()

	logger := s.logger.With("index", job.Index, "class", job.Class, "offset", job.Offset, "run_id", job.RunID)

	sync, cls, err := s.session(ctx, job.Index, job.Class)
	if err != nil {
		return s.settle(ctx, logger, record(span, err))
	}

	docs, err := s.exporter(sync.Config()).BulkExport(ctx, cls.Class, job.Offset, s.batchLength, s.client)
	if err != nil {
		logger.ErrorContext(ctx, "Bulk export failed", "error", err)
		return record(span, err)
	}

	if err := sync.BulkCreate(ctx, docs); err != nil {
		return s.settle(ctx, logger, record(span, err))
	}

	logger.InfoContext(ctx, "Bulk export sent", "documents", len(docs))
	return nil
}

// HandleExportRecord exports one record and creates or updates its document.
func (s *Service) HandleExportRecord(ctx context.Context, job RecordJob) error {
	ctx, span := tracer.Start(ctx, "indexing.HandleExportRecord", trace.WithAttributes(
		attribute.String("index", job.Index),
		attribute.String("class", job.Class),
		attribute.Int64("record_id", job.RecordID),
	))
	defer span.End()

	logger := s.logger.With("index", job.Index, "class", job.Class, "record_id", job.RecordID)

	sync, cls, err := s.session(ctx, job.Index, job.Class)
	if err != nil {
		return s.settle(ctx, logger, record(span, err))
	}

	rec, err := s.store.Get(ctx, cls.Class, job.RecordID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load record", "error", err)
		return record(span, err)
	}
	if rec == nil {
		// Return nil to Ack. We can't index what doesn't exist.
		logger.WarnContext(ctx, "Record not found (might be deleted), skipping export")
		return nil
	}

	doc, err := s.exporter(sync.Config()).Export(ctx, rec, s.client)
	if err != nil {
		return s.settle(ctx, logger, record(span, err))
	}
	if doc == nil {
		logger.InfoContext(ctx, "Record has no exportable document, skipping")
		return nil
	}

	if err := sync.Create(ctx, *doc); err != nil {
		return s.settle(ctx, logger, record(span, err))
	}
	return nil
}

// HandleDeleteRecord removes one document. Absent documents count as deleted.
func (s *Service) HandleDeleteRecord(ctx context.Context, job RecordJob) error {
	ctx, span := tracer.Start(ctx, "indexing.HandleDeleteRecord", trace.WithAttributes(
		attribute.String("index", job.Index),
		attribute.String("class", job.Class),
		attribute.Int64("record_id", job.RecordID),
	))
	defer span.End()

	logger := s.logger.With("index", job.Index, "class", job.Class, "record_id", job.RecordID)

	sync, _, err := s.session(ctx, job.Index, job.Class)
	if err != nil {
		return s.settle(ctx, logger, record(span, err))
	}
	if err := sync.Delete(ctx, job.RecordID); err != nil {
		return s.settle(ctx, logger, record(span, err))
	}
	return nil
}

// session resolves the index configuration once and builds the sync client
// used for the rest of the operation. An empty class means the index's own.
func (s *Service) session(ctx context.Context, index, class string) (*SyncClient, exporter.ClassSchema, error) {
	cfg, err := s.registry.Lookup(ctx, index)
	if err != nil {
		return nil, exporter.ClassSchema{}, err
	}

	if class == "" {
		class = cfg.Class
	}
	if class != cfg.Class {
		return nil, exporter.ClassSchema{}, apperrors.Newf(apperrors.ErrInvalidInput, nil, "index %q holds %s, not %s", index, cfg.Class, class)
	}

	cls, err := s.store.Schema(class)
	if err != nil {
		return nil, exporter.ClassSchema{}, apperrors.Newf(apperrors.ErrInvalidInput, err, "class %s is not exportable", class)
	}

	return NewSyncClient(s.indexer, s.resolver, cfg, s.logger), cls, nil
}

func (s *Service) exporter(cfg IndexConfig) *exporter.Exporter {
	opts := append([]exporter.Option{exporter.WithSearchableAttributes(cfg.SearchableAttributes)}, s.exporterOpts...)
	if cfg.PageLink != "" {
		opts = append(opts, exporter.WithEnrichers(exporter.LinkEnricher{Client: s.client, PageLink: cfg.PageLink}))
	}
	return exporter.New(s.store, s.logger, opts...)
}

// settle applies the ack/retry policy: permanent errors are logged and
// acknowledged, transient ones are returned for redelivery.
func (s *Service) settle(ctx context.Context, logger *slog.Logger, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsPermanent(err) {
		// PERMANENT ERROR: retrying will not help. Return nil to Ack/Discard.
		logger.ErrorContext(ctx, "Discarding job", "code", apperrors.CodeOf(err), "error", err)
		return nil
	}
	// TRANSIENT ERROR: the remote index or store is unavailable. Return err to Retry.
	logger.ErrorContext(ctx, "Job failed, will be retried", "code", apperrors.CodeOf(err), "error", err)
	return err
}

// Indices lists the names of the configured indices.
func (s *Service) Indices() []string {
	return s.registry.Names()
}
