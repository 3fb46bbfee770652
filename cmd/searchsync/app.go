package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"searchsync/internal/cache"
	"searchsync/internal/catalog"
	"searchsync/internal/database/postgresql"
	"searchsync/internal/events"
	"searchsync/internal/exporter"
	"searchsync/internal/indexing"
	"searchsync/internal/schema"
	"searchsync/internal/settings"
	"searchsync/internal/storage"
	"searchsync/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
)

// application holds the long-lived dependencies of one command run.
type application struct {
	config   Config
	logger   *slog.Logger
	catalog  *catalog.Catalog
	conn     *pgxpool.Pool
	cache    *cache.RedisClient
	settings *settings.Provider
	eventBus *events.NATSBus
	indexer  indexing.Indexer
	service  *indexing.Service

	closers []func(context.Context) error
}

func newLogger(level slog.Level) *slog.Logger {
	// Use JSON traced logging
	baseHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(telemetry.NewTraceHandler(baseHandler))
}

// open connects everything a command needs. Without a queue, jobs run
// inline in the calling process instead of being published.
func open(ctx context.Context, cfg Config, logger *slog.Logger, withQueue bool) (*application, error) {
	app := &application{config: cfg, logger: logger}
	if err := app.init(ctx, withQueue); err != nil {
		app.close(context.Background())
		return nil, err
	}
	return app, nil
}

func (app *application) init(ctx context.Context, withQueue bool) error {
	cfg := app.config

	if cfg.CollectorURL != "" {
		app.logger.Info("Exporting traces", "collector", cfg.CollectorURL)
		shutdown, err := telemetry.InitTracer(ctx, "searchsync", cfg.CollectorURL)
		if err != nil {
			return fmt.Errorf("failed to init tracer: %w", err)
		}
		app.closers = append(app.closers, shutdown)
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return err
	}
	app.catalog = cat

	if err := app.openSettings(ctx); err != nil {
		return err
	}

	app.logger.Info("Connecting to database")
	conn, err := postgresql.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	app.conn = conn
	app.closers = append(app.closers, func(context.Context) error { conn.Close(); return nil })

	indexer, err := app.openIndexer()
	if err != nil {
		return err
	}
	app.indexer = indexer
	app.closers = append(app.closers, func(context.Context) error { return indexer.Close() })

	exporterOpts, err := app.exporterOptions()
	if err != nil {
		return err
	}

	var queue indexing.JobQueue
	inline := &inlineQueue{logger: app.logger}
	if withQueue {
		app.logger.Info("Connecting to event bus", "endpoint", cfg.NatsURL)
		bus, err := events.NewNATSBus(cfg.NatsURL, "searchsync", app.logger,
			events.WithHandlerTimeout(cfg.HandlerTimeout),
			events.WithMaxAckPending(cfg.MaxAckPending),
		)
		if err != nil {
			return err
		}
		app.eventBus = bus
		app.closers = append(app.closers, func(context.Context) error { return bus.Close() })

		if err := bus.EnsureStream(cfg.EventsConfig.Stream, cfg.EventsConfig.Subjects()); err != nil {
			return err
		}
		queue = events.NewEventHandler(bus, cfg.EventsConfig, app.logger)
	} else {
		queue = inline
	}

	store := postgresql.NewStore(conn, cat.Classes...)
	registry := indexing.NewRegistry(app.settings, cat.Indices...)
	resolver := indexing.NewResolver(indexer, app.logger, indexing.WithSettleTimeout(cfg.SettleTimeout))

	app.service = indexing.NewService(registry, indexer, resolver, store, queue, app.logger,
		indexing.WithBatchLength(cfg.BatchLength),
		indexing.WithClientName(cfg.ClientName),
		indexing.WithExporterOptions(exporterOpts...),
	)
	inline.service = app.service
	return nil
}

// openSettings layers the settings stored in Redis over the environment.
func (app *application) openSettings(ctx context.Context) error {
	sources := []settings.Source{}

	if app.config.Redis.Addr != "" {
		app.logger.Info("Connecting to Redis", "addr", app.config.Redis.Addr)
		rdb, err := cache.NewRedisClient(ctx, app.config.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.cache = rdb
		app.closers = append(app.closers, func(context.Context) error { return rdb.Close() })
		sources = append(sources, settings.NewRedis(rdb, app.config.SettingsKey))
	}

	sources = append(sources, settings.FromEnv())
	app.settings = settings.NewProvider(sources...)
	return nil
}

func (app *application) openIndexer() (indexing.Indexer, error) {
	cfg := app.config

	switch cfg.Backend {
	case backendSwiftype:
		app.logger.Info("Using Swiftype backend", "endpoint", cfg.Swiftype.Endpoint)
		if cfg.Swiftype.InsecureSkipVerify {
			app.logger.Warn("TLS certificate verification is disabled for Swiftype")
		}
		return indexing.NewSwiftypeClient(cfg.Swiftype, app.settings, app.logger)
	case backendTypesense:
		app.logger.Info("Using Typesense backend", "url", cfg.TypesenseURL)
		return indexing.NewTypesenseClient(cfg.TypesenseKey, cfg.TypesenseURL, app.logger), nil
	}
	return nil, fmt.Errorf("unknown search backend %q", cfg.Backend)
}

func (app *application) exporterOptions() ([]exporter.Option, error) {
	cfg := app.config

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time zone %q: %w", cfg.TimeZone, err)
	}
	opts := []exporter.Option{
		exporter.WithTranslator(&schema.Translator{Location: loc, StrictNumeric: cfg.StrictNumeric}),
	}

	switch {
	case cfg.Files.Endpoint != "":
		app.logger.Info("Connecting to object storage", "endpoint", cfg.Files.Endpoint, "bucket", cfg.Files.Bucket)
		provider, err := storage.NewMinioProvider(cfg.Files.Endpoint, cfg.Files.AccessKeyID, cfg.Files.SecretAccessKey, cfg.Files.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object storage: %w", err)
		}
		opts = append(opts, exporter.WithFileURLs(&storage.BucketURLs{
			Provider: provider,
			Bucket:   storage.Bucket(cfg.Files.Bucket),
			Public:   cfg.Files.Public,
			Expiry:   cfg.Files.PresignExpiry,
			Verify:   cfg.Files.Verify,
		}))
	case cfg.Files.PublicBaseURL != "":
		opts = append(opts, exporter.WithFileURLs(storage.PublicBaseURL(cfg.Files.PublicBaseURL)))
	default:
		app.logger.Warn("No file location configured, file relations export titles only")
	}
	return opts, nil
}

// close releases dependencies in reverse order of acquisition.
func (app *application) close(ctx context.Context) {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i](ctx))
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("Shutdown error", "error", err)
	}
}

var _ indexing.JobQueue = (*inlineQueue)(nil)

// inlineQueue runs jobs synchronously through the service handlers.
type inlineQueue struct {
	service *indexing.Service
	logger  *slog.Logger
}

func (q *inlineQueue) EnqueueBulkExport(ctx context.Context, job indexing.BulkExportJob) error {
	q.logger.InfoContext(ctx, "Running bulk export batch", "index", job.Index, "class", job.Class, "offset", job.Offset)
	return q.service.HandleBulkExport(ctx, job)
}

func (q *inlineQueue) EnqueueExport(ctx context.Context, job indexing.RecordJob) error {
	return q.service.HandleExportRecord(ctx, job)
}

func (q *inlineQueue) EnqueueDelete(ctx context.Context, job indexing.RecordJob) error {
	return q.service.HandleDeleteRecord(ctx, job)
}
