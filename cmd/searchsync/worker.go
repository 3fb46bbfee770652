package main

import (
	"context"
	"fmt"
	"net/http"

	"searchsync/internal/events"
	"searchsync/internal/indexing"
)

// runWorker consumes indexing jobs until ctx is cancelled. The bus is
// drained on shutdown so in-flight jobs finish.
func (app *application) runWorker(ctx context.Context) error {
	reader := events.NewEventReader(app.eventBus, app.config.EventsConfig, app.logger)
	svc := app.service

	// Bridge the event payloads to the service logic
	err := reader.SubscribeToBulkExportEvents(func(ctx context.Context, evt events.BulkExportEvent) error {
		return svc.HandleBulkExport(ctx, indexing.BulkExportJob{Index: evt.Index, Class: evt.Class, Offset: evt.Offset, RunID: evt.RunID})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to bulk export events: %w", err)
	}

	err = reader.SubscribeToExportRecordEvents(func(ctx context.Context, evt events.ExportRecordEvent) error {
		return svc.HandleExportRecord(ctx, indexing.RecordJob{Index: evt.Index, Class: evt.Class, RecordID: evt.RecordID})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to export events: %w", err)
	}

	err = reader.SubscribeToDeleteRecordEvents(func(ctx context.Context, evt events.DeleteRecordEvent) error {
		return svc.HandleDeleteRecord(ctx, indexing.RecordJob{Index: evt.Index, Class: evt.Class, RecordID: evt.RecordID})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to delete events: %w", err)
	}

	app.logger.Info("Worker is running and listening for events...")

	// Health check server for the orchestrator
	srv := &http.Server{
		Addr:    ":" + app.config.WorkerPort,
		Handler: healthHandler(app.healthChecks()),
	}
	return serve(ctx, srv, app.logger)
}
