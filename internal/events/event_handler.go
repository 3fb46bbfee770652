package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"searchsync/internal/indexing"
)

var _ indexing.JobQueue = (*EventHandler)(nil)

// EventHandler publishes indexing jobs onto the bus.
type EventHandler struct {
	bus    Bus
	config *EventConfig
	logger *slog.Logger
}

func NewEventHandler(bus Bus, config *EventConfig, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		bus:    bus,
		config: config,
		logger: logger,
	}
}

func (h *EventHandler) EnqueueBulkExport(ctx context.Context, job indexing.BulkExportJob) error {
	evt := BulkExportEvent{Index: job.Index, Class: job.Class, Offset: job.Offset, RunID: job.RunID}

	h.logger.DebugContext(ctx, "Raising BulkExportEvent",
		"index", evt.Index,
		"class", evt.Class,
		"offset", evt.Offset,
		"run_id", evt.RunID,
	)

	// A retried schedule call produces a new run id, so only exact repeats
	// of one batch are deduplicated.
	msgID := fmt.Sprintf("bulk.%s.%s.%s.%d", evt.RunID, evt.Index, evt.Class, evt.Offset)
	return h.publish(ctx, h.config.BulkExport, evt, msgID)
}

func (h *EventHandler) EnqueueExport(ctx context.Context, job indexing.RecordJob) error {
	evt := ExportRecordEvent{Index: job.Index, Class: job.Class, RecordID: job.RecordID}

	h.logger.InfoContext(ctx, "Raising ExportRecordEvent",
		"index", evt.Index,
		"class", evt.Class,
		"record_id", evt.RecordID,
	)

	// Every publish of a record must export its latest state: no dedup.
	return h.publish(ctx, h.config.ExportRecord, evt, "")
}

func (h *EventHandler) EnqueueDelete(ctx context.Context, job indexing.RecordJob) error {
	evt := DeleteRecordEvent{Index: job.Index, Class: job.Class, RecordID: job.RecordID}

	h.logger.InfoContext(ctx, "Raising DeleteRecordEvent",
		"index", evt.Index,
		"class", evt.Class,
		"record_id", evt.RecordID,
	)

	msgID := fmt.Sprintf("delete.%s.%s.%d", evt.Index, evt.Class, evt.RecordID)
	return h.publish(ctx, h.config.DeleteRecord, evt, msgID)
}

func (h *EventHandler) publish(ctx context.Context, subject string, evt any, msgID string) error {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to marshal event", "subject", subject, "error", err)
		return err
	}

	if err := h.bus.Publish(ctx, subject, data, msgID); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}
