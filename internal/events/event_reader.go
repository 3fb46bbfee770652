package events

import (
	"context"
	"encoding/json"
	"log/slog"
)

type EventReader struct {
	bus    Bus
	config *EventConfig
	logger *slog.Logger
}

func NewEventReader(bus Bus, config *EventConfig, logger *slog.Logger) *EventReader {
	return &EventReader{
		bus:    bus,
		config: config,
		logger: logger,
	}
}

const queue = "searchsync-worker"

func (r *EventReader) SubscribeToBulkExportEvents(handler func(ctx context.Context, evt BulkExportEvent) error) error {
	return subscribe(r, r.config.BulkExport, "BulkExport", handler)
}

func (r *EventReader) SubscribeToExportRecordEvents(handler func(ctx context.Context, evt ExportRecordEvent) error) error {
	return subscribe(r, r.config.ExportRecord, "ExportRecord", handler)
}

func (r *EventReader) SubscribeToDeleteRecordEvents(handler func(ctx context.Context, evt DeleteRecordEvent) error) error {
	return subscribe(r, r.config.DeleteRecord, "DeleteRecord", handler)
}

func subscribe[T any](r *EventReader, subject, kind string, handler func(ctx context.Context, evt T) error) error {
	r.logger.Info("Subscribing to "+kind+" events", "subject", subject)

	_, err := r.bus.Subscribe(subject, queue, func(ctx context.Context, payload []byte) error {
		var evt T

		if err := json.Unmarshal(payload, &evt); err != nil {
			// Ack: a malformed payload will never decode.
			r.logger.ErrorContext(ctx, "Discarding malformed JSON event", "subject", subject, "error", err)
			return nil
		}

		// Errors from the handler are transient and redelivered.
		return handler(ctx, evt)
	})

	return err
}
