package events

import (
	"os"
)

// BulkExportEvent asks a worker to export one batch of a class.
type BulkExportEvent struct {
	Index  string `json:"index"`
	Class  string `json:"class"`
	Offset int    `json:"offset"`
	RunID  string `json:"run_id"` // Groups the batches of one scheduled export
}

// ExportRecordEvent asks a worker to create or update one record's document.
type ExportRecordEvent struct {
	Index    string `json:"index"`
	Class    string `json:"class"`
	RecordID int64  `json:"record_id"`
}

// DeleteRecordEvent asks a worker to remove one record's document.
type DeleteRecordEvent struct {
	Index    string `json:"index"`
	Class    string `json:"class"`
	RecordID int64  `json:"record_id"`
}

type EventConfig struct {
	Stream       string
	BulkExport   string
	ExportRecord string
	DeleteRecord string
}

func NewEventConfig() *EventConfig {
	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	return &EventConfig{
		Stream:       get("EVENT_STREAM", "SEARCHSYNC"),
		BulkExport:   get("EVENT_BULK_EXPORT", "searchsync.export.bulk"),
		ExportRecord: get("EVENT_EXPORT_RECORD", "searchsync.export.record"),
		DeleteRecord: get("EVENT_DELETE_RECORD", "searchsync.delete.record"),
	}
}

// Subjects lists every subject the stream must capture.
func (c *EventConfig) Subjects() []string {
	return []string{c.BulkExport, c.ExportRecord, c.DeleteRecord}
}
