package indices

import "searchsync/internal/indexing"

type ListIndicesResponse struct {
	Indices []string `json:"indices"`
}

type CreateIndexResponse struct {
	Engine       indexing.Engine       `json:"engine"`
	DocumentType indexing.DocumentType `json:"document_type"`
}

type BulkExportRequest struct {
	// Class defaults to the index's class.
	Class string `json:"class"`
}

type BulkExportResponse struct {
	Index string `json:"index"`
	Jobs  int    `json:"jobs"`
}

type RecordResponse struct {
	Index    string `json:"index"`
	Class    string `json:"class"`
	RecordID int64  `json:"record_id"`
	Queued   bool   `json:"queued"`
}
