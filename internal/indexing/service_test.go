package indexing_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"testing"
	"time"

	apperrors "searchsync/internal/errors"
	"searchsync/internal/exporter"
	"searchsync/internal/indexing"
	"searchsync/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var faqSchema = exporter.ClassSchema{
	Class: "FAQ",
	Fields: map[string]string{
		"ID":           "PrimaryKey",
		"Name":         "Varchar(255)",
		"Answer":       "HTMLText",
		"Created":      "Datetime",
		"ShowInSearch": "Boolean",
	},
}

type harness struct {
	store   *exporter.InMemoryStore
	indexer *indexing.InMemoryIndexer
	queue   *indexing.InMemoryQueue
	svc     *indexing.Service
}

func newHarness(t *testing.T, cfg indexing.IndexConfig, cls exporter.ClassSchema, opts ...indexing.ServiceOption) *harness {
	t.Helper()
	h := &harness{
		store:   exporter.NewInMemoryStore(cls),
		indexer: indexing.NewInMemoryIndexer(),
		queue:   indexing.NewInMemoryQueue(),
	}
	registry := indexing.NewRegistry(&fakeSettings{key: "k"}, cfg)
	h.svc = indexing.NewService(registry, h.indexer, fastResolver(h.indexer, time.Second), h.store, h.queue, quietLogger(), opts...)
	return h
}

func (h *harness) seed(n int) {
	for i := 1; i <= n; i++ {
		h.store.Add(&exporter.Record{
			ID:    int64(i),
			Class: "FAQ",
			Columns: []exporter.Column{
				{Name: "ID", Value: int64(i)},
				{Name: "Name", Value: fmt.Sprintf("Question %d", i)},
				{Name: "Answer", Value: "<p>Answer</p>"},
				{Name: "ShowInSearch", Value: true},
			},
		})
	}
}

func (h *harness) provision(t *testing.T) indexing.DocumentType {
	t.Helper()
	_, docType, err := h.svc.CreateIndex(context.Background(), "site")
	require.NoError(t, err)
	return docType
}

func TestScheduleBulkExport_OneJobPerBatch(t *testing.T) {
	h := newHarness(t, faqIndex, faqSchema)
	h.seed(250)

	jobs, err := h.svc.ScheduleBulkExport(context.Background(), "site", "FAQ")
	require.NoError(t, err)
	assert.Equal(t, 3, jobs)

	queued := h.queue.BulkJobs()
	require.Len(t, queued, 3)
	for i, job := range queued {
		assert.Equal(t, "site", job.Index)
		assert.Equal(t, "FAQ", job.Class)
		assert.Equal(t, i*indexing.DefaultBatchLength, job.Offset)
		assert.NotEmpty(t, job.RunID)
		assert.Equal(t, queued[0].RunID, job.RunID)
	}
}

func TestScheduleBulkExport_CountsOnlyVisibleRecords(t *testing.T) {
	h := newHarness(t, faqIndex, faqSchema, indexing.WithBatchLength(10))
	h.seed(10)
	h.store.Add(&exporter.Record{ID: 11, Class: "FAQ", Columns: []exporter.Column{{Name: "ShowInSearch", Value: false}}})

	jobs, err := h.svc.ScheduleBulkExport(context.Background(), "site", "")
	require.NoError(t, err)
	assert.Equal(t, 1, jobs)
}

func TestScheduleBulkExport_EmptyClass(t *testing.T) {
	h := newHarness(t, faqIndex, faqSchema)

	jobs, err := h.svc.ScheduleBulkExport(context.Background(), "site", "FAQ")
	require.NoError(t, err)
	assert.Zero(t, jobs)
	assert.Empty(t, h.queue.BulkJobs())
}

func TestScheduleBulkExport_CrawlBasedIndexIsSkipped(t *testing.T) {
	cfg := faqIndex
	cfg.CrawlBased = true
	h := newHarness(t, cfg, faqSchema)
	h.seed(5)

	jobs, err := h.svc.ScheduleBulkExport(context.Background(), "site", "FAQ")
	require.NoError(t, err)
	assert.Zero(t, jobs)
}

func TestScheduleBulkExport_RejectsUnknownTargets(t *testing.T) {
	h := newHarness(t, faqIndex, faqSchema)

	_, err := h.svc.ScheduleBulkExport(context.Background(), "nope", "FAQ")
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))

	_, err = h.svc.ScheduleBulkExport(context.Background(), "site", "Page")
	assert.Equal(t, apperrors.ErrInvalidInput, apperrors.CodeOf(err))
}

func TestScheduleBulkExport_QueueFailure(t *testing.T) {
	h := newHarness(t, faqIndex, faqSchema)
	h.seed(1)
	h.queue.Fail(errors.New("nats: timeout"))

	_, err := h.svc.ScheduleBulkExport(context.Background(), "site", "FAQ")
	assert.Equal(t, apperrors.ErrTransport, apperrors.CodeOf(err))
}

func TestScheduleExport(t *testing.T) {
	cls := faqSchema
	cls.Versioned = true
	h := newHarness(t, faqIndex, cls)
	h.seed(2)
	h.store.Publish(&exporter.Record{ID: 2, Class: "FAQ", Columns: []exporter.Column{{Name: "ID", Value: int64(2)}}})
	ctx := context.Background()

	queued, err := h.svc.ScheduleExport(ctx, "site", "FAQ", 1)
	require.NoError(t, err)
	assert.False(t, queued, "unpublished record")

	queued, err = h.svc.ScheduleExport(ctx, "site", "FAQ", 2)
	require.NoError(t, err)
	assert.True(t, queued)

	_, err = h.svc.ScheduleExport(ctx, "site", "FAQ", 99)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))

	assert.Equal(t, []indexing.RecordJob{{Index: "site", Class: "FAQ", RecordID: 2}}, h.queue.ExportJobs())
}

func TestScheduleDelete(t *testing.T) {
	h := newHarness(t, faqIndex, faqSchema)

	require.NoError(t, h.svc.ScheduleDelete(context.Background(), "site", "FAQ", 7))
	assert.Equal(t, []indexing.RecordJob{{Index: "site", Class: "FAQ", RecordID: 7}}, h.queue.DeleteJobs())
}

func TestHandleBulkExport_SendsBatch(t *testing.T) {
	h := newHarness(t, faqIndex, faqSchema, indexing.WithBatchLength(30))
	h.seed(45)
	docType := h.provision(t)

	require.NoError(t, h.svc.HandleBulkExport(context.Background(), indexing.BulkExportJob{Index: "site", Class: "FAQ", Offset: 0}))
	assert.Equal(t, 30, h.indexer.Count(docType.ID))

	require.NoError(t, h.svc.HandleBulkExport(context.Background(), indexing.BulkExportJob{Index: "site", Class: "FAQ", Offset: 30}))
	assert.Equal(t, 45, h.indexer.Count(docType.ID))

	doc, ok := h.indexer.Document(docType.ID, 45)
	require.True(t, ok)
	answer, _ := doc.Field("Answer")
	assert.Equal(t, schema.FieldSchema{Type: schema.String, Name: "Answer", Value: "Answer"}, answer)
}

func TestHandleBulkExport_UnprovisionedIndexIsAcked(t *testing.T) {
	h := newHarness(t, faqIndex, faqSchema)
	h.seed(3)

	err := h.svc.HandleBulkExport(context.Background(), indexing.BulkExportJob{Index: "site", Class: "FAQ"})
	assert.NoError(t, err, "configuration errors are permanent")

	for _, call := range h.indexer.Calls() {
		assert.NotContains(t, call, "BulkUpsert")
	}
}

func TestHandleBulkExport_TransientFailureIsRetried(t *testing.T) {
	h := newHarness(t, faqIndex, faqSchema)
	h.seed(3)
	h.provision(t)
	h.indexer.Fail("BulkUpsert", errors.New("502 bad gateway"))

	err := h.svc.HandleBulkExport(context.Background(), indexing.BulkExportJob{Index: "site", Class: "FAQ"})
	assert.Error(t, err)
}

func TestHandleExportRecord(t *testing.T) {
	cfg := faqIndex
	cfg.PageLink = "https://example.com/faq/view/"
	h := newHarness(t, cfg, faqSchema)
	h.seed(1)
	docType := h.provision(t)

	require.NoError(t, h.svc.HandleExportRecord(context.Background(), indexing.RecordJob{Index: "site", Class: "FAQ", RecordID: 1}))

	doc, ok := h.indexer.Document(docType.ID, 1)
	require.True(t, ok)
	link, ok := doc.Field("Link")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/faq/view/1", link.Value)
	assert.Equal(t, schema.String, link.Type)
}

func TestHandleExportRecord_PermanentFailuresAreAcked(t *testing.T) {
	h := newHarness(t, faqIndex, faqSchema)
	h.seed(1)
	docType := h.provision(t)
	bad, _ := h.store.Get(context.Background(), "FAQ", 1)
	bad.Set("Created", "not a date")

	ctx := context.Background()
	assert.NoError(t, h.svc.HandleExportRecord(ctx, indexing.RecordJob{Index: "site", Class: "FAQ", RecordID: 1}), "schema error")
	assert.NoError(t, h.svc.HandleExportRecord(ctx, indexing.RecordJob{Index: "site", Class: "FAQ", RecordID: 404}), "missing record")
	assert.NoError(t, h.svc.HandleExportRecord(ctx, indexing.RecordJob{Index: "gone", Class: "FAQ", RecordID: 1}), "unknown index")

	assert.Zero(t, h.indexer.Count(docType.ID))
}

func TestHandleDeleteRecord(t *testing.T) {
	h := newHarness(t, faqIndex, faqSchema)
	h.seed(1)
	docType := h.provision(t)
	ctx := context.Background()
	require.NoError(t, h.svc.HandleExportRecord(ctx, indexing.RecordJob{Index: "site", Class: "FAQ", RecordID: 1}))

	require.NoError(t, h.svc.HandleDeleteRecord(ctx, indexing.RecordJob{Index: "site", Class: "FAQ", RecordID: 1}))
	assert.Zero(t, h.indexer.Count(docType.ID))

	assert.NoError(t, h.svc.HandleDeleteRecord(ctx, indexing.RecordJob{Index: "site", Class: "FAQ", RecordID: 1}), "already absent")

	h.indexer.Fail("Delete", errors.New("timeout"))
	assert.Error(t, h.svc.HandleDeleteRecord(ctx, indexing.RecordJob{Index: "site", Class: "FAQ", RecordID: 1}))
}

func TestHandleBulkExport_UnencodableDocumentIsAcked(t *testing.T) {
	srv := newSwiftypeServer(t)
	srv.respond(http.MethodGet, "/api/v1/engines.json", http.StatusOK, `[{"id":"e1","name":"site"}]`)
	srv.respond(http.MethodGet, "/api/v1/engines/e1/document_types.json", http.StatusOK, `[{"id":"t1","name":"faq"}]`)

	settings := &fakeSettings{key: "k1"}
	client := newSwiftypeClient(t, srv, settings)

	cls := faqSchema
	cls.Fields = map[string]string{"ID": "PrimaryKey", "Score": "Float"}
	store := exporter.NewInMemoryStore(cls)
	store.Add(&exporter.Record{ID: 1, Class: "FAQ", Columns: []exporter.Column{
		{Name: "ID", Value: int64(1)},
		{Name: "Score", Value: math.NaN()},
	}})

	svc := indexing.NewService(indexing.NewRegistry(settings, faqIndex), client, fastResolver(client, time.Second), store, indexing.NewInMemoryQueue(), quietLogger())

	err := svc.HandleBulkExport(context.Background(), indexing.BulkExportJob{Index: "site", Class: "FAQ"})
	assert.NoError(t, err, "a batch that cannot be encoded is never retried")

	for _, r := range srv.captured() {
		assert.NotContains(t, r.Path, "bulk_create_or_update_verbose")
	}
}
