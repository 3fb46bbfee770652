package indices

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "searchsync/internal/errors"
	"searchsync/internal/indexing"
	"searchsync/internal/json"

	"github.com/go-chi/chi/v5"
)

// IndexService is the part of indexing.Service the admin API drives.
type IndexService interface {
	Indices() []string
	CreateIndex(ctx context.Context, index string) (indexing.Engine, indexing.DocumentType, error)
	ScheduleBulkExport(ctx context.Context, index, class string) (int, error)
	ScheduleExport(ctx context.Context, index, class string, id int64) (bool, error)
	ScheduleDelete(ctx context.Context, index, class string, id int64) error
}

var _ IndexService = (*indexing.Service)(nil)

type IndicesHandler struct {
	service IndexService
}

func NewIndicesHandler(svc IndexService) *IndicesHandler {
	return &IndicesHandler{service: svc}
}

// Routes mounts the handlers under the caller's router.
func (h *IndicesHandler) Routes(r chi.Router) {
	r.Get("/indices", h.ListIndices)
	r.Post("/indices/{index}", h.CreateIndex)
	r.Post("/indices/{index}/export", h.BulkExport)
	r.Post("/indices/{index}/classes/{class}/records/{id}", h.ExportRecord)
	r.Delete("/indices/{index}/classes/{class}/records/{id}", h.DeleteRecord)
}

func (h *IndicesHandler) ListIndices(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusOK, ListIndicesResponse{Indices: h.service.Indices()})
}

func (h *IndicesHandler) CreateIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	index := chi.URLParam(r, "index")

	slog.InfoContext(ctx, "Creating index", "index", index)

	engine, docType, err := h.service.CreateIndex(ctx, index)
	if err != nil {
		slog.WarnContext(ctx, "Failed to create index", "index", index, "error", err)
		apperrors.RespondError(w, r, err)
		return
	}

	json.Write(w, http.StatusCreated, CreateIndexResponse{Engine: engine, DocumentType: docType})
}

func (h *IndicesHandler) BulkExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	index := chi.URLParam(r, "index")

	req := BulkExportRequest{}
	if err := json.Read(r, &req); err != nil {
		slog.WarnContext(ctx, "Invalid request body", "error", err)
		apperrors.RespondError(w, r, apperrors.New(apperrors.ErrInvalidInput, "Body must be a JSON object with an optional class.", err))
		return
	}

	jobs, err := h.service.ScheduleBulkExport(ctx, index, req.Class)
	if err != nil {
		slog.WarnContext(ctx, "Failed to schedule bulk export", "index", index, "error", err)
		apperrors.RespondError(w, r, err)
		return
	}

	json.Write(w, http.StatusAccepted, BulkExportResponse{Index: index, Jobs: jobs})
}

func (h *IndicesHandler) ExportRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	index, class, id, ok := recordParams(w, r)
	if !ok {
		return
	}

	queued, err := h.service.ScheduleExport(ctx, index, class, id)
	if err != nil {
		slog.WarnContext(ctx, "Failed to schedule record export", "index", index, "class", class, "record_id", id, "error", err)
		apperrors.RespondError(w, r, err)
		return
	}

	json.Write(w, http.StatusAccepted, RecordResponse{Index: index, Class: class, RecordID: id, Queued: queued})
}

func (h *IndicesHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	index, class, id, ok := recordParams(w, r)
	if !ok {
		return
	}

	if err := h.service.ScheduleDelete(ctx, index, class, id); err != nil {
		slog.WarnContext(ctx, "Failed to schedule record delete", "index", index, "class", class, "record_id", id, "error", err)
		apperrors.RespondError(w, r, err)
		return
	}

	json.Write(w, http.StatusAccepted, RecordResponse{Index: index, Class: class, RecordID: id, Queued: true})
}

func recordParams(w http.ResponseWriter, r *http.Request) (string, string, int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		apperrors.RespondError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, err, "Record ID %q must be a positive integer", raw))
		return "", "", 0, false
	}
	return chi.URLParam(r, "index"), chi.URLParam(r, "class"), id, true
}
