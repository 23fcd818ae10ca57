package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	auditsvc "warden/internal/audit"
	dErrors "warden/pkg/domain-errors"
	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/httputil"
	"warden/pkg/platform/strings"
	"warden/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, q auditsvc.Query) ([]audit.Record, error)
}

// Handler serves GET /api/audit.
type Handler struct {
	logger *slog.Logger
	trail  Service
}

func New(trail Service, logger *slog.Logger) *Handler {
	return &Handler{trail: trail, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/audit", h.handleList)
}

type listResponse struct {
	Records []audit.Record `json:"records"`
	Count   int            `json:"count"`
}

// handleList accepts entity_type (comma separated), entity_id and limit.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	params := r.URL.Query()

	q := auditsvc.Query{EntityTypes: strings.SplitList(params.Get("entity_type"))}
	if raw := params.Get("entity_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "entity_id must be an integer"))
			return
		}
		q.EntityID = &id
	}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		q.Limit = limit
	}

	records, err := h.trail.List(ctx, q)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to list audit records",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Records: records, Count: len(records)})
}
