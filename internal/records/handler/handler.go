// Package handler exposes the records use cases over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"warden/internal/records/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Service defines the records operations the handler needs.
type Service interface {
	CreateReservation(ctx context.Context, req models.ReservationRequest) (*models.Reservation, error)
	UpdateReservation(ctx context.Context, id int64, req models.ReservationRequest) (*models.Reservation, error)
	DeleteReservation(ctx context.Context, id int64) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	ListReservations(ctx context.Context) []*models.Reservation
	CreateInvoice(ctx context.Context, req models.InvoiceRequest) (*models.Invoice, error)
	CreateNote(ctx context.Context, req models.NoteRequest) (*models.Note, error)
}

type Handler struct {
	logger  *slog.Logger
	records Service
}

func New(records Service, logger *slog.Logger) *Handler {
	return &Handler{records: records, logger: logger}
}

// Register registers the records routes with the chi router. Authentication
// is applied by the router that mounts these routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/reservations", func(r chi.Router) {
		r.Post("/", h.handleCreateReservation)
		r.Get("/", h.handleListReservations)
		r.Get("/{id}", h.handleGetReservation)
		r.Put("/{id}", h.handleUpdateReservation)
		r.Delete("/{id}", h.handleDeleteReservation)
	})
	r.Post("/api/invoices", h.handleCreateInvoice)
	r.Post("/api/notes", h.handleCreateNote)
}

func (h *Handler) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.ReservationRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.records.CreateReservation(ctx, req)
	if err != nil {
		h.fail(ctx, w, "failed to create reservation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleListReservations(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"reservations": h.records.ListReservations(r.Context()),
	})
}

func (h *Handler) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	res, err := h.records.GetReservation(ctx, id)
	if err != nil {
		h.fail(ctx, w, "failed to get reservation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleUpdateReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req models.ReservationRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.records.UpdateReservation(ctx, id, req)
	if err != nil {
		h.fail(ctx, w, "failed to update reservation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.records.DeleteReservation(ctx, id); err != nil {
		h.fail(ctx, w, "failed to delete reservation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.InvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.records.CreateInvoice(ctx, req)
	if err != nil {
		h.fail(ctx, w, "failed to create invoice", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.NoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	note, err := h.records.CreateNote(ctx, req)
	if err != nil {
		h.fail(ctx, w, "failed to create note", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, note)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid id"))
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	requestID := requestcontext.RequestID(ctx)
	if dErrors.HasCode(err, dErrors.CodeInternal) || !isDomain(err) {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err.Error())
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err.Error())
	}
	httputil.WriteError(w, err)
}

func isDomain(err error) bool {
	_, ok := dErrors.As(err)
	return ok
}
