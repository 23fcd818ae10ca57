package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/records/models"
	"warden/internal/records/service"
	"warden/internal/records/store"
	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/audit/recorder"
	"warden/pkg/platform/audit/store/memory"
	"warden/pkg/platform/lifecycle"
	"warden/pkg/testutil"
)

func newRouter(t *testing.T) (http.Handler, *memory.InMemoryStore) {
	t.Helper()
	trail := memory.NewInMemoryStore()
	hooks := &lifecycle.Hooks{}
	hooks.Register(recorder.New(recorder.WithSink(trail)))

	h := New(service.New(store.NewEngine(hooks)), slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)
	return r, trail
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.DoRequest(h, testutil.NewRawRequest(t, method, path, body))
}

func TestReservationLifecycle(t *testing.T) {
	router, trail := newRouter(t)

	rec := do(t, router, http.MethodPost, "/api/reservations", `{"guest":"Ada","room":"101","nights":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":1`)

	rec = do(t, router, http.MethodPut, "/api/reservations/1", `{"guest":"Ada","room":"202","nights":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"room":"202"`)

	rec = do(t, router, http.MethodGet, "/api/reservations/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/reservations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reservations"`)

	rec = do(t, router, http.MethodDelete, "/api/reservations/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	records, err := trail.ListByEntity(context.Background(), "Reservation", 1)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, audit.OperationCreate, records[0].Operation)
	assert.Equal(t, audit.OperationUpdate, records[1].Operation)
	assert.Equal(t, audit.OperationDelete, records[2].Operation)
}

func TestErrors(t *testing.T) {
	router, _ := newRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "malformed body", method: http.MethodPost, path: "/api/reservations", body: `{`, status: http.StatusBadRequest, code: "bad_request"},
		{name: "validation", method: http.MethodPost, path: "/api/reservations", body: `{"room":"1","nights":1}`, status: http.StatusBadRequest, code: "validation_error"},
		{name: "bad id", method: http.MethodGet, path: "/api/reservations/abc", status: http.StatusBadRequest, code: "bad_request"},
		{name: "missing reservation", method: http.MethodGet, path: "/api/reservations/7", status: http.StatusNotFound, code: "not_found"},
		{name: "invoice for missing reservation", method: http.MethodPost, path: "/api/invoices", body: `{"reservation_id":7,"amount_cents":100,"currency":"EUR"}`, status: http.StatusNotFound, code: "not_found"},
		{name: "empty note", method: http.MethodPost, path: "/api/notes", body: `{"text":""}`, status: http.StatusBadRequest, code: "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			testutil.AssertError(t, rec, tt.status, tt.code)
		})
	}
}

func TestCreateNote(t *testing.T) {
	router, trail := newRouter(t)
	rec := do(t, router, http.MethodPost, "/api/notes", `{"text":"late check-out"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	recent, err := trail.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Nil(t, recent[0].EntityID)
}

func TestActorAttribution(t *testing.T) {
	router, trail := newRouter(t)
	now := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

	testutil.Given(t, "an authenticated caller", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/reservations", models.ReservationRequest{Guest: "Grace", Room: "7", Nights: 1})
		req = testutil.WithIdentity(req, "alice")
		req = testutil.WithRequestMetadata(req, "req-77", now)

		testutil.When(t, "a reservation is created", func(t *testing.T) {
			rr := testutil.DoRequest(router, req)
			testutil.AssertStatus(t, rr, http.StatusCreated)
			res := testutil.UnmarshalResponse[models.Reservation](t, rr)
			assert.Equal(t, "alice", res.CreatedBy)

			testutil.Then(t, "the audit record names the caller and the request", func(t *testing.T) {
				records, err := trail.ListByEntity(context.Background(), "Reservation", res.ID)
				require.NoError(t, err)
				require.Len(t, records, 1)
				assert.Equal(t, "alice", records[0].ActorSubject())
				assert.Equal(t, "req-77", records[0].RequestID)
				assert.Equal(t, now, records[0].Timestamp)
			})

			testutil.And(t, "the snapshot holds the stored reservation", func(t *testing.T) {
				records, err := trail.ListByEntity(context.Background(), "Reservation", res.ID)
				require.NoError(t, err)
				require.Len(t, records, 1)
				assert.Contains(t, string(records[0].NewState), `"created_by":"alice"`)
			})
		})
	})
}
