package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditsvc "warden/internal/audit"
	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/audit/store/memory"
	"warden/pkg/testutil"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memory.NewInMemoryStore()
	for i := int64(1); i <= 2; i++ {
		id := i
		require.NoError(t, store.Record(context.Background(), audit.Record{
			Operation:  audit.OperationCreate,
			EntityType: "Invoice",
			EntityID:   &id,
			NewState:   audit.Snapshot(`{"id":1}`),
		}))
	}
	r := chi.NewRouter()
	New(auditsvc.NewService(store), slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestHandleList(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		name   string
		query  string
		status int
		code   string
		count  int
	}{
		{name: "recent", query: "", status: http.StatusOK, count: 2},
		{name: "by entity", query: "?entity_type=Invoice&entity_id=2", status: http.StatusOK, count: 1},
		{name: "by type", query: "?entity_type=Invoice,Note&limit=1", status: http.StatusOK, count: 1},
		{name: "unknown entity", query: "?entity_type=Invoice&entity_id=9", status: http.StatusOK, count: 0},
		{name: "bad entity id", query: "?entity_type=Invoice&entity_id=x", status: http.StatusBadRequest, code: "bad_request"},
		{name: "bad limit", query: "?limit=-1", status: http.StatusBadRequest, code: "bad_request"},
		{name: "entity id without type", query: "?entity_id=1", status: http.StatusBadRequest, code: "validation_error"},
		{name: "entity id with two types", query: "?entity_type=Invoice,Note&entity_id=1", status: http.StatusBadRequest, code: "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/api/audit"+tt.query, nil))
			if tt.status != http.StatusOK {
				testutil.AssertError(t, rr, tt.status, tt.code)
				return
			}
			testutil.AssertStatus(t, rr, http.StatusOK)
			body := testutil.UnmarshalResponse[listResponse](t, rr)
			assert.Equal(t, tt.count, body.Count)
			assert.Len(t, body.Records, tt.count)
		})
	}
}
