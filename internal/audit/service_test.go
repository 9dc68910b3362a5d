package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backoffice-toko/internal/common"
	"github.com/noah-isme/backoffice-toko/internal/obs"
)

type stubStore struct {
	entries []Entry
	listed  ListParams
}

func (s *stubStore) Insert(_ context.Context, e Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func (s *stubStore) List(_ context.Context, params ListParams) ([]Entry, error) {
	s.listed = params
	return s.entries, nil
}

func TestServiceRecord(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: true, SamplingRate: 1}

	req := httptest.NewRequest(http.MethodPut, "https://api.test/api/v1/admin/orders/abc?dryRun=1", nil)
	req.Header.Set(ActorHeader, "ops@toko")
	req.Header.Set("X-Request-ID", "req-123")
	req.RemoteAddr = "10.0.0.2:54321"
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/admin/orders/{id}"))

	require.NoError(t, svc.Record(req.Context(), req, "", "", "abc", http.StatusOK, nil))
	require.Len(t, store.entries, 1)

	e := store.entries[0]
	assert.Equal(t, "ops@toko", e.Actor)
	assert.Equal(t, "PUT /api/v1/admin/orders/{id}", e.Action)
	assert.Equal(t, "orders", e.ResourceType)
	assert.Equal(t, "abc", e.ResourceID)
	assert.Equal(t, "10.0.0.2", e.IP)
	assert.Equal(t, "req-123", e.RequestID)
	assert.JSONEq(t, `{"query":"dryRun=1"}`, string(e.Metadata))
}

func TestServiceRecordDisabled(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons", nil)
	require.NoError(t, svc.Record(req.Context(), req, "", "", "", 0, nil))
	assert.Empty(t, store.entries)
}

func TestBuildResource(t *testing.T) {
	assert.Equal(t, "loyalty.settings", buildResource("", "/api/v1/admin/loyalty/settings"))
	assert.Equal(t, "coupons", buildResource("", "/api/v1/admin/coupons/{code}"))
	assert.Equal(t, "unknown", buildResource("", ""))
	assert.Equal(t, "custom", buildResource("custom", "/x"))
}

func TestRecorderWritesOnly(t *testing.T) {
	store := &stubStore{}
	recorder := HTTPRecorder{Service: &Service{Store: store, Enabled: true}}

	r := chi.NewRouter()
	r.Use(recorder.Writes)
	r.Get("/api/v1/admin/orders/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Put("/api/v1/admin/orders/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusConflict) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders/o-1", nil))
	assert.Empty(t, store.entries)

	put := httptest.NewRequest(http.MethodPut, "/api/v1/admin/orders/o-1", nil)
	put.Header.Set(common.IdempotencyHeader, "idem-1")
	r.ServeHTTP(httptest.NewRecorder(), put)
	require.Len(t, store.entries, 1)
	assert.Equal(t, http.StatusConflict, store.entries[0].Status)
	assert.Equal(t, "orders.update", store.entries[0].Action)
	assert.JSONEq(t, `{"idempotencyKey":"idem-1"}`, string(store.entries[0].Metadata))
	assert.Equal(t, "o-1", store.entries[0].ResourceID)
	assert.Equal(t, Anonymous, store.entries[0].Actor)
}

func TestHandlerList(t *testing.T) {
	store := &stubStore{entries: []Entry{{ID: 7, Action: "POST /api/v1/admin/orders"}}}
	r := chi.NewRouter()
	Handler{Store: store}.Routes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit-logs?resourceType=orders&page=2&limit=10", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, ListParams{ResourceType: "orders", Limit: 10, Offset: 10}, store.listed)

	var body struct {
		Data []Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, int64(7), body.Data[0].ID)
}
