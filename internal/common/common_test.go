package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestWriteErrorAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, Conflict("order was modified", errors.New("stale revision")))

	require.Equal(t, http.StatusConflict, rr.Code)
	body := decodeError(t, rr)
	require.Equal(t, "CONFLICT", body.Error.Code)
	require.Equal(t, "order was modified", body.Error.Message)
}

func TestWriteErrorHidesInternalErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection refused")
}

type quoteLine struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gte=0"`
}

type quoteBody struct {
	Items []quoteLine `json:"items" validate:"required,min=1,dive"`
	Note  string      `json:"note" validate:"max=5"`
}

func TestValidateReportsJSONFieldPaths(t *testing.T) {
	err := Validate(quoteBody{Items: []quoteLine{{Quantity: -1}}, Note: "too long"})
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	require.Equal(t, "VALIDATION_FAILED", appErr.Code)

	fields := appErr.Details.(map[string]any)["fields"].(map[string]string)
	require.Equal(t, "is required", fields["items[0].productId"])
	require.Contains(t, fields["items[0].quantity"], "greater than or equal")
	require.Contains(t, fields, "note")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[],"bogus":1}`))
	var body quoteBody
	err := DecodeJSON(req, &body)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)
}

func TestDecodeJSONEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	var body quoteBody
	err := DecodeJSON(req, &body)
	require.Error(t, err)
	require.Equal(t, "request body is required", err.(*AppError).Message)
}

func TestParsePaginationClampsLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&limit=1000", nil)
	p := ParsePagination(req, 20)
	require.Equal(t, PageParams{Page: 3, PerPage: MaxPerPage}, p)
	require.Equal(t, 200, p.Offset())
}

func TestPaginationMeta(t *testing.T) {
	p := ParsePagination(httptest.NewRequest(http.MethodGet, "/?page=abc&limit=-4", nil), 20)
	require.Equal(t, PageParams{Page: 1, PerPage: 20}, p)
	require.Equal(t, Pagination{Page: 1, PerPage: 20, TotalItems: 41, TotalPages: 3}, p.Meta(41))
	require.Equal(t, 0, PageParams{}.Offset())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	require.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "garbage, 203.0.113.9")
	require.Equal(t, "203.0.113.9", ClientIP(req))
}

func newIdem(t *testing.T) (Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Idem{R: client, TTL: time.Minute}, mr
}

func TestIdempotencyRejectsReplay(t *testing.T) {
	idem, mr := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders", nil)
		req.Header.Set(IdempotencyHeader, "abc")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if i == 0 {
			require.Equal(t, http.StatusCreated, rr.Code)
		} else {
			require.Equal(t, http.StatusConflict, rr.Code)
			require.Equal(t, "IDEMPOTENT_REPLAY", decodeError(t, rr).Error.Code)
		}
	}
	require.Equal(t, 1, calls)
	require.Len(t, mr.Keys(), 1)
}

func TestIdempotencyReleasesKeyOnFailure(t *testing.T) {
	idem, mr := newIdem(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, http.StatusUnprocessableEntity, "INSUFFICIENT_POINTS", "not enough points", nil)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders", nil)
	req.Header.Set(IdempotencyHeader, "retry-me")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Empty(t, mr.Keys())
}
