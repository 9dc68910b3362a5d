package coupon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminStub struct {
	rules   []Rule
	created []Rule
	limit   int
	offset  int
	active  map[string]bool
	err     error
}

func (s *adminStub) List(_ context.Context, limit, offset int) ([]Rule, error) {
	s.limit, s.offset = limit, offset
	return s.rules, s.err
}

func (s *adminStub) Create(_ context.Context, rule Rule) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, rule)
	return nil
}

func (s *adminStub) SetActive(_ context.Context, code string, active bool) error {
	if s.err != nil {
		return s.err
	}
	if s.active == nil {
		s.active = map[string]bool{}
	}
	s.active[code] = active
	return nil
}

func serveAdmin(store AdminStore, method, target, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewHandler(store).Routes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rr
}

func TestCreateHandlerNormalizesCode(t *testing.T) {
	store := &adminStub{}

	rr := serveAdmin(store, http.MethodPost, "/coupons", `{"code":" save10 ","kind":"percent","value":"10","minSpend":"50"}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, store.created, 1)
	assert.Equal(t, "SAVE10", store.created[0].Code)
	assert.True(t, store.created[0].Active)
	assert.True(t, decimal.NewFromInt(50).Equal(store.created[0].MinSpend))
}

func TestCreateHandlerValidation(t *testing.T) {
	cases := map[string]struct {
		body  string
		field string
	}{
		"zero value":       {`{"code":"A","kind":"fixed","value":"0"}`, "value"},
		"percent over 100": {`{"code":"A","kind":"percent","value":"120"}`, "value"},
		"unknown kind":     {`{"code":"A","kind":"bogo","value":"5"}`, "kind"},
		"window reversed":  {`{"code":"A","kind":"fixed","value":"5","validFrom":"2026-02-01T00:00:00Z","validTo":"2026-01-01T00:00:00Z"}`, "validTo"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := &adminStub{}
			rr := serveAdmin(store, http.MethodPost, "/coupons", tc.body)
			require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
			assert.Contains(t, rr.Body.String(), tc.field)
			assert.Empty(t, store.created)
		})
	}
}

func TestCreateHandlerDuplicate(t *testing.T) {
	rr := serveAdmin(&adminStub{err: ErrDuplicateCode}, http.MethodPost, "/coupons", `{"code":"A","kind":"fixed","value":"5"}`)

	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), `"CONFLICT"`)
}

func TestSetActiveHandler(t *testing.T) {
	store := &adminStub{}

	rr := serveAdmin(store, http.MethodPatch, "/coupons/save10", `{"active":false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]bool{"SAVE10": false}, store.active)

	rr = serveAdmin(store, http.MethodPatch, "/coupons/save10", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = serveAdmin(&adminStub{err: ErrNotFound}, http.MethodPatch, "/coupons/nope", `{"active":true}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListHandlerPaginates(t *testing.T) {
	store := &adminStub{rules: []Rule{{Code: "SAVE10", Kind: KindPercent, Value: decimal.NewFromInt(10)}}}

	rr := serveAdmin(store, http.MethodGet, "/coupons?page=2&limit=5", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, store.limit)
	assert.Equal(t, 5, store.offset)
	assert.Contains(t, rr.Body.String(), `"SAVE10"`)
}
