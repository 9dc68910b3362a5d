package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyLimit(t *testing.T) {
	cases := []struct {
		name          string
		max           int64
		body          string
		contentLength int64
		status        int
	}{
		{name: "within limit", max: 10, body: "hello", contentLength: 5, status: http.StatusOK},
		{name: "unknown length oversized", max: 5, body: "excessive", contentLength: -1, status: http.StatusRequestEntityTooLarge},
		{name: "declared length oversized", max: 5, body: "content", contentLength: 100, status: http.StatusRequestEntityTooLarge},
		{name: "exact limit", max: 5, body: "exact", contentLength: -1, status: http.StatusOK},
		{name: "no limit", max: 0, body: strings.Repeat("x", 64), contentLength: 64, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var captured string
			handler := BodyLimit{Max: tc.max}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				data, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				captured = string(data)
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(tc.body))
			req.ContentLength = tc.contentLength
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.body, captured)
			} else {
				assert.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
			}
		})
	}
}
