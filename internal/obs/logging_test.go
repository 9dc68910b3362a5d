package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLoggerLine(t *testing.T) {
	var buf bytes.Buffer
	l := RequestLogger{Logger: zerolog.New(&buf), Headers: []string{"X-Actor"}}

	var ctxLogged bool
	handler := middleware.RequestID(l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		ctxLogged = true
		w.WriteHeader(http.StatusConflict)
	})))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/orders/o-1", nil)
	req.Header.Set("X-Actor", "ops@example.com")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, ctxLogged)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, line map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &line))
	assert.NotEmpty(t, inner["request_id"])
	assert.Equal(t, inner["request_id"], line["request_id"])
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, float64(http.StatusConflict), line["status"])
	assert.Equal(t, "ops@example.com", line["x_actor"])
}

func TestRequestLoggerSkipsPaths(t *testing.T) {
	var buf bytes.Buffer
	l := RequestLogger{Logger: zerolog.New(&buf), SkipPaths: []string{"/health/live"}}
	l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Zero(t, buf.Len())
}

func TestNewLoggerConsoleFormat(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
	var buf bytes.Buffer
	logger := newLogger(&buf, "console", "warn")
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "{")
}
