package audit

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backoffice-toko/internal/common"
	"github.com/noah-isme/backoffice-toko/internal/obs"
)

var verbs = map[string]string{
	http.MethodPost:   "create",
	http.MethodPut:    "update",
	http.MethodPatch:  "update",
	http.MethodDelete: "delete",
}

// HTTPRecorder writes an audit entry for every admin write after the handler
// has answered, failed writes included.
type HTTPRecorder struct {
	Service *Service
	OnError func(error)
}

// Writes is chi middleware. GET, HEAD and OPTIONS pass through unrecorded.
func (r HTTPRecorder) Writes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		verb, ok := verbs[req.Method]
		if !ok || r.Service == nil || !r.Service.Enabled {
			next.ServeHTTP(w, req)
			return
		}

		rec := obs.NewStatusRecorder(w)
		next.ServeHTTP(rec, req)

		var resourceID, route string
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			route = rctx.RoutePattern()
			if vals := rctx.URLParams.Values; len(vals) > 0 {
				resourceID = vals[len(vals)-1]
			}
		}
		resource := buildResource("", route)
		action := ""
		if resource != "unknown" {
			action = resource + "." + verb
		}

		if err := r.Service.Record(req.Context(), req, action, resource, resourceID, rec.Status(), requestMetadata(req)); err != nil && r.OnError != nil {
			r.OnError(err)
		}
	})
}

func requestMetadata(req *http.Request) []byte {
	meta := map[string]any{}
	if key := strings.TrimSpace(req.Header.Get(common.IdempotencyHeader)); key != "" {
		meta["idempotencyKey"] = key
	}
	if q := req.URL.RawQuery; q != "" {
		meta["query"] = q
	}
	if len(meta) == 0 {
		return nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return data
}
