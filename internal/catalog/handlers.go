package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backoffice-toko/internal/common"
	"github.com/noah-isme/backoffice-toko/internal/pricing"
)

// Handler exposes the catalog endpoints the order editor reads.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Products handles GET /api/v1/admin/products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	p := common.ParsePagination(r, 20)
	result, err := h.service.ListProducts(r.Context(), ListParams{
		Query:  r.URL.Query().Get("q"),
		Limit:  p.PerPage,
		Offset: p.Offset(),
	})
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": p.Meta(result.Total),
	})
}

// Product handles GET /api/v1/admin/products/{id}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// Addons handles GET /api/v1/admin/addons. Inactive addons are hidden unless
// ?all=true is passed.
func (h *Handler) Addons(w http.ResponseWriter, r *http.Request) {
	addons, err := h.service.Addons(r.Context())
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	if r.URL.Query().Get("all") != "true" {
		active := make([]Addon, 0, len(addons))
		for _, a := range addons {
			if a.Active {
				active = append(active, a)
			}
		}
		addons = active
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": addons})
}

// Routes mounts the catalog endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/products", h.Products)
	r.Get("/products/{id}", h.Product)
	r.Get("/addons", h.Addons)
}

// HTTPError maps catalog and line validation errors onto API errors.
func HTTPError(err error) error {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return common.NotFound("product not found", err)
	case errors.Is(err, ErrVariantRequired),
		errors.Is(err, ErrVariantNotFound),
		errors.Is(err, ErrWeightRequired),
		errors.Is(err, ErrAddonUnavailable),
		errors.Is(err, ErrAddonsNotAllowed),
		errors.Is(err, pricing.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrWeightQuantity),
		errors.Is(err, pricing.ErrInvalidWeight),
		errors.Is(err, pricing.ErrInvalidAddon),
		errors.Is(err, pricing.ErrNegativePrice):
		return common.Unprocessable("INVALID_LINE", err.Error(), err)
	case errors.Is(err, pricing.ErrUnknownWeightUnit):
		return common.Unprocessable("UNKNOWN_WEIGHT_UNIT", err.Error(), err)
	default:
		return err
	}
}
