package order

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backoffice-toko/internal/catalog"
	"github.com/noah-isme/backoffice-toko/internal/common"
	"github.com/noah-isme/backoffice-toko/internal/coupon"
	"github.com/noah-isme/backoffice-toko/internal/draft"
	"github.com/noah-isme/backoffice-toko/internal/lock"
	"github.com/noah-isme/backoffice-toko/internal/loyalty"
	"github.com/noah-isme/backoffice-toko/internal/obs"
	"github.com/noah-isme/backoffice-toko/internal/pricing"
)

// Orders is the service surface used by the handlers.
type Orders interface {
	Quote(ctx context.Context, req Request) (Quote, error)
	Create(ctx context.Context, req Request) (Order, error)
	Update(ctx context.Context, id string, req Request) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, params ListParams) ([]Summary, int64, error)
}

// Handler exposes the back-office order endpoints.
type Handler struct {
	svc Orders
}

// NewHandler constructs a Handler.
func NewHandler(svc Orders) *Handler {
	return &Handler{svc: svc}
}

// Quote handles POST /api/v1/admin/orders/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := common.DecodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	q, err := h.svc.Quote(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
}

// Create handles POST /api/v1/admin/orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := common.DecodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/admin/orders/"+o.ID)
	common.JSON(w, http.StatusCreated, map[string]any{"data": o})
}

// Update handles PUT /api/v1/admin/orders/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := common.DecodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Get handles GET /api/v1/admin/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// List handles GET /api/v1/admin/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p := common.ParsePagination(r, 20)
	items, total, err := h.svc.List(r.Context(), ListParams{
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		CustomerID: strings.TrimSpace(r.URL.Query().Get("customerId")),
		Limit:      p.PerPage,
		Offset:     p.Offset(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": p.Meta(total),
	})
}

// Routes mounts the order endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders/quote", h.Quote)
	r.Post("/orders", h.Create)
	r.Get("/orders", h.List)
	r.Get("/orders/{id}", h.Get)
	r.Put("/orders/{id}", h.Update)
}

func writeError(w http.ResponseWriter, err error) {
	mapped := HTTPError(err)
	var appErr *common.AppError
	if errors.As(mapped, &appErr) && appErr.HTTPStatus == http.StatusUnprocessableEntity {
		obs.IncValidationFailure(appErr.Code)
	}
	common.WriteError(w, mapped)
}

// HTTPError maps order, draft, loyalty, coupon and catalog errors onto API
// errors. A failed submit leaves nothing persisted, so the client can fix the
// form and resubmit.
func HTTPError(err error) error {
	if err == nil || common.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NotFound("order not found", err)
	case errors.Is(err, ErrRevisionConflict):
		return common.NewAppError("REVISION_CONFLICT", "order was modified, reload and retry", http.StatusConflict, err)
	case errors.Is(err, lock.ErrNotAcquired):
		return common.NewAppError("ORDER_LOCKED", "order is being edited by another request", http.StatusConflict, err)
	case errors.Is(err, ErrCustomerChanged):
		return common.Unprocessable("CUSTOMER_CHANGED", err.Error(), err)
	case errors.Is(err, draft.ErrMalformedPayload):
		return common.NewAppError("MALFORMED_DRAFT", "stored order draft is malformed", http.StatusInternalServerError, err)
	case errors.Is(err, draft.ErrNoItems),
		errors.Is(err, draft.ErrItemIndex),
		errors.Is(err, draft.ErrNegativeAmount):
		return common.Unprocessable("INVALID_DRAFT", err.Error(), err)
	case errors.Is(err, pricing.ErrInvalidDiscount):
		return common.Unprocessable("INVALID_DISCOUNT", err.Error(), err)
	case errors.Is(err, loyalty.ErrInsufficientPoints):
		return common.Unprocessable("INSUFFICIENT_POINTS", err.Error(), err)
	case errors.Is(err, loyalty.ErrBelowMinimum):
		return common.Unprocessable("POINTS_BELOW_MINIMUM", err.Error(), err)
	case errors.Is(err, loyalty.ErrRedemptionDisabled):
		return common.Unprocessable("REDEMPTION_DISABLED", err.Error(), err)
	case errors.Is(err, loyalty.ErrNegativePoints):
		return common.Unprocessable("INVALID_POINTS", err.Error(), err)
	case errors.Is(err, coupon.ErrNotFound):
		return common.Unprocessable("COUPON_NOT_FOUND", "coupon not found", err)
	case errors.Is(err, catalog.ErrProductNotFound):
		return common.Unprocessable("UNKNOWN_PRODUCT", err.Error(), err)
	}
	if mapped := catalog.HTTPError(err); common.IsAppError(mapped) {
		return mapped
	}
	return coupon.HTTPError(err)
}
