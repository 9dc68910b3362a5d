package coupon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-toko/internal/common"
)

// AdminStore is the repository surface used by the admin handlers.
type AdminStore interface {
	List(ctx context.Context, limit, offset int) ([]Rule, error)
	Create(ctx context.Context, rule Rule) error
	SetActive(ctx context.Context, code string, active bool) error
}

// Handler exposes administrative coupon endpoints.
type Handler struct {
	store AdminStore
}

// NewHandler constructs a Handler.
func NewHandler(store AdminStore) *Handler {
	return &Handler{store: store}
}

type createRequest struct {
	Code       string          `json:"code" validate:"required,max=64"`
	Kind       Kind            `json:"kind" validate:"required,oneof=percent fixed"`
	Value      decimal.Decimal `json:"value"`
	MinSpend   decimal.Decimal `json:"minSpend"`
	UsageLimit *int32          `json:"usageLimit" validate:"omitempty,gte=0"`
	ValidFrom  *time.Time      `json:"validFrom"`
	ValidTo    *time.Time      `json:"validTo"`
	ProductIDs []string        `json:"productIds" validate:"omitempty,dive,required"`
}

func (req createRequest) fields() map[string]string {
	fields := map[string]string{}
	if !req.Value.IsPositive() {
		fields["value"] = "must be greater than 0"
	} else if req.Kind == KindPercent && req.Value.GreaterThan(hundred) {
		fields["value"] = "must be at most 100 for percent coupons"
	}
	if req.MinSpend.IsNegative() {
		fields["minSpend"] = "must be greater than or equal to 0"
	}
	if req.ValidFrom != nil && req.ValidTo != nil && req.ValidTo.Before(*req.ValidFrom) {
		fields["validTo"] = "must be after validFrom"
	}
	return fields
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// List handles GET /api/v1/admin/coupons.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p := common.ParsePagination(r, 20)
	rules, err := h.store.List(r.Context(), p.PerPage, p.Offset())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rules})
}

// Create handles POST /api/v1/admin/coupons.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if fields := req.fields(); len(fields) > 0 {
		common.WriteError(w, common.ValidationFailed(fields))
		return
	}
	rule := Rule{
		Code:       NormalizeCode(req.Code),
		Kind:       req.Kind,
		Value:      req.Value,
		MinSpend:   req.MinSpend,
		UsageLimit: req.UsageLimit,
		ValidFrom:  req.ValidFrom,
		ValidTo:    req.ValidTo,
		ProductIDs: req.ProductIDs,
		Active:     true,
	}
	if err := h.store.Create(r.Context(), rule); err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": rule})
}

// SetActive handles PATCH /api/v1/admin/coupons/{code}.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	code := NormalizeCode(chi.URLParam(r, "code"))
	if err := h.store.SetActive(r.Context(), code, *req.Active); err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"code": code, "active": *req.Active}})
}

// Routes mounts the coupon endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/coupons", h.List)
	r.Post("/coupons", h.Create)
	r.Patch("/coupons/{code}", h.SetActive)
}

// HTTPError maps coupon errors onto API errors.
func HTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NotFound("coupon not found", err)
	case errors.Is(err, ErrDuplicateCode):
		return common.Conflict("coupon code already exists", err)
	case errors.Is(err, ErrUsageLimitReached):
		return common.Unprocessable("COUPON_USAGE_LIMIT", "coupon usage limit reached", err)
	case errors.Is(err, ErrExpired):
		return common.Unprocessable("COUPON_EXPIRED", "coupon expired", err)
	case errors.Is(err, ErrInactive):
		return common.Unprocessable("COUPON_INACTIVE", "coupon not active", err)
	case errors.Is(err, ErrMinimumSpendUnmet):
		return common.Unprocessable("COUPON_MIN_SPEND", "coupon minimum spend not met", err)
	case errors.Is(err, ErrNotEligible):
		return common.Unprocessable("COUPON_NOT_ELIGIBLE", "coupon not eligible for this order", err)
	default:
		return err
	}
}
