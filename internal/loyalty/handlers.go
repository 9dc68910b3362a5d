package loyalty

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-toko/internal/common"
)

// SettingsStore is the subset of Store used by the handlers.
type SettingsStore interface {
	Settings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
	Balance(ctx context.Context, customerID string) (int64, error)
}

// Handler exposes the loyalty admin endpoints.
type Handler struct {
	store SettingsStore
}

// NewHandler constructs a Handler.
func NewHandler(store SettingsStore) *Handler {
	return &Handler{store: store}
}

type settingsRequest struct {
	Enabled              bool            `json:"enabled"`
	RedemptionValue      decimal.Decimal `json:"redemptionValue"`
	MaxRedemptionPercent decimal.Decimal `json:"maxRedemptionPercent"`
	MinRedeemPoints      int64           `json:"minRedeemPoints" validate:"gte=0"`
	EarnRate             decimal.Decimal `json:"earnRate"`
}

func (req settingsRequest) fields() map[string]string {
	fields := map[string]string{}
	if req.RedemptionValue.IsNegative() || (req.Enabled && !req.RedemptionValue.IsPositive()) {
		fields["redemptionValue"] = "must be greater than 0"
	}
	if req.MaxRedemptionPercent.IsNegative() || req.MaxRedemptionPercent.GreaterThan(hundred) {
		fields["maxRedemptionPercent"] = "must be between 0 and 100"
	}
	if req.EarnRate.IsNegative() {
		fields["earnRate"] = "must be greater than or equal to 0"
	}
	return fields
}

// GetSettings handles GET /api/v1/admin/loyalty/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.Settings(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": settings})
}

// PutSettings handles PUT /api/v1/admin/loyalty/settings.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if fields := req.fields(); len(fields) > 0 {
		common.WriteError(w, common.ValidationFailed(fields))
		return
	}
	settings := Settings(req)
	if err := h.store.SaveSettings(r.Context(), settings); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": settings})
}

// Account handles GET /api/v1/admin/loyalty/accounts/{customerID}.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	points, err := h.store.Balance(r.Context(), customerID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": Account{CustomerID: customerID, Points: points}})
}

// Routes mounts the loyalty endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/loyalty/settings", h.GetSettings)
	r.Put("/loyalty/settings", h.PutSettings)
	r.Get("/loyalty/accounts/{customerID}", h.Account)
}
