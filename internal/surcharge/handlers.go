package surcharge

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/pricing-api/internal/cartstate"
	"github.com/noah-isme/pricing-api/internal/common"
)

// ReconcileRequest is the checkout-fee hook payload: the session the baseline
// lives under plus a snapshot of the fee-relevant cart state.
type ReconcileRequest struct {
	SessionID string             `json:"sessionId" validate:"required,max=128"`
	Cart      cartstate.Snapshot `json:"cart" validate:"required"`
}

// ReconcileResponse reports the resulting fee list after reconciliation.
type ReconcileResponse struct {
	Changed bool            `json:"changed"`
	Fee     *cartstate.Fee  `json:"fee,omitempty"`
	Fees    []cartstate.Fee `json:"fees"`
}

// ForceRequest asks for forced recomputation on the next reconcile.
type ForceRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
}

// Handler exposes the fee reconciliation endpoints.
type Handler struct {
	Controller *Controller
	Validate   *validator.Validate
	FeeLabel   string
	Compute    ComputeFunc
}

// Reconcile handles POST /cart/fees/reconcile. Baseline store failures
// degrade to "no change": the caller keeps its current fee list and retries
// on the next recomputation pass.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
		return
	}

	cart := cartstate.NewMemoryCart(req.Cart)
	result, err := h.Controller.Reconcile(r.Context(), req.SessionID, cart, h.FeeLabel, h.Compute)
	if err != nil && !errors.Is(err, ErrStoreUnavailable) {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "fee reconciliation failed", nil)
		return
	}

	common.JSON(w, http.StatusOK, ReconcileResponse{
		Changed: result.Changed,
		Fee:     result.Fee,
		Fees:    cart.Snapshot().Fees,
	})
}

// Force handles POST /cart/fees/force.
func (h *Handler) Force(w http.ResponseWriter, r *http.Request) {
	var req ForceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
		return
	}
	if err := h.Controller.Force(r.Context(), req.SessionID); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			common.JSON(w, http.StatusOK, map[string]bool{"forced": false})
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "force flag update failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]bool{"forced": true})
}

func (h *Handler) validate(v any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(v)
}
