package quote

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/pricing-api/internal/common"
)

// Handler exposes the AJAX-style price lookup endpoint.
type Handler struct {
	Svc *Service
}

// Price handles GET /products/{productID}/price?qty=N.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service unavailable", nil)
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_PRODUCT_ID", "productID must be a UUID", nil)
		return
	}
	qty := common.AtoiDefault(r.URL.Query().Get("qty"), 1)

	quote, err := h.Svc.Lookup(r.Context(), productID, qty)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product does not exist", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "price lookup failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}
