package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fuel-ledger/internal/app"
)

// apiApproveDeposit handles POST /api/deposits/{id}/approve.
func (h *Handler) apiApproveDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	actor, ok := decodeActor(w, r)
	if !ok {
		return
	}
	settlement, err := h.svc.ApproveDeposit(r.Context(), id, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, settlement)
}

// apiApproveDelivery handles POST /api/deliveries/{id}/approve.
func (h *Handler) apiApproveDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	actor, ok := decodeActor(w, r)
	if !ok {
		return
	}
	tx, err := h.svc.ApproveDelivery(r.Context(), id, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"transaction": tx})
}

// apiApproveTankReading handles POST /api/tank-readings/{id}/approve.
func (h *Handler) apiApproveTankReading(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	actor, ok := decodeActor(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ApproveTankReading(r.Context(), id, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiChangePrice handles POST /api/products/{id}/price.
func (h *Handler) apiChangePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req app.ChangePriceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ProductID = id
	result, err := h.svc.ChangePrice(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiFillCustodial handles POST /api/orgs/{orgID}/custodial/fill.
func (h *Handler) apiFillCustodial(w http.ResponseWriter, r *http.Request) {
	orgID, ok := idParam(w, r, "orgID")
	if !ok {
		return
	}
	var req app.CustodialFillRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.OrgID = orgID
	tx, err := h.svc.FillCustodial(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, tx)
}

// apiAdjustCustodial handles POST /api/orgs/{orgID}/custodial/adjust.
func (h *Handler) apiAdjustCustodial(w http.ResponseWriter, r *http.Request) {
	orgID, ok := idParam(w, r, "orgID")
	if !ok {
		return
	}
	var req app.CustodialAdjustmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.OrgID = orgID
	tx, err := h.svc.AdjustCustodial(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"transaction": tx})
}

// apiCloseMonth handles POST /api/orgs/{orgID}/closings/{year}/{month}.
func (h *Handler) apiCloseMonth(w http.ResponseWriter, r *http.Request) {
	orgID, ok := idParam(w, r, "orgID")
	if !ok {
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, r, "invalid year", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, r, "invalid month", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	actor, ok := decodeActor(w, r)
	if !ok {
		return
	}
	tx, err := h.svc.CloseMonth(r.Context(), orgID, year, month, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"transaction": tx})
}
