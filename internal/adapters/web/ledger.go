package web

import (
	"net/http"

	"fuel-ledger/internal/app"
)

// apiListAccounts handles GET /api/orgs/{orgID}/accounts.
func (h *Handler) apiListAccounts(w http.ResponseWriter, r *http.Request) {
	orgID, ok := idParam(w, r, "orgID")
	if !ok {
		return
	}
	accounts, err := h.svc.ListAccounts(r.Context(), orgID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, accounts)
}

// apiDeactivateAccount handles POST /api/accounts/{accountID}/deactivate.
func (h *Handler) apiDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := idParam(w, r, "accountID")
	if !ok {
		return
	}
	if err := h.svc.DeactivateAccount(r.Context(), accountID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "inactive"})
}

// apiRecordTransaction handles POST /api/orgs/{orgID}/transactions.
// The path organisation overrides any org_id in the body.
func (h *Handler) apiRecordTransaction(w http.ResponseWriter, r *http.Request) {
	orgID, ok := idParam(w, r, "orgID")
	if !ok {
		return
	}
	var req app.RecordTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.OrgID = orgID
	tx, err := h.svc.RecordTransaction(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, tx)
}

// apiApproveTransaction handles POST /api/transactions/{id}/approve.
func (h *Handler) apiApproveTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	actor, ok := decodeActor(w, r)
	if !ok {
		return
	}
	if err := h.svc.ApproveTransaction(r.Context(), id, actor); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "approved"})
}

// apiRejectTransaction handles POST /api/transactions/{id}/reject.
func (h *Handler) apiRejectTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	actor, ok := decodeActor(w, r)
	if !ok {
		return
	}
	if err := h.svc.RejectTransaction(r.Context(), id, actor); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "rejected"})
}
