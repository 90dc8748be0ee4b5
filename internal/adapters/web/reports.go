package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// apiCurrentStock handles GET /api/tanks/{tankID}/stock.
func (h *Handler) apiCurrentStock(w http.ResponseWriter, r *http.Request) {
	tankID, ok := idParam(w, r, "tankID")
	if !ok {
		return
	}
	level, err := h.svc.GetCurrentStock(r.Context(), tankID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, level)
}

// apiStockAsOf handles GET /api/tanks/{tankID}/stock/{date}.
func (h *Handler) apiStockAsOf(w http.ResponseWriter, r *http.Request) {
	tankID, ok := idParam(w, r, "tankID")
	if !ok {
		return
	}
	level, err := h.svc.GetStockAsOf(r.Context(), tankID, chi.URLParam(r, "date"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, level)
}

// apiDailyReport handles GET /api/tanks/{tankID}/daily-report?start=&end=.
func (h *Handler) apiDailyReport(w http.ResponseWriter, r *http.Request) {
	tankID, ok := idParam(w, r, "tankID")
	if !ok {
		return
	}
	q := r.URL.Query()
	report, err := h.svc.GetDailyReport(r.Context(), tankID, q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}

// apiOrgDailyReports handles GET /api/orgs/{orgID}/daily-reports?start=&end=.
func (h *Handler) apiOrgDailyReports(w http.ResponseWriter, r *http.Request) {
	orgID, ok := idParam(w, r, "orgID")
	if !ok {
		return
	}
	q := r.URL.Query()
	reports, err := h.svc.GetOrgDailyReports(r.Context(), orgID, q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, reports)
}

// apiFinancialReport handles GET /api/orgs/{orgID}/reports/financial?start=&end=.
func (h *Handler) apiFinancialReport(w http.ResponseWriter, r *http.Request) {
	orgID, ok := idParam(w, r, "orgID")
	if !ok {
		return
	}
	q := r.URL.Query()
	report, err := h.svc.GetFinancialReport(r.Context(), orgID, q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}

// apiTrialBalance handles GET /api/orgs/{orgID}/trial-balance?as_of=.
func (h *Handler) apiTrialBalance(w http.ResponseWriter, r *http.Request) {
	orgID, ok := idParam(w, r, "orgID")
	if !ok {
		return
	}
	result, err := h.svc.GetTrialBalance(r.Context(), orgID, r.URL.Query().Get("as_of"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiAccountStatement handles GET /api/orgs/{orgID}/accounts/{accountID}/statement?start=&end=.
func (h *Handler) apiAccountStatement(w http.ResponseWriter, r *http.Request) {
	orgID, ok := idParam(w, r, "orgID")
	if !ok {
		return
	}
	accountID, ok := idParam(w, r, "accountID")
	if !ok {
		return
	}
	q := r.URL.Query()
	stmt, err := h.svc.GetAccountStatement(r.Context(), orgID, accountID, q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, stmt)
}
