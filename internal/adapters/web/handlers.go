package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"fuel-ledger/internal/app"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	router chi.Router
	log    *logrus.Entry
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string, log *logrus.Entry) http.Handler {
	h := &Handler{svc: svc, log: log.WithField("module", "web")}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(h.log))
	r.Use(Recoverer(h.log))
	r.Use(CORS(allowedOrigins))
	r.Use(RequestBodyLimit(1 << 20)) // 1 MB

	r.Get("/api/health", h.health)

	r.Route("/api/tanks/{tankID}", func(r chi.Router) {
		r.Get("/stock", h.apiCurrentStock)
		r.Get("/stock/{date}", h.apiStockAsOf)
		r.Get("/daily-report", h.apiDailyReport)
	})

	r.Route("/api/orgs/{orgID}", func(r chi.Router) {
		// ── Reports ───────────────────────────────────────────────────────────
		r.Get("/daily-reports", h.apiOrgDailyReports)
		r.Get("/reports/financial", h.apiFinancialReport)
		r.Get("/trial-balance", h.apiTrialBalance)

		// ── Accounts ──────────────────────────────────────────────────────────
		r.Get("/accounts", h.apiListAccounts)
		r.Get("/accounts/{accountID}/statement", h.apiAccountStatement)

		// ── Manual entries and period closing ─────────────────────────────────
		r.Post("/transactions", h.apiRecordTransaction)
		r.Post("/custodial/fill", h.apiFillCustodial)
		r.Post("/custodial/adjust", h.apiAdjustCustodial)
		r.Post("/closings/{year}/{month}", h.apiCloseMonth)
	})

	r.Post("/api/accounts/{accountID}/deactivate", h.apiDeactivateAccount)
	r.Post("/api/transactions/{id}/approve", h.apiApproveTransaction)
	r.Post("/api/transactions/{id}/reject", h.apiRejectTransaction)

	// ── Operational approvals ─────────────────────────────────────────────────
	r.Post("/api/deposits/{id}/approve", h.apiApproveDeposit)
	r.Post("/api/deliveries/{id}/approve", h.apiApproveDelivery)
	r.Post("/api/tank-readings/{id}/approve", h.apiApproveTankReading)
	r.Post("/api/products/{id}/price", h.apiChangePrice)

	h.router = r
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// idParam parses a positive integer URL parameter, writing a 400 on failure.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		writeError(w, r, "invalid "+name, "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

// actorRequest is the body of approval endpoints. Authentication is handled
// upstream; the actor is recorded as given.
type actorRequest struct {
	Actor string `json:"actor"`
}

func decodeActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req actorRequest
	if !decodeJSON(w, r, &req) {
		return "", false
	}
	if req.Actor == "" {
		writeError(w, r, "actor is required", "BAD_REQUEST", http.StatusBadRequest)
		return "", false
	}
	return req.Actor, true
}
