package handlers

import (
	"net/http"
	"strconv"

	"github.com/dvloznov/fundnote-ledger/internal/api/middleware"
	"github.com/dvloznov/fundnote-ledger/internal/jobs"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/gorilla/mux"
)

// AdminHandler handles the maintenance endpoints. Routes must be guarded by
// middleware.RequireAdmin.
type AdminHandler struct {
	engine *ledger.Engine
	store  jobs.JobStore
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(engine *ledger.Engine, store jobs.JobStore) *AdminHandler {
	return &AdminHandler{engine: engine, store: store}
}

// ListUserTransactions handles GET /api/admin/users/{userID}/transactions
func (h *AdminHandler) ListUserTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.engine.ListByUser(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeError(w, r, "list_by_user", err)
		return
	}
	writeList(w, txs)
}

// GetJob handles GET /api/admin/jobs/{id}
func (h *AdminHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, "get_job", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/admin/jobs
func (h *AdminHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: query.Get("user_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, r, "list_jobs", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
