// Package api assembles the HTTP surface of the ledger service.
package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/api/handlers"
	"github.com/dvloznov/fundnote-ledger/internal/api/middleware"
	"github.com/dvloznov/fundnote-ledger/internal/auth"
	"github.com/dvloznov/fundnote-ledger/internal/jobs"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Engine   *ledger.Engine
	Jobs     jobs.JobStore
	Verifier *auth.Verifier
	Log      zerolog.Logger

	// Metrics, when set, is served unauthenticated at /metrics.
	Metrics http.Handler
}

// NewRouter returns the full handler chain.
func NewRouter(d Deps) http.Handler {
	transactions := handlers.NewTransactionsHandler(d.Engine)
	admin := handlers.NewAdminHandler(d.Engine, d.Jobs)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	}).Methods(http.MethodGet)

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(d.Verifier))

	// Transactions endpoints
	api.HandleFunc("/transactions", transactions.Create).Methods(http.MethodPost)
	api.HandleFunc("/transactions", transactions.ListMine).Methods(http.MethodGet)
	api.HandleFunc("/transactions", transactions.Purge).Methods(http.MethodDelete)
	api.HandleFunc("/transactions/month/{year}/{month}", transactions.ListByMonth).Methods(http.MethodGet)
	api.HandleFunc("/transactions/category/{category}", transactions.ListByCategory).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", transactions.Get).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", transactions.Update).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id}", transactions.Delete).Methods(http.MethodDelete)

	// Accounts endpoints
	api.HandleFunc("/accounts/{id}", transactions.GetAccount).Methods(http.MethodGet)

	// Admin endpoints
	adm := api.PathPrefix("/admin").Subrouter()
	adm.Use(middleware.RequireAdmin)
	adm.HandleFunc("/users/{userID}/transactions", admin.ListUserTransactions).Methods(http.MethodGet)
	adm.HandleFunc("/jobs", admin.ListJobs).Methods(http.MethodGet)
	adm.HandleFunc("/jobs/{id}", admin.GetJob).Methods(http.MethodGet)

	// Apply middleware
	return middleware.Recovery(d.Log)(
		middleware.RequestID(
			middleware.Logger(d.Log)(
				middleware.CORS(r),
			),
		),
	)
}
