package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dvloznov/fundnote-ledger/internal/api/middleware"
	"github.com/dvloznov/fundnote-ledger/internal/auth"
	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// TransactionsHandler handles transaction and account endpoints.
type TransactionsHandler struct {
	engine *ledger.Engine
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(engine *ledger.Engine) *TransactionsHandler {
	return &TransactionsHandler{engine: engine}
}

// TransactionRequest is the body of create and update requests.
type TransactionRequest struct {
	TransactionID string          `json:"transaction_id,omitempty"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	FromAccountID string          `json:"from_account_id,omitempty"`
	ToAccountID   string          `json:"to_account_id,omitempty"`
	Category      string          `json:"category,omitempty"`
	Description   string          `json:"description,omitempty"`
}

func (req TransactionRequest) payload() ledger.Payload {
	return ledger.Payload{
		Type:          domain.ParseTransactionType(req.Type),
		Amount:        req.Amount,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Category:      req.Category,
		Description:   req.Description,
	}
}

func decodeRequest(r *http.Request) (TransactionRequest, bool) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, false
	}
	return req, true
}

// callerID returns the authenticated user. The auth middleware guarantees one.
func callerID(r *http.Request) string {
	uid, _ := auth.UserIDFromContext(r.Context())
	return uid
}

func writeList(w http.ResponseWriter, txs []*domain.Transaction) {
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// Create handles POST /api/transactions
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.engine.Create(r.Context(), callerID(r), req.payload())
	if err != nil {
		writeError(w, r, "create", err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, res)
}

// Get handles GET /api/transactions/{id}
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.GetByID(r.Context(), callerID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, "get", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

// ListMine handles GET /api/transactions
func (h *TransactionsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	txs, err := h.engine.ListMine(r.Context(), callerID(r))
	if err != nil {
		writeError(w, r, "list", err)
		return
	}
	writeList(w, txs)
}

// ListByMonth handles GET /api/transactions/month/{year}/{month}
func (h *TransactionsHandler) ListByMonth(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	year, yerr := strconv.Atoi(vars["year"])
	month, merr := strconv.Atoi(vars["month"])
	if yerr != nil || merr != nil {
		writeValidation(w, r, "list_by_month", domain.ReasonInvalidMonth, "month")
		return
	}

	txs, err := h.engine.ListMineByMonth(r.Context(), callerID(r), year, month)
	if err != nil {
		writeError(w, r, "list_by_month", err)
		return
	}
	writeList(w, txs)
}

// ListByCategory handles GET /api/transactions/category/{category}
func (h *TransactionsHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	txs, err := h.engine.ListMineByCategory(r.Context(), callerID(r), mux.Vars(r)["category"])
	if err != nil {
		writeError(w, r, "list_by_category", err)
		return
	}
	writeList(w, txs)
}

// Update handles PUT /api/transactions/{id}
func (h *TransactionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	req, ok := decodeRequest(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TransactionID != "" && req.TransactionID != id {
		writeValidation(w, r, "update", domain.ReasonIDMismatch, "transaction_id")
		return
	}

	res, err := h.engine.Update(r.Context(), callerID(r), id, req.payload())
	if err != nil {
		writeError(w, r, "update", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Delete handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Delete(r.Context(), callerID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, "delete", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Purge handles DELETE /api/transactions
func (h *TransactionsHandler) Purge(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.PurgeMine(r.Context(), callerID(r))
	if err != nil {
		writeError(w, r, "purge", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// GetAccount handles GET /api/accounts/{id}
func (h *TransactionsHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.engine.GetAccount(r.Context(), callerID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, "get_account", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, acc)
}
