package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"microfinance/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
	logger         *slog.Logger
}

func NewAccountHandler(accountService *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

func (h *AccountHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/accounts/stats/customers", h.CustomerBalances).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id:[0-9]+}", h.GetAccount).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id:[0-9]+}/close", h.CloseAccount).Methods(http.MethodPatch)
	r.HandleFunc("/accounts/{id:[0-9]+}/transactions", h.ListTransactions).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id:[0-9]+}/audit", h.AuditTrail).Methods(http.MethodGet)
	r.HandleFunc("/customers/{id:[0-9]+}/accounts", h.OpenCustomerAccount).Methods(http.MethodPost)
}

type OpenAccountRequest struct {
	Name string `json:"name" validate:"max=100"`
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	account, err := h.accountService.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	account, err := h.accountService.CloseAccount(r.Context(), id, optionalActor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	txs, err := h.accountService.ListTransactions(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *AccountHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	entries, err := h.accountService.AuditTrail(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *AccountHandler) CustomerBalances(w http.ResponseWriter, r *http.Request) {
	agg, err := h.accountService.SumCustomerBalances(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// OpenCustomerAccount opens an additional account for an existing customer.
// The name defaults to the customer's full name.
func (h *AccountHandler) OpenCustomerAccount(w http.ResponseWriter, r *http.Request) {
	customerID, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req OpenAccountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	account, err := h.accountService.OpenCustomerAccount(r.Context(), customerID, req.Name, optionalActor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}
