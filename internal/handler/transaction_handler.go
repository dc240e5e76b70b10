package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"microfinance/internal/service"
)

type TransactionHandler struct {
	transactionService *service.TransactionService
	logger             *slog.Logger
}

func NewTransactionHandler(transactionService *service.TransactionService, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

func (h *TransactionHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/transactions/deposit", h.Deposit).Methods(http.MethodPost)
	r.HandleFunc("/transactions/withdraw", h.Withdraw).Methods(http.MethodPost)
	r.HandleFunc("/transactions/credit-collector", h.CreditCollector).Methods(http.MethodPost)
	r.HandleFunc("/transactions/draw", h.Draw).Methods(http.MethodPost)
	r.HandleFunc("/transactions/{id}", h.GetTransaction).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{id}", h.Reverse).Methods(http.MethodDelete)
}

type AccountAmountRequest struct {
	AccountID int64 `json:"account_id" validate:"required,gt=0"`
	Amount    int64 `json:"amount"`
}

type CreditCollectorRequest struct {
	CollectorID int64 `json:"collector_id" validate:"required,gt=0"`
	Amount      int64 `json:"amount"`
}

type DrawRequest struct {
	SourceID int64 `json:"source_id" validate:"required,gt=0"`
	Amount   int64 `json:"amount"`
}

func (h *TransactionHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req AccountAmountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	tx, err := h.transactionService.Deposit(r.Context(), service.DepositRequest{
		AccountID: req.AccountID,
		Amount:    req.Amount,
		ActorID:   actorID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *TransactionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req AccountAmountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	tx, err := h.transactionService.Withdraw(r.Context(), service.WithdrawRequest{
		AccountID: req.AccountID,
		Amount:    req.Amount,
		ActorID:   actorID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *TransactionHandler) CreditCollector(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req CreditCollectorRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	tx, err := h.transactionService.CreditCollector(r.Context(), service.CreditCollectorRequest{
		CollectorID: req.CollectorID,
		Amount:      req.Amount,
		ActorID:     actorID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *TransactionHandler) Draw(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req DrawRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	tx, err := h.transactionService.DrawFromSource(r.Context(), service.DrawRequest{
		SourceID: req.SourceID,
		Amount:   req.Amount,
		ActorID:  actorID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	tx, err := h.transactionService.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Reverse undoes a transaction's balance effects. The row is kept and marked
// reversed.
func (h *TransactionHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	actorID, err := requireActor(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	tx, err := h.transactionService.ReverseTransaction(r.Context(), id, actorID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
