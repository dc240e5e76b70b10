package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"microfinance/internal/domain"
	"microfinance/internal/service"
)

type LoanHandler struct {
	loanService *service.LoanService
	logger      *slog.Logger
}

func NewLoanHandler(loanService *service.LoanService, logger *slog.Logger) *LoanHandler {
	return &LoanHandler{
		loanService: loanService,
		logger:      logger,
	}
}

func (h *LoanHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/loans", h.CreateLoan).Methods(http.MethodPost)
	r.HandleFunc("/loans/{id:[0-9]+}", h.GetLoan).Methods(http.MethodGet)
	r.HandleFunc("/loans/{id:[0-9]+}", h.DeleteLoan).Methods(http.MethodDelete)
	r.HandleFunc("/loans/{id:[0-9]+}/prepayment", h.Prepayment).Methods(http.MethodPatch)
	r.HandleFunc("/loans/{id:[0-9]+}/recover", h.Recover).Methods(http.MethodPatch)
	r.HandleFunc("/customers/{id:[0-9]+}/loans", h.ListCustomerLoans).Methods(http.MethodGet)
}

// CreateLoanRequest accepts the interest rate either as a JSON number or as a
// decimal string.
type CreateLoanRequest struct {
	CustomerID   int64           `json:"customer_id" validate:"required,gt=0"`
	Principal    int64           `json:"principal"`
	InterestRate decimal.Decimal `json:"interest_rate"`
}

type PrepaymentRequest struct {
	Amount int64 `json:"amount"`
}

type RecoverLoanRequest struct {
	AccountID int64 `json:"account_id" validate:"required,gt=0"`
	Amount    int64 `json:"amount"`
}

type RecoveryResponse struct {
	Loan        *domain.Loan        `json:"loan"`
	Transaction *domain.Transaction `json:"transaction"`
}

func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	loan, err := h.loanService.CreateLoan(r.Context(), service.CreateLoanRequest{
		CustomerID:   req.CustomerID,
		Principal:    req.Principal,
		InterestRate: req.InterestRate,
		ActorID:      optionalActor(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	loan, err := h.loanService.GetLoan(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *LoanHandler) Prepayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req PrepaymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	loan, err := h.loanService.Prepayment(r.Context(), id, req.Amount, optionalActor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *LoanHandler) Recover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req RecoverLoanRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	loan, tx, err := h.loanService.Recover(r.Context(), service.RecoverRequest{
		LoanID:    id,
		AccountID: req.AccountID,
		Amount:    req.Amount,
		ActorID:   optionalActor(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RecoveryResponse{Loan: loan, Transaction: tx})
}

func (h *LoanHandler) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.loanService.DeleteLoan(r.Context(), id, optionalActor(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LoanHandler) ListCustomerLoans(w http.ResponseWriter, r *http.Request) {
	customerID, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	loans, err := h.loanService.ListCustomerLoans(r.Context(), customerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}
