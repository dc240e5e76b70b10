package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"microfinance/internal/domain"
	"microfinance/internal/service"
)

type TariffHandler struct {
	tariffService *service.TariffService
	logger        *slog.Logger
}

func NewTariffHandler(tariffService *service.TariffService, logger *slog.Logger) *TariffHandler {
	return &TariffHandler{
		tariffService: tariffService,
		logger:        logger,
	}
}

func (h *TariffHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tariffs/run", h.RunMonth).Methods(http.MethodPost)
	r.HandleFunc("/tariffs/accounts/{id:[0-9]+}", h.ChargeAccount).Methods(http.MethodPost)
}

// TariffRequest names the month to charge, formatted YYYY-MM.
type TariffRequest struct {
	Period string `json:"period" validate:"required"`
}

func (h *TariffHandler) RunMonth(w http.ResponseWriter, r *http.Request) {
	var req TariffRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	period, err := domain.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	run, err := h.tariffService.ChargeMonthlyTariffs(r.Context(), period)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *TariffHandler) ChargeAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req TariffRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	period, err := domain.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	charge, err := h.tariffService.ChargeMonthlyTariff(r.Context(), id, period, optionalActor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, charge)
}
