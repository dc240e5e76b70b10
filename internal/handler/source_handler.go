package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"microfinance/internal/service"
)

type SourceHandler struct {
	sourceService *service.SourceService
	logger        *slog.Logger
}

func NewSourceHandler(sourceService *service.SourceService, logger *slog.Logger) *SourceHandler {
	return &SourceHandler{
		sourceService: sourceService,
		logger:        logger,
	}
}

func (h *SourceHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/sources", h.CreateSource).Methods(http.MethodPost)
	r.HandleFunc("/sources/stats/today", h.TodayStats).Methods(http.MethodGet)
	r.HandleFunc("/sources/stats/month", h.MonthStats).Methods(http.MethodGet)
	r.HandleFunc("/sources/{id:[0-9]+}", h.GetSource).Methods(http.MethodGet)
	r.HandleFunc("/sources/{id:[0-9]+}", h.UpdateSource).Methods(http.MethodPatch)
	r.HandleFunc("/sources/{id:[0-9]+}", h.DeleteSource).Methods(http.MethodDelete)
}

type CreateSourceRequest struct {
	ZoneID int64 `json:"zone_id" validate:"required,gt=0"`
	Amount int64 `json:"amount"`
}

type UpdateSourceRequest struct {
	Amount int64 `json:"amount"`
}

func (h *SourceHandler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var req CreateSourceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	src, err := h.sourceService.CreateSource(r.Context(), req.ZoneID, req.Amount, optionalActor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (h *SourceHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	src, err := h.sourceService.GetSource(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (h *SourceHandler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req UpdateSourceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	src, err := h.sourceService.UpdateSource(r.Context(), id, req.Amount, optionalActor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (h *SourceHandler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.sourceService.DeleteSource(r.Context(), id, optionalActor(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SourceHandler) TodayStats(w http.ResponseWriter, r *http.Request) {
	agg, err := h.sourceService.TodayStats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (h *SourceHandler) MonthStats(w http.ResponseWriter, r *http.Request) {
	agg, err := h.sourceService.MonthStats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}
