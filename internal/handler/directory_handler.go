package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"microfinance/internal/domain"
	"microfinance/internal/service"
)

// DirectoryHandler serves zones, customers and staff users.
type DirectoryHandler struct {
	directoryService *service.DirectoryService
	logger           *slog.Logger
}

func NewDirectoryHandler(directoryService *service.DirectoryService, logger *slog.Logger) *DirectoryHandler {
	return &DirectoryHandler{
		directoryService: directoryService,
		logger:           logger,
	}
}

func (h *DirectoryHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/zones", h.CreateZone).Methods(http.MethodPost)
	r.HandleFunc("/zones/{id:[0-9]+}", h.GetZone).Methods(http.MethodGet)
	r.HandleFunc("/customers", h.CreateCustomer).Methods(http.MethodPost)
	r.HandleFunc("/customers/{id:[0-9]+}", h.GetCustomer).Methods(http.MethodGet)
	r.HandleFunc("/users", h.CreateUser).Methods(http.MethodPost)
	r.HandleFunc("/users/{id:[0-9]+}", h.GetUser).Methods(http.MethodGet)
}

type CreateZoneRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type CreateCustomerRequest struct {
	FirstName      string  `json:"first_name" validate:"required,max=100"`
	LastName       string  `json:"last_name" validate:"required,max=100"`
	Gender         string  `json:"gender" validate:"max=10"`
	IdentityNumber string  `json:"identity_number" validate:"required,max=50"`
	Contact        string  `json:"contact" validate:"required,max=30"`
	Email          *string `json:"email" validate:"omitempty,email"`
	Address        string  `json:"address" validate:"max=255"`
	ZoneID         int64   `json:"zone_id" validate:"required,gt=0"`
}

type CreateUserRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Role      string `json:"role" validate:"required,oneof=manager accountant collector"`
}

// RegistrationResponse pairs a newly registered party with the account opened
// for it.
type RegistrationResponse struct {
	Customer *domain.Customer `json:"customer,omitempty"`
	User     *domain.User     `json:"user,omitempty"`
	Account  *domain.Account  `json:"account"`
}

func (h *DirectoryHandler) CreateZone(w http.ResponseWriter, r *http.Request) {
	var req CreateZoneRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	zone, err := h.directoryService.CreateZone(r.Context(), req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, zone)
}

func (h *DirectoryHandler) GetZone(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	zone, err := h.directoryService.GetZone(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

func (h *DirectoryHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	customer, account, err := h.directoryService.CreateCustomer(r.Context(), service.CreateCustomerRequest{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Gender:         req.Gender,
		IdentityNumber: req.IdentityNumber,
		Contact:        req.Contact,
		Email:          req.Email,
		Address:        req.Address,
		ZoneID:         req.ZoneID,
	}, optionalActor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegistrationResponse{Customer: customer, Account: account})
}

func (h *DirectoryHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	customer, err := h.directoryService.GetCustomer(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (h *DirectoryHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, account, err := h.directoryService.CreateUser(r.Context(), service.CreateUserRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Role:      domain.Role(req.Role),
	}, optionalActor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegistrationResponse{User: user, Account: account})
}

func (h *DirectoryHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.directoryService.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
