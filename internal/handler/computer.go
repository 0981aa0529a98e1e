package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"remote-lab-api/internal/model"
	"remote-lab-api/internal/repository"
	"remote-lab-api/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ComputerHandler handles the HTTP requests for lab computers.
type ComputerHandler struct {
	Repo   repository.ComputerRepository
	Logger *log.Logger

	ErrorHandler   *ErrorHandler
	ResponseHelper *ResponseHelper
}

// NewComputerHandler creates a new ComputerHandler with dependencies and helpers
func NewComputerHandler(repo repository.ComputerRepository, logger *log.Logger) *ComputerHandler {
	if logger == nil {
		logger = log.Default()
	}

	return &ComputerHandler{
		Repo:           repo,
		Logger:         logger,
		ErrorHandler:   NewErrorHandler(logger),
		ResponseHelper: NewResponseHelper(),
	}
}

// CreateComputerHandler registers a new lab computer in the pool.
func (h *ComputerHandler) CreateComputerHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	var computer model.Computer
	if err := json.NewDecoder(r.Body).Decode(&computer); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}

	if validationErrors := validation.ValidateComputerInput(&computer); len(validationErrors) > 0 {
		h.ErrorHandler.HandleValidationErrors(w, validationErrors)
		return
	}

	if computer.ID == uuid.Nil {
		computer.ID = uuid.New()
	}
	if computer.Status == "" {
		computer.Status = model.ComputerAvailable
	}

	if err := h.Repo.CreateComputer(ctx, computer); err != nil {
		h.ErrorHandler.HandleRepositoryError(w, err, "create computer")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusCreated, "Computer created successfully",
		map[string]interface{}{"id": computer.ID.String()})
}

// GetAllComputersHandler lists every registered lab computer.
func (h *ComputerHandler) GetAllComputersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, LongRunningTimeout)
	defer cancel()

	computers, err := h.Repo.GetAllComputers(ctx)
	if err != nil {
		h.ErrorHandler.HandleRepositoryError(w, err, "list computers")
		return
	}
	if computers == nil {
		computers = []model.Computer{}
	}

	responseData := h.ResponseHelper.CreateListResponseData("computers", computers, len(computers))
	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, responseData)
}

// GetComputerHandler retrieves a single computer by ID.
func (h *ComputerHandler) GetComputerHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	vars := mux.Vars(r)
	id, valid := h.ErrorHandler.ParseAndValidateUUID(w, vars["id"])
	if !valid {
		return
	}

	computer, err := h.Repo.GetComputerByID(ctx, id)
	if err != nil {
		h.ErrorHandler.HandleRepositoryError(w, err, "get computer")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, computer)
}

// UpdateComputerHandler updates a computer's registration fields.
func (h *ComputerHandler) UpdateComputerHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	vars := mux.Vars(r)
	id, valid := h.ErrorHandler.ParseAndValidateUUID(w, vars["id"])
	if !valid {
		return
	}

	var computer model.Computer
	if err := json.NewDecoder(r.Body).Decode(&computer); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}

	if validationErrors := validation.ValidateComputerInput(&computer); len(validationErrors) > 0 {
		h.ErrorHandler.HandleValidationErrors(w, validationErrors)
		return
	}

	if err := h.Repo.UpdateComputer(ctx, id, computer); err != nil {
		h.ErrorHandler.HandleRepositoryError(w, err, "update computer")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Computer updated successfully",
		map[string]interface{}{"id": id.String()})
}

// UpdateComputerStatusRequest is the payload for moving a computer between
// pool states.
type UpdateComputerStatusRequest struct {
	Status model.ComputerStatus `json:"status"`
}

// UpdateComputerStatusHandler moves a computer between available, busy and
// maintenance. Operators use it to pull a machine from the pool.
func (h *ComputerHandler) UpdateComputerStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	vars := mux.Vars(r)
	id, valid := h.ErrorHandler.ParseAndValidateUUID(w, vars["id"])
	if !valid {
		return
	}

	var req UpdateComputerStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}
	if !req.Status.Valid() {
		h.ErrorHandler.SendErrorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("invalid computer status: %s", req.Status), "VALIDATION_ERROR", nil)
		return
	}

	if err := h.Repo.UpdateComputerStatus(ctx, id, req.Status); err != nil {
		h.ErrorHandler.HandleRepositoryError(w, err, "update computer status")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Computer status updated successfully",
		map[string]interface{}{"id": id.String(), "status": req.Status})
}

// DeleteComputerHandler removes a computer from the pool.
func (h *ComputerHandler) DeleteComputerHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	vars := mux.Vars(r)
	id, valid := h.ErrorHandler.ParseAndValidateUUID(w, vars["id"])
	if !valid {
		return
	}

	if err := h.Repo.DeleteComputer(ctx, id); err != nil {
		h.ErrorHandler.HandleRepositoryError(w, err, "delete computer")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Computer deleted successfully",
		map[string]interface{}{"id": id.String()})
}
