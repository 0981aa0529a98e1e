package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"remote-lab-api/internal/service"

	"github.com/gorilla/mux"
)

// Constants for timeouts
const (
	DefaultTimeout     = 10 * time.Second
	LongRunningTimeout = 15 * time.Second

	// Approval probes the computer through the command queue, so it needs
	// room beyond a normal request.
	ApprovalTimeout = 45 * time.Second
)

// ScheduleHandler handles the HTTP requests for session bookings.
type ScheduleHandler struct {
	Service *service.ScheduleService
	Logger  *log.Logger

	ErrorHandler   *ErrorHandler
	ResponseHelper *ResponseHelper
}

// NewScheduleHandler creates a new ScheduleHandler with dependencies and helpers
func NewScheduleHandler(svc *service.ScheduleService, logger *log.Logger) *ScheduleHandler {
	if logger == nil {
		logger = log.Default()
	}

	return &ScheduleHandler{
		Service:        svc,
		Logger:         logger,
		ErrorHandler:   NewErrorHandler(logger),
		ResponseHelper: NewResponseHelper(),
	}
}

// BookScheduleRequest is the payload for registering a session booking.
type BookScheduleRequest struct {
	Email     string    `json:"email"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// ApproveScheduleRequest is the payload for approving a booking.
type ApproveScheduleRequest struct {
	ComputerID string `json:"computer_id"`
}

// BookScheduleHandler registers a new pending booking.
func (h *ScheduleHandler) BookScheduleHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	var req BookScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}

	schedule, err := h.Service.Book(ctx, req.Email, req.StartTime, req.EndTime)
	if err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "book schedule")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusCreated, schedule)
}

// GetAllSchedulesHandler lists every schedule for the operator dashboard.
func (h *ScheduleHandler) GetAllSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, LongRunningTimeout)
	defer cancel()

	schedules, err := h.Service.List(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "list schedules")
		return
	}

	responseData := h.ResponseHelper.CreateListResponseData("schedules", schedules, len(schedules))
	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, responseData)
}

// GetScheduleHandler retrieves a single schedule by ID.
func (h *ScheduleHandler) GetScheduleHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	vars := mux.Vars(r)
	id, valid := h.ErrorHandler.ParseAndValidateUUID(w, vars["id"])
	if !valid {
		return
	}

	schedule, err := h.Service.Get(ctx, id)
	if err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "get schedule")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, schedule)
}

// GetSchedulesByEmailHandler lists a requester's upcoming sessions.
func (h *ScheduleHandler) GetSchedulesByEmailHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	vars := mux.Vars(r)
	email := vars["email"]

	schedules, err := h.Service.ListByEmail(ctx, email)
	if err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "list schedules by email")
		return
	}

	responseData := h.ResponseHelper.CreateListResponseData("schedules", schedules, len(schedules))
	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, responseData)
}

// ApproveScheduleHandler approves a pending booking onto a computer.
func (h *ScheduleHandler) ApproveScheduleHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, ApprovalTimeout)
	defer cancel()

	vars := mux.Vars(r)
	scheduleID, valid := h.ErrorHandler.ParseAndValidateUUID(w, vars["id"])
	if !valid {
		return
	}

	var req ApproveScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}
	computerID, valid := h.ErrorHandler.ParseAndValidateUUID(w, req.ComputerID)
	if !valid {
		return
	}

	schedule, err := h.Service.Approve(ctx, scheduleID, computerID)
	if err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "approve schedule")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, schedule)
}

// CancelScheduleHandler cancels a pending or approved booking.
func (h *ScheduleHandler) CancelScheduleHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	vars := mux.Vars(r)
	id, valid := h.ErrorHandler.ParseAndValidateUUID(w, vars["id"])
	if !valid {
		return
	}

	if err := h.Service.Cancel(ctx, id); err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "cancel schedule")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Schedule cancelled successfully",
		map[string]interface{}{"id": id.String()})
}

// HealthHandler provides a health check endpoint
func (h *ScheduleHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	healthData := h.ResponseHelper.CreateHealthCheckData()
	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Service is healthy", healthData)
}
