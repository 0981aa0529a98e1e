package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"remote-lab-api/internal/model"
	"remote-lab-api/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// CommandHandler handles the HTTP requests for the command queue: the
// operator-facing enqueue/audit endpoints and the agent-facing poll/report
// endpoints.
type CommandHandler struct {
	Service *service.CommandService
	Logger  *log.Logger

	ErrorHandler   *ErrorHandler
	ResponseHelper *ResponseHelper
}

// NewCommandHandler creates a new CommandHandler with dependencies and helpers
func NewCommandHandler(svc *service.CommandService, logger *log.Logger) *CommandHandler {
	if logger == nil {
		logger = log.Default()
	}

	return &CommandHandler{
		Service:        svc,
		Logger:         logger,
		ErrorHandler:   NewErrorHandler(logger),
		ResponseHelper: NewResponseHelper(),
	}
}

// EnqueueCommandRequest is the payload for queuing a command manually.
type EnqueueCommandRequest struct {
	ComputerID string            `json:"computer_id"`
	Action     string            `json:"action"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// ReportCommandRequest is the payload an agent posts after running a command.
type ReportCommandRequest struct {
	Status model.CommandStatus `json:"status"`
	Result string              `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// EnqueueCommandHandler queues a command for a computer. Operator endpoint,
// mostly used for ad-hoc maintenance.
func (h *CommandHandler) EnqueueCommandHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	var req EnqueueCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}
	computerID, valid := h.ErrorHandler.ParseAndValidateUUID(w, req.ComputerID)
	if !valid {
		return
	}

	command, err := h.Service.Enqueue(ctx, computerID, req.Action, req.Parameters)
	if err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "enqueue command")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusCreated, command)
}

// ListCommandsHandler lists every command, newest first. Operator audit view.
func (h *CommandHandler) ListCommandsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, LongRunningTimeout)
	defer cancel()

	commands, err := h.Service.List(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "list commands")
		return
	}

	responseData := h.ResponseHelper.CreateListResponseData("commands", commands, len(commands))
	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, responseData)
}

// GetCommandHandler retrieves a single command by ID.
func (h *CommandHandler) GetCommandHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	vars := mux.Vars(r)
	id, valid := h.ErrorHandler.ParseAndValidateUUID(w, vars["id"])
	if !valid {
		return
	}

	command, err := h.Service.Get(ctx, id)
	if err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "get command")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, command)
}

// PollCommandsHandler hands pending work to a polling agent and marks it
// executing. Agents pass their computer_id as a query parameter; without it
// the whole fleet's queue is claimed.
func (h *CommandHandler) PollCommandsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	var computerID *uuid.UUID
	if idStr := r.URL.Query().Get("computer_id"); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			h.ErrorHandler.HandleUUIDParseError(w, err)
			return
		}
		computerID = &id
	}

	commands, err := h.Service.Poll(ctx, computerID)
	if err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "poll commands")
		return
	}

	responseData := h.ResponseHelper.CreateListResponseData("commands", commands, len(commands))
	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, responseData)
}

// ReportCommandHandler records the terminal outcome an agent observed.
func (h *CommandHandler) ReportCommandHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	vars := mux.Vars(r)
	id, valid := h.ErrorHandler.ParseAndValidateUUID(w, vars["id"])
	if !valid {
		return
	}

	var req ReportCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}

	if err := h.Service.Report(ctx, id, req.Status, req.Result, req.Error); err != nil {
		h.ErrorHandler.HandleServiceError(w, err, "report command result")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Command result recorded",
		map[string]interface{}{"id": id.String(), "status": req.Status})
}
