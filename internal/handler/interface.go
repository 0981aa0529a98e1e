package handler

import (
	"net/http"
)

// ScheduleHandlerInterface defines the contract for schedule HTTP handlers.
// This interface enables easy testing, mocking, and dependency injection.
type ScheduleHandlerInterface interface {
	BookScheduleHandler(w http.ResponseWriter, r *http.Request)
	GetAllSchedulesHandler(w http.ResponseWriter, r *http.Request)
	GetScheduleHandler(w http.ResponseWriter, r *http.Request)
	GetSchedulesByEmailHandler(w http.ResponseWriter, r *http.Request)
	ApproveScheduleHandler(w http.ResponseWriter, r *http.Request)
	CancelScheduleHandler(w http.ResponseWriter, r *http.Request)

	// Health and monitoring
	HealthHandler(w http.ResponseWriter, r *http.Request)
}

// ComputerHandlerInterface defines the contract for computer HTTP handlers.
type ComputerHandlerInterface interface {
	CreateComputerHandler(w http.ResponseWriter, r *http.Request)
	GetAllComputersHandler(w http.ResponseWriter, r *http.Request)
	GetComputerHandler(w http.ResponseWriter, r *http.Request)
	UpdateComputerHandler(w http.ResponseWriter, r *http.Request)
	UpdateComputerStatusHandler(w http.ResponseWriter, r *http.Request)
	DeleteComputerHandler(w http.ResponseWriter, r *http.Request)
}

// CommandHandlerInterface defines the contract for command queue HTTP handlers,
// covering both the operator surface and the agent polling surface.
type CommandHandlerInterface interface {
	EnqueueCommandHandler(w http.ResponseWriter, r *http.Request)
	ListCommandsHandler(w http.ResponseWriter, r *http.Request)
	GetCommandHandler(w http.ResponseWriter, r *http.Request)
	PollCommandsHandler(w http.ResponseWriter, r *http.Request)
	ReportCommandHandler(w http.ResponseWriter, r *http.Request)
}

// Compile-time interface checks.
var (
	_ ScheduleHandlerInterface = (*ScheduleHandler)(nil)
	_ ComputerHandlerInterface = (*ComputerHandler)(nil)
	_ CommandHandlerInterface  = (*CommandHandler)(nil)
)
