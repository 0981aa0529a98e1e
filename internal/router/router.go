package router

import (
	"log"
	"net/http"

	"remote-lab-api/internal/auth"
	"remote-lab-api/internal/config"
	"remote-lab-api/internal/handler"
	"remote-lab-api/internal/middleware"

	"github.com/gorilla/mux"
)

// Handlers bundles the HTTP handlers wired into the router.
type Handlers struct {
	Schedule *handler.ScheduleHandler
	Computer *handler.ComputerHandler
	Command  *handler.CommandHandler
	Auth     *handler.AuthHandler
	Events   *handler.EventsHandler
}

// NewRouter creates a new router and sets up the routes with security middleware.
//
// Three audiences share the API surface: requesters (booking, no auth),
// agents (command poll/report, no auth because they sit behind NAT and are
// provisioned out of band) and operators (everything else, JWT).
func NewRouter(h Handlers, tokens *auth.TokenManager, cfg *config.Config, logger *log.Logger) *mux.Router {
	r := mux.NewRouter()

	securityMW := middleware.NewSecurityMiddleware(&cfg.Security)
	loggingMW := middleware.NewLoggingMiddleware(logger)
	authMW := middleware.NewAuthMiddleware(tokens)

	// Apply global middleware in order
	r.Use(securityMW.SecurityHeaders)
	r.Use(securityMW.CORS)
	r.Use(securityMW.TrustedProxy)
	r.Use(securityMW.RateLimit)
	r.Use(loggingMW.LogRequests)

	// The SSE stream is long-lived and must stay outside the request timeout.
	r.HandleFunc("/api/v1/events", h.Events.StreamHandler).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(securityMW.RequestTimeout)

	// Requester endpoints
	api.HandleFunc("/schedules", h.Schedule.BookScheduleHandler).Methods("POST")
	api.HandleFunc("/schedules/email/{email}", h.Schedule.GetSchedulesByEmailHandler).Methods("GET")

	// Agent endpoints
	api.HandleFunc("/agent/commands", h.Command.PollCommandsHandler).Methods("GET")
	api.HandleFunc("/agent/commands/{id}/result", h.Command.ReportCommandHandler).Methods("POST")

	// Authentication and health
	api.HandleFunc("/auth/login", h.Auth.LoginHandler).Methods("POST")
	api.HandleFunc("/health", h.Schedule.HealthHandler).Methods("GET")

	// Operator endpoints behind JWT
	protect := func(hf http.HandlerFunc) http.Handler {
		return authMW.RequireAuth(hf)
	}

	api.Handle("/schedules", protect(h.Schedule.GetAllSchedulesHandler)).Methods("GET")
	api.Handle("/schedules/{id}", protect(h.Schedule.GetScheduleHandler)).Methods("GET")
	api.Handle("/schedules/{id}/approve", protect(h.Schedule.ApproveScheduleHandler)).Methods("POST")
	api.Handle("/schedules/{id}/cancel", protect(h.Schedule.CancelScheduleHandler)).Methods("POST")

	api.Handle("/computers", protect(h.Computer.CreateComputerHandler)).Methods("POST")
	api.Handle("/computers", protect(h.Computer.GetAllComputersHandler)).Methods("GET")
	api.Handle("/computers/{id}", protect(h.Computer.GetComputerHandler)).Methods("GET")
	api.Handle("/computers/{id}", protect(h.Computer.UpdateComputerHandler)).Methods("PUT")
	api.Handle("/computers/{id}/status", protect(h.Computer.UpdateComputerStatusHandler)).Methods("PUT")
	api.Handle("/computers/{id}", protect(h.Computer.DeleteComputerHandler)).Methods("DELETE")

	api.Handle("/commands", protect(h.Command.EnqueueCommandHandler)).Methods("POST")
	api.Handle("/commands", protect(h.Command.ListCommandsHandler)).Methods("GET")
	api.Handle("/commands/{id}", protect(h.Command.GetCommandHandler)).Methods("GET")

	return r
}
