package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"remote-lab-api/internal/auth"
	"remote-lab-api/internal/repository"
)

// AuthHandler handles operator authentication.
type AuthHandler struct {
	Users  repository.UserRepository
	Tokens *auth.TokenManager
	Logger *log.Logger

	ErrorHandler   *ErrorHandler
	ResponseHelper *ResponseHelper
}

// NewAuthHandler creates a new AuthHandler with dependencies and helpers
func NewAuthHandler(users repository.UserRepository, tokens *auth.TokenManager, logger *log.Logger) *AuthHandler {
	if logger == nil {
		logger = log.Default()
	}

	return &AuthHandler{
		Users:          users,
		Tokens:         tokens,
		Logger:         logger,
		ErrorHandler:   NewErrorHandler(logger),
		ResponseHelper: NewResponseHelper(),
	}
}

// LoginRequest is the payload for operator login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginHandler exchanges operator credentials for a JWT. Wrong email and
// wrong password are indistinguishable in the response.
func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(r, DefaultTimeout)
	defer cancel()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		h.ErrorHandler.SendErrorResponse(w, http.StatusBadRequest,
			"Email and password are required", "VALIDATION_ERROR", nil)
		return
	}

	user, err := h.Users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			h.ErrorHandler.SendErrorResponse(w, http.StatusUnauthorized,
				"Invalid credentials", "UNAUTHORIZED", nil)
			return
		}
		h.ErrorHandler.HandleRepositoryError(w, err, "authenticate")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		h.ErrorHandler.SendErrorResponse(w, http.StatusUnauthorized,
			"Invalid credentials", "UNAUTHORIZED", nil)
		return
	}

	token, err := h.Tokens.Issue(user.Email, user.Role)
	if err != nil {
		h.Logger.Printf("Failed to issue token for %s: %v", user.Email, err)
		h.ErrorHandler.SendErrorResponse(w, http.StatusInternalServerError,
			"Failed to issue token", "INTERNAL_ERROR", nil)
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, LoginResponse{
		Token: token,
		Email: user.Email,
		Role:  user.Role,
	})
}
