package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playdo-labs/playdo/internal/auth"
	"github.com/playdo-labs/playdo/internal/identity"
)

// AuthHandler serves login and the current-user endpoint.
type AuthHandler struct {
	users *auth.UserService
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(users *auth.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterPublic registers routes that need no token.
func (h *AuthHandler) RegisterPublic(r chi.Router) {
	r.Post("/login", h.Login)
}

// RegisterRoutes registers routes on an authenticated router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.Me)
}

// Login exchanges a username and password for an access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	res, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, user)
}
