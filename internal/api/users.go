package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playdo-labs/playdo/internal/auth"
	"github.com/playdo-labs/playdo/internal/domain"
	"github.com/playdo-labs/playdo/internal/identity"
)

// UserHandler serves admin account management.
type UserHandler struct {
	users *auth.UserService
}

// NewUserHandler creates a user handler.
func NewUserHandler(users *auth.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterRoutes registers routes; the caller must apply admin middleware.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Patch("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	IsAdmin  *bool   `json:"is_admin"`
}

// List returns all accounts.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string][]*domain.User{"users": users})
}

// Create adds an account.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.users.CreateUser(r.Context(), auth.CreateUserInput(req))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, user)
}

// Update applies a partial update.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		Error(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if id == identity.UserIDFromContext(r.Context()) && req.IsAdmin != nil && !*req.IsAdmin {
		Error(w, http.StatusConflict, "cannot remove your own admin access")
		return
	}
	user, err := h.users.UpdateUser(r.Context(), id, auth.UpdateUserInput(req))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, user)
}

// Delete removes an account.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		Error(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if id == identity.UserIDFromContext(r.Context()) {
		Error(w, http.StatusConflict, "cannot delete your own account")
		return
	}
	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
