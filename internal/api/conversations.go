package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/playdo-labs/playdo/internal/chat"
	"github.com/playdo-labs/playdo/internal/domain"
)

// ConversationHandler serves the conversation endpoints.
type ConversationHandler struct {
	chat *chat.Service
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(svc *chat.Service) *ConversationHandler {
	return &ConversationHandler{chat: svc}
}

// RegisterRoutes registers conversation routes on an authenticated router.
// sendMiddleware wraps the endpoints that call the response bridge.
func (h *ConversationHandler) RegisterRoutes(r chi.Router, sendMiddleware ...func(http.Handler) http.Handler) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.With(sendMiddleware...).Post("/{id}/send_message", h.SendMessage)
		r.With(sendMiddleware...).Post("/{id}/retry", h.Retry)
	})
}

// sendMessageRequest is the send_message body. The context fields use
// OptionalText so null and "" stay distinct.
type sendMessageRequest struct {
	Message    *string             `json:"message"`
	EditorCode domain.OptionalText `json:"editor_code"`
	Stdout     domain.OptionalText `json:"stdout"`
	Stderr     domain.OptionalText `json:"stderr"`
}

// List returns every conversation id.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.chat.ListConversationIDs(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string][]int64{"conversation_ids": ids})
}

// Create starts an empty conversation.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chat.CreateConversation(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, conv)
}

// Get returns one conversation with its messages.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		Error(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	conv, err := h.chat.GetConversation(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, conv)
}

// SendMessage appends the user's message and the assistant's reply.
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		Error(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Message == nil || strings.TrimSpace(*req.Message) == "" {
		Error(w, http.StatusBadRequest, "Missing 'message' field")
		return
	}

	conv, err := h.chat.SendMessage(r.Context(), id, chat.SendMessageInput{
		Text:       *req.Message,
		EditorCode: req.EditorCode,
		Stdout:     req.Stdout,
		Stderr:     req.Stderr,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, conv)
}

// Retry fetches the assistant reply for a turn whose bridge call failed.
func (h *ConversationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		Error(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	conv, err := h.chat.RetryResponse(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, conv)
}
