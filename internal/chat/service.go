// Package chat orchestrates the conversation repository and the response
// bridge for each user turn.
package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/playdo-labs/playdo/internal/bridge"
	"github.com/playdo-labs/playdo/internal/domain"
	"github.com/playdo-labs/playdo/internal/store"
)

// SendMessageInput is one user turn with its optional editor context.
type SendMessageInput struct {
	Text       string
	EditorCode domain.OptionalText
	Stdout     domain.OptionalText
	Stderr     domain.OptionalText
}

// Service runs conversation turns.
type Service struct {
	repo      store.ConversationRepository
	responder bridge.Responder
	logger    *slog.Logger

	// turnLocks serializes turns per conversation id; *sync.Mutex values.
	turnLocks sync.Map
}

// NewService creates a chat service.
func NewService(repo store.ConversationRepository, responder bridge.Responder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, responder: responder, logger: logger}
}

func (s *Service) lock(id int64) func() {
	v, _ := s.turnLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateConversation starts an empty conversation.
func (s *Service) CreateConversation(ctx context.Context) (*domain.Conversation, error) {
	conv, err := s.repo.CreateConversation(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "conversation created", "conversation_id", conv.ID)
	return conv, nil
}

// GetConversation loads a conversation with all messages.
func (s *Service) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	return s.repo.GetConversation(ctx, id)
}

// ListConversationIDs returns every conversation id.
func (s *Service) ListConversationIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListConversationIDs(ctx)
}

// SendMessage validates and persists the user's message, asks the bridge for
// a reply, and persists that. Invalid input persists nothing. If the bridge
// fails the user message stays persisted and the *domain.BridgeError is
// returned; RetryResponse can complete the turn later.
func (s *Service) SendMessage(ctx context.Context, id int64, in SendMessageInput) (*domain.Conversation, error) {
	msg, err := domain.NewUserMessage(in.Text, in.EditorCode, in.Stdout, in.Stderr)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(id)
	defer unlock()

	conv, err := s.repo.AppendMessages(ctx, id, []domain.Message{msg})
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "user message stored",
		"conversation_id", id,
		"messages", len(conv.Messages),
		"editor_code", msg.EditorCode.State().String(),
		"stdout", msg.Stdout.State().String())

	return s.respond(ctx, conv)
}

// RetryResponse completes a turn whose bridge call failed. The conversation
// must end with a user message; otherwise a *domain.ConflictError is returned.
func (s *Service) RetryResponse(ctx context.Context, id int64) (*domain.Conversation, error) {
	unlock := s.lock(id)
	defer unlock()

	conv, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	last, ok := conv.LastMessage()
	if !ok || last.Role != domain.RoleUser {
		return nil, &domain.ConflictError{Message: "conversation has no user message awaiting a response"}
	}

	s.logger.InfoContext(ctx, "retrying assistant response", "conversation_id", id)
	return s.respond(ctx, conv)
}

func (s *Service) respond(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	reply, err := s.responder.NextResponse(ctx, conv.Messages)
	if err != nil {
		s.logger.WarnContext(ctx, "response bridge failed",
			"conversation_id", conv.ID,
			"error", err)
		return nil, err
	}

	updated, err := s.repo.AppendMessages(ctx, conv.ID, []domain.Message{reply})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "turn completed",
		"conversation_id", conv.ID,
		"messages", len(updated.Messages))
	return updated, nil
}
