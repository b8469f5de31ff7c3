// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/playdo-labs/playdo/internal/domain"
)

// ConversationRepository is the sole authority for conversation and message
// durability. Messages are append-only and always returned in sequence order.
type ConversationRepository interface {
	// CreateConversation inserts an empty conversation with a server-assigned id.
	CreateConversation(ctx context.Context) (*domain.Conversation, error)

	// AppendMessages assigns the next sequence numbers to msgs in the given
	// order, bumps updated_at, and returns the reloaded conversation.
	// Returns *domain.NotFoundError when the conversation does not exist.
	AppendMessages(ctx context.Context, conversationID int64, msgs []domain.Message) (*domain.Conversation, error)

	// GetConversation reconstructs a conversation with all of its messages.
	GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)

	// ListConversationIDs returns every known conversation id.
	ListConversationIDs(ctx context.Context) ([]int64, error)
}

// UserRepository persists accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	UpdateUser(ctx context.Context, id int64, update domain.UserUpdate) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Repository is the full persistence surface backed by one database.
type Repository interface {
	ConversationRepository
	UserRepository

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
