package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/playdo-labs/playdo/internal/domain"
	"github.com/playdo-labs/playdo/internal/store"
)

// ErrInvalidCredentials is returned by Login without saying which part failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

// dummyHash keeps Authenticate timing similar for unknown usernames.
var dummyHash = sync.OnceValue(func() string {
	hash, _ := bcrypt.GenerateFromPassword([]byte("playdo-unknown-user"), bcrypt.DefaultCost)
	return string(hash)
})

// CreateUserInput describes a new account.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	IsAdmin  bool
}

// UpdateUserInput is a partial update; nil fields are unchanged.
type UpdateUserInput struct {
	Username *string
	Email    *string
	Password *string
	IsAdmin  *bool
}

// LoginResult carries the token issued on a successful login.
type LoginResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   int64        `json:"expires_at"`
	User        *domain.User `json:"user"`
}

// UserService manages accounts and logins.
type UserService struct {
	repo   store.UserRepository
	tokens *TokenService
	logger *slog.Logger
}

// NewUserService creates a user service. tokens may be nil for callers that
// never log in, such as the operator CLI.
func NewUserService(repo store.UserRepository, tokens *TokenService, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{repo: repo, tokens: tokens, logger: logger}
}

func validateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return domain.NewValidationError("username", "must not be empty")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.NewValidationError("username", "must not contain whitespace")
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return domain.NewValidationError("email", "must be a valid email address")
	}
	return nil
}

// CreateUser validates input, hashes the password and stores the account.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        domain.NormalizeEmail(in.Email),
		PasswordHash: hash,
		IsAdmin:      in.IsAdmin,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user created", "user_id", user.ID, "username", user.Username, "is_admin", user.IsAdmin)
	return user, nil
}

// UpdateUser applies a partial update.
func (s *UserService) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (*domain.User, error) {
	var update domain.UserUpdate
	if in.Username != nil {
		if err := validateUsername(*in.Username); err != nil {
			return nil, err
		}
		update.Username = in.Username
	}
	if in.Email != nil {
		if err := validateEmail(*in.Email); err != nil {
			return nil, err
		}
		email := domain.NormalizeEmail(*in.Email)
		update.Email = &email
	}
	if in.Password != nil {
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		update.PasswordHash = &hash
	}
	update.IsAdmin = in.IsAdmin

	user, err := s.repo.UpdateUser(ctx, id, update)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user updated", "user_id", id)
	return user, nil
}

// DeleteUser removes an account.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", id)
	return nil
}

// GetUser returns an account by id.
func (s *UserService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.repo.GetUser(ctx, id)
}

// GetUserByUsername returns an account by username.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.repo.GetUserByUsername(ctx, username)
}

// GetUserByEmail returns an account by email.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.repo.GetUserByEmail(ctx, email)
}

// ListUsers returns every account.
func (s *UserService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.repo.ListUsers(ctx)
}

// Authenticate checks a username and password.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if domain.IsNotFound(err) {
			CheckPassword(dummyHash(), password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token.
func (s *UserService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if s.tokens == nil {
		return nil, errors.New("login is not configured")
	}
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.logger.InfoContext(ctx, "login failed", "username", username)
		}
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID)
	return &LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.Unix(),
		User:        user,
	}, nil
}
