package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/playdo-labs/playdo/internal/auth"
	"github.com/playdo-labs/playdo/internal/chat"
	"github.com/playdo-labs/playdo/internal/identity"
	"github.com/playdo-labs/playdo/internal/middleware"
)

// RouterConfig holds the dependencies of the HTTP surface.
type RouterConfig struct {
	Chat           *chat.Service
	Users          *auth.UserService
	Tokens         *auth.TokenService
	DB             Pinger
	AllowedOrigins []string
	// SendLimiter throttles send_message and retry per user. Nil disables it.
	SendLimiter *middleware.RateLimiter
	// Frontend serves every path not matched by the API. Nil leaves them 404.
	Frontend http.Handler
	Logger   *slog.Logger
}

// NewRouter builds the chi router for the API server.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	NewHealthHandler(cfg.DB).RegisterHealth(r)

	authHandler := NewAuthHandler(cfg.Users)
	conversationHandler := NewConversationHandler(cfg.Chat)
	userHandler := NewUserHandler(cfg.Users)

	var sendMiddleware []func(http.Handler) http.Handler
	if cfg.SendLimiter != nil {
		sendMiddleware = append(sendMiddleware, cfg.SendLimiter.Middleware(userKey))
	}

	r.Route("/api", func(r chi.Router) {
		authHandler.RegisterPublic(r)

		r.Group(func(r chi.Router) {
			r.Use(identity.RequireAuth(cfg.Tokens, cfg.Users))
			authHandler.RegisterRoutes(r)
			conversationHandler.RegisterRoutes(r, sendMiddleware...)

			r.Group(func(r chi.Router) {
				r.Use(identity.RequireAdmin)
				userHandler.RegisterRoutes(r)
			})
		})
	})

	if cfg.Frontend != nil {
		r.Handle("/*", cfg.Frontend)
	}

	return r
}

func userKey(r *http.Request) string {
	id := identity.UserIDFromContext(r.Context())
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
