// Package bridge maps an ordered conversation history to the next assistant
// message by calling an upstream chat-completion API.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/playdo-labs/playdo/internal/config"
	"github.com/playdo-labs/playdo/internal/domain"
)

// Responder returns the assistant's reply to an ordered history whose last
// message is from the user.
type Responder interface {
	NextResponse(ctx context.Context, history []domain.Message) (domain.Message, error)
}

// Request is the provider-neutral completion request.
type Request struct {
	System    string
	Messages  []domain.WireMessage
	MaxTokens int
}

// Provider is an upstream completion API. Complete returns the text blocks of
// the reply in order.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) ([]string, error)
}

// ErrEmptyResponse is returned when the upstream reply has no text content.
var ErrEmptyResponse = errors.New("response contained no text content")

// Service enforces the bridge contract around a Provider.
type Service struct {
	provider     Provider
	systemPrompt string
	maxTokens    int
	logger       *slog.Logger
}

var _ Responder = (*Service)(nil)

// NewService creates a bridge service.
func NewService(provider Provider, systemPrompt string, maxTokens int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider:     provider,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		logger:       logger,
	}
}

// New builds the service selected by cfg. Testing mode always uses the
// static provider.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	prompt, err := LoadSystemPrompt(cfg.LLM.SystemPromptFile)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.LLM.Timeout}

	var provider Provider
	switch name := cfg.EffectiveProvider(); name {
	case config.ProviderStatic:
		provider = NewStaticProvider("")
	case config.ProviderAnthropic:
		if cfg.LLM.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the %s provider", name)
		}
		provider = NewAnthropicProvider(AnthropicOptions{
			APIKey:     cfg.LLM.AnthropicAPIKey,
			BaseURL:    cfg.LLM.AnthropicBaseURL,
			Model:      cfg.LLM.AnthropicModel,
			HTTPClient: httpClient,
		})
	case config.ProviderOpenAI:
		if cfg.LLM.OpenAIAPIKey == "" && cfg.LLM.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY or OPENAI_BASE_URL is required for the %s provider", name)
		}
		provider = NewOpenAIProvider(OpenAIOptions{
			APIKey:     cfg.LLM.OpenAIAPIKey,
			BaseURL:    cfg.LLM.OpenAIBaseURL,
			Model:      cfg.LLM.OpenAIModel,
			HTTPClient: httpClient,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", name)
	}

	return NewService(provider, prompt, cfg.LLM.MaxTokens, logger), nil
}

// Provider returns the name of the upstream provider.
func (s *Service) Provider() string {
	return s.provider.Name()
}

// NextResponse converts history to wire form, calls the provider once and
// maps the reply back to an assistant message. Upstream failures are
// returned as *domain.BridgeError and never retried.
func (s *Service) NextResponse(ctx context.Context, history []domain.Message) (domain.Message, error) {
	if len(history) == 0 {
		return domain.Message{}, domain.NewValidationError("messages", "history must not be empty")
	}
	if last := history[len(history)-1]; last.Role != domain.RoleUser {
		return domain.Message{}, domain.NewValidationError("messages", "last message must be from the user")
	}

	wire := make([]domain.WireMessage, 0, len(history))
	for _, m := range history {
		w, err := m.ToWire()
		if err != nil {
			return domain.Message{}, err
		}
		wire = append(wire, w)
	}

	s.logger.DebugContext(ctx, "requesting assistant response",
		"provider", s.provider.Name(),
		"messages", len(wire))

	texts, err := s.provider.Complete(ctx, Request{
		System:    s.systemPrompt,
		Messages:  wire,
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return domain.Message{}, &domain.BridgeError{Provider: s.provider.Name(), Err: err}
	}

	reply, err := FromResponse(texts)
	if err != nil {
		return domain.Message{}, &domain.BridgeError{Provider: s.provider.Name(), Err: err}
	}

	s.logger.DebugContext(ctx, "received assistant response",
		"provider", s.provider.Name(),
		"blocks", len(reply.Content))
	return reply, nil
}

// FromResponse maps upstream text blocks to an assistant message. Empty
// blocks are dropped.
func FromResponse(texts []string) (domain.Message, error) {
	kept := make([]string, 0, len(texts))
	for _, t := range texts {
		if t != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return domain.Message{}, ErrEmptyResponse
	}
	return domain.NewAssistantMessage(kept...)
}
