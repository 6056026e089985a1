package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"persona_engine/internal/config"
	"persona_engine/internal/logger"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// Replies used when no model can answer
const (
	MockReply     = "[MOCK] Nenhuma API key configurada"
	FallbackReply = "putz, deu um bug aqui... tenta de novo?"
)

// Request is the context bundle handed to the model
type Request struct {
	SystemPrompt string
	History      []*schema.Message
	Message      string
}

// Generator produces the agent's reply text
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// ChainGenerator runs system prompt, history and user message through a compiled eino chain
type ChainGenerator struct {
	name    string
	timeout time.Duration
	chain   compose.Runnable[map[string]any, *schema.Message]
}

// NewChainGenerator compiles the reply chain over a chat model
func NewChainGenerator(ctx context.Context, name string, chatModel model.BaseChatModel, timeout time.Duration) (*ChainGenerator, error) {
	template := prompt.FromMessages(schema.FString,
		schema.SystemMessage("{system_prompt}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{message}"),
	)

	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(template).
		AppendChatModel(chatModel).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating reply chain: %w", err)
	}

	return &ChainGenerator{name: name, timeout: timeout, chain: chain}, nil
}

func (g *ChainGenerator) Name() string {
	return g.name
}

// Generate invokes the chain and returns the trimmed reply
func (g *ChainGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	history := req.History
	if history == nil {
		history = []*schema.Message{}
	}

	started := time.Now()
	out, err := g.chain.Invoke(ctx, map[string]any{
		"system_prompt": req.SystemPrompt,
		"history":       history,
		"message":       req.Message,
	})
	if err != nil {
		return "", fmt.Errorf("%s generation: %w", g.name, err)
	}

	logger.Debug().
		Str("provider", g.name).
		Int64("duration_ms", time.Since(started).Milliseconds()).
		Int("reply_len", len(out.Content)).
		Msg("reply generated")

	return strings.TrimSpace(out.Content), nil
}

// MockGenerator answers with a canned reply
type MockGenerator struct {
	Reply string
}

func (m *MockGenerator) Name() string {
	return "mock"
}

func (m *MockGenerator) Generate(context.Context, Request) (string, error) {
	if m.Reply == "" {
		return MockReply, nil
	}
	return m.Reply, nil
}

// New selects the configured provider. Hosted providers without an API key fall back to the mock.
func New(ctx context.Context, cfg config.GenerationConfig) (Generator, error) {
	maxTokens := cfg.MaxTokens
	temperature := cfg.Temperature

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch cfg.Provider {
	case "", "mock":
		return &MockGenerator{}, nil
	case "openai":
		if cfg.APIKey == "" {
			logger.Warn().Str("provider", cfg.Provider).Msg("no API key configured, using mock replies")
			return &MockGenerator{}, nil
		}
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	case "ollama":
		chatModel, err = ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case "ark":
		if cfg.APIKey == "" {
			logger.Warn().Str("provider", cfg.Provider).Msg("no API key configured, using mock replies")
			return &MockGenerator{}, nil
		}
		chatModel, err = ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	case "deepseek":
		if cfg.APIKey == "" {
			logger.Warn().Str("provider", cfg.Provider).Msg("no API key configured, using mock replies")
			return &MockGenerator{}, nil
		}
		chatModel, err = deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating %s chat model: %w", cfg.Provider, err)
	}

	return NewChainGenerator(ctx, cfg.Provider, chatModel, cfg.Timeout)
}
