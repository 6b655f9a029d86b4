// Package llm provides text-generation provider clients.
//
// Each backend converts between its wire format and the provider-neutral
// types here at the package boundary. Callers never see provider-specific
// payloads or raw provider error text; HTTP failures surface as *APIError
// for the generation layer to classify.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blueprintlab/blueprintd/internal/config"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// CompletionRequest is a provider-neutral generation request.
type CompletionRequest struct {
	// Model is the provider model identifier.
	Model string

	// System is the system-role instruction block. May be empty.
	System string

	// Prompt is the user-role content.
	Prompt string

	// MaxTokens caps the completion length.
	MaxTokens int

	// Temperature controls sampling randomness (0.0-1.0).
	Temperature float64
}

// Completion is the unified response from any provider.
type Completion struct {
	Text      string
	Model     string
	CreatedAt time.Time

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int
}

// TokensUsed returns the combined input and output token count.
func (c *Completion) TokensUsed() int {
	return c.InputTokens + c.OutputTokens
}

// Client is the interface every generation provider implements.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// Ping checks if the provider is reachable with the configured credential.
	Ping(ctx context.Context) error
}

// New selects and constructs the configured provider backend. The choice
// is made once here; everything downstream speaks through Client.
func New(cfg config.GenerationConfig, logger *slog.Logger) (Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, "", logger), nil
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg.APIKey, "", logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
