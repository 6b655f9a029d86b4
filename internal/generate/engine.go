// Package generate wraps the LLM client with the retry, classification,
// and normalization policy for blueprint generation. The engine is the
// only caller of llm.Client in the pipeline; everything above it sees
// either a normalized Result or ErrGenerationFailed.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blueprintlab/blueprintd/internal/config"
	"github.com/blueprintlab/blueprintd/internal/events"
	"github.com/blueprintlab/blueprintd/internal/llm"
	"github.com/blueprintlab/blueprintd/internal/prompts"
	"github.com/blueprintlab/blueprintd/internal/session"
)

// questionMaxTokens bounds clarification question completions. Questions
// are one sentence; a blueprint-sized budget would just invite rambling.
const questionMaxTokens = 100

// Result is a normalized generation outcome.
type Result struct {
	Content     string    `json:"content"`
	Summary     string    `json:"summary"`
	Model       string    `json:"model"`
	TokensUsed  int       `json:"tokens_used"`
	Attempts    int       `json:"attempts"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Engine runs provider calls under the retry policy.
type Engine struct {
	client   llm.Client
	cfg      config.GenerationConfig
	failures *FailureStore
	notifier *Notifier
	bus      *events.Bus
	logger   *slog.Logger

	// sleep is swappable so retry tests do not wait out real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an engine. failures and notifier may be nil; the
// engine then skips persistence and alerting but retries identically.
func NewEngine(client llm.Client, cfg config.GenerationConfig, failures *FailureStore, notifier *Notifier, bus *events.Bus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:   client,
		cfg:      cfg,
		failures: failures,
		notifier: notifier,
		bus:      bus,
		logger:   logger.With("component", "generate"),
		sleep:    sleepCtx,
	}
}

// Generate runs one completion under the retry policy and returns a
// normalized result. Retries cover timeouts, rate limits, and provider
// unavailability; auth and other client errors fail on the first
// attempt. Backoff doubles per attempt (1s, 2s, ...) with no jitter.
func (e *Engine) Generate(ctx context.Context, sessionID string, req llm.CompletionRequest) (*Result, error) {
	timeout := time.Duration(e.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	start := time.Now()
	for attempt := 0; ; attempt++ {
		e.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceGenerate,
			Kind:      events.KindGenerationStart,
			Data:      map[string]any{"session_id": sessionID, "model": req.Model, "attempt": attempt},
		})

		actx, cancel := context.WithTimeout(ctx, timeout)
		comp, err := e.client.Complete(actx, req)
		cancel()

		if err == nil {
			content := StripFences(comp.Text)
			res := &Result{
				Content:     content,
				Summary:     Summarize(content),
				Model:       comp.Model,
				TokensUsed:  comp.TokensUsed(),
				Attempts:    attempt + 1,
				GeneratedAt: time.Now().UTC(),
			}
			e.bus.Publish(events.Event{
				Timestamp: time.Now(),
				Source:    events.SourceGenerate,
				Kind:      events.KindGenerationComplete,
				Data: map[string]any{
					"session_id":  sessionID,
					"model":       res.Model,
					"tokens_used": res.TokensUsed,
					"attempts":    res.Attempts,
					"elapsed_ms":  time.Since(start).Milliseconds(),
				},
			})
			return res, nil
		}

		kind := ClassifyError(err)
		e.logger.Warn("completion attempt failed",
			"session_id", sessionID,
			"attempt", attempt,
			"kind", kind,
			"error", err)

		if !retryable(kind) || attempt >= e.cfg.MaxRetries {
			return nil, e.giveUp(ctx, sessionID, req, kind, err, attempt+1)
		}

		backoff := time.Duration(1<<attempt) * time.Second
		if serr := e.sleep(ctx, backoff); serr != nil {
			return nil, e.giveUp(ctx, sessionID, req, kind, err, attempt+1)
		}
	}
}

// giveUp records the terminal failure, alerts, and builds the caller's
// error. Persistence problems are logged but never mask the original
// failure.
func (e *Engine) giveUp(ctx context.Context, sessionID string, req llm.CompletionRequest, kind Kind, cause error, attempts int) error {
	if e.failures != nil {
		rec := FailureRecord{
			SessionID:  sessionID,
			PromptHash: PromptHash(req.Prompt),
			Kind:       kind,
			Message:    cause.Error(),
			Attempts:   attempts,
		}
		if err := e.failures.Record(ctx, rec); err != nil {
			e.logger.Error("record generation failure", "error", err)
		}
	}

	e.notifier.Notify(string(kind), cause.Error())

	e.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceGenerate,
		Kind:      events.KindGenerationFailed,
		Data:      map[string]any{"session_id": sessionID, "error_kind": string(kind), "attempts": attempts},
	})

	return fmt.Errorf("%s after %d attempts: %w", kind, attempts, ErrGenerationFailed)
}

// GenerateBlueprint runs the full blueprint prompt for a completed
// intake and conversation transcript.
func (e *Engine) GenerateBlueprint(ctx context.Context, sessionID string, intake session.Intake, transcript []session.Message) (*Result, error) {
	req := llm.CompletionRequest{
		Model:       e.cfg.Model,
		System:      prompts.BlueprintSystem,
		Prompt:      prompts.BlueprintPrompt(intake, transcript),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}
	return e.Generate(ctx, sessionID, req)
}

// GenerateReply runs a conversational turn completion under the given
// state instructions.
func (e *Engine) GenerateReply(ctx context.Context, sessionID, system, prompt string) (*Result, error) {
	req := llm.CompletionRequest{
		Model:       e.cfg.Model,
		System:      system,
		Prompt:      prompt,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}
	return e.Generate(ctx, sessionID, req)
}

// GenerateQuestion produces the next clarification question for the
// topics not yet covered. Provider failure degrades to the canned
// fallback question for the topic instead of surfacing an error; the
// conversation must keep moving.
func (e *Engine) GenerateQuestion(ctx context.Context, sessionID string, intake session.Intake, asked []string) (string, error) {
	topic := prompts.NextTopic(asked)

	req := llm.CompletionRequest{
		Model:       e.cfg.Model,
		System:      prompts.QuestionSystem,
		Prompt:      prompts.QuestionPrompt(intake, topic),
		MaxTokens:   questionMaxTokens,
		Temperature: e.cfg.Temperature,
	}

	res, err := e.Generate(ctx, sessionID, req)
	if err != nil {
		e.logger.Warn("question generation failed, using fallback", "session_id", sessionID, "topic", topic)
		return prompts.FallbackQuestion(asked), nil
	}
	return res.Content, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
