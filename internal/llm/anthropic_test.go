package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blueprintlab/blueprintd/internal/config"
)

func TestAnthropicComplete(t *testing.T) {
	var gotReq anthropicRequest
	var gotKey, gotVersion string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}

		resp := anthropicResponse{
			Model: "claude-sonnet-4-20250514",
			Role:  "assistant",
			Content: []anthropicContent{
				{Type: "text", Text: "## Blueprint\n\n"},
				{Type: "text", Text: "Automate the intake."},
			},
			StopReason: "end_turn",
			Usage:      anthropicUsage{InputTokens: 200, OutputTokens: 80},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewAnthropicClient("key-test", srv.URL, nil)
	got, err := c.Complete(context.Background(), CompletionRequest{
		Model:       "claude-sonnet-4-20250514",
		System:      "You are an automation consultant.",
		Prompt:      "Design an invoicing workflow.",
		MaxTokens:   2000,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if gotKey != "key-test" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion != anthropicAPIVersion {
		t.Errorf("anthropic-version = %q", gotVersion)
	}
	if gotReq.System != "You are an automation consultant." {
		t.Errorf("system = %q", gotReq.System)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("messages = %+v, want single user message", gotReq.Messages)
	}

	// Text blocks are concatenated.
	want := "## Blueprint\n\nAutomate the intake."
	if got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
	if got.InputTokens != 200 || got.OutputTokens != 80 {
		t.Errorf("tokens = %d/%d, want 200/80", got.InputTokens, got.OutputTokens)
	}
}

func TestAnthropicComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error","error":{"type":"overloaded_error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewAnthropicClient("key-test", srv.URL, nil)
	_, err := c.Complete(context.Background(), CompletionRequest{Model: "claude-sonnet-4-20250514", Prompt: "hi"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", apiErr.StatusCode)
	}
	if apiErr.Provider != "anthropic" {
		t.Errorf("Provider = %q", apiErr.Provider)
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	openai, err := New(config.GenerationConfig{Provider: config.ProviderOpenAI, APIKey: "k"}, nil)
	if err != nil {
		t.Fatalf("New(openai): %v", err)
	}
	if _, ok := openai.(*OpenAIClient); !ok {
		t.Errorf("New(openai) = %T", openai)
	}

	anthropic, err := New(config.GenerationConfig{Provider: config.ProviderAnthropic, APIKey: "k"}, nil)
	if err != nil {
		t.Fatalf("New(anthropic): %v", err)
	}
	if _, ok := anthropic.(*AnthropicClient); !ok {
		t.Errorf("New(anthropic) = %T", anthropic)
	}

	if _, err := New(config.GenerationConfig{Provider: "cohere"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
