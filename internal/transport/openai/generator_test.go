package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-labs/docqa/internal/domain"
)

// chatResponse mirrors the OpenAI-compatible chat completion response.
type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func newGeneratorAgainst(url string) *Generator {
	return NewGenerator(&GeneratorConfig{
		APIKey:      "test-key",
		BaseURL:     url,
		Model:       "test-chat-model",
		Temperature: 0.7,
		MaxTokens:   100,
		Provider:    "test",
		Logger:      zap.NewNop(),
	})
}

func TestGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var resp chatResponse
		resp.ID = "chatcmpl-1"
		resp.Object = "chat.completion"
		resp.Choices = append(resp.Choices, struct {
			Index   int `json:"index"`
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		}{})
		resp.Choices[0].Message.Role = "assistant"
		resp.Choices[0].Message.Content = "The answer is 42.\n\nSOURCES: doc.txt"
		resp.Choices[0].FinishReason = "stop"
		resp.Usage.PromptTokens = 50
		resp.Usage.CompletionTokens = 12
		resp.Usage.TotalTokens = 62

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	gen := newGeneratorAgainst(server.URL)

	result, err := gen.Generate(context.Background(), "What is the answer?")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.Text != "The answer is 42.\n\nSOURCES: doc.txt" {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if result.CompletionTokens != 12 {
		t.Errorf("expected 12 completion tokens, got %d", result.CompletionTokens)
	}
}

func TestGenerator_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail": "model overloaded"}`))
	}))
	defer server.Close()

	gen := newGeneratorAgainst(server.URL)

	_, err := gen.Generate(context.Background(), "question")
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}

func TestGenerator_HungProviderTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Never respond; the client deadline has to fire. Drain the
		// body first so the server notices the client disconnect and
		// cancels the request context (otherwise Close deadlocks).
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	gen := NewGenerator(&GeneratorConfig{
		APIKey:   "test-key",
		BaseURL:  server.URL,
		Model:    "test-chat-model",
		Timeout:  50 * time.Millisecond,
		Provider: "test",
		Logger:   zap.NewNop(),
	})

	_, err := gen.Generate(context.Background(), "question")
	if err == nil {
		t.Fatal("expected an error from a hung provider")
	}
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}

func TestGenerator_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "chatcmpl-2", "object": "chat.completion", "choices": []}`))
	}))
	defer server.Close()

	gen := newGeneratorAgainst(server.URL)

	_, err := gen.Generate(context.Background(), "question")
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration for empty choices, got %v", err)
	}
}
