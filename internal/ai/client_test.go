package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func anthropicTestClient(srv *httptest.Server) *AnthropicClient {
	c := NewAnthropicClient("test-key")
	c.BaseURL = srv.URL
	c.HTTP = srv.Client()
	return c
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicVersion {
			t.Errorf("anthropic-version = %q", got)
		}

		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "claude-3-haiku-20240307" || req.MaxTokens != 1024 {
			t.Errorf("request = %+v", req)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "hello" {
			t.Errorf("messages = %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "world"},
			},
		})
	}))
	defer srv.Close()

	got, err := anthropicTestClient(srv).Complete(context.Background(), "claude-3-haiku-20240307", 1024, "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "world" {
		t.Errorf("Complete = %q", got)
	}
}

func TestComplete_SkipsNonTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "thinking", "text": "hmm"},
				{"type": "text", "text": "answer"},
			},
		})
	}))
	defer srv.Close()

	got, err := anthropicTestClient(srv).Complete(context.Background(), "m", 10, "p")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "answer" {
		t.Errorf("Complete = %q", got)
	}
}

func TestComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer srv.Close()

	_, err := anthropicTestClient(srv).Complete(context.Background(), "m", 10, "p")
	if err == nil {
		t.Fatal("expected error for API failure")
	}
	if !strings.Contains(err.Error(), "rate_limit_error") {
		t.Errorf("error lost the API detail: %v", err)
	}
}

func TestComplete_NoTextBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"content": []map[string]string{}})
	}))
	defer srv.Close()

	if _, err := anthropicTestClient(srv).Complete(context.Background(), "m", 10, "p"); err == nil {
		t.Error("expected error for a response with no text block")
	}
}
