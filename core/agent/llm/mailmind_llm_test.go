package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{name: "short", input: "Hello world", max: 100, expected: "Hello world"},
		{name: "exact length", input: "Hello", max: 5, expected: "Hello"},
		{name: "truncated", input: "Hello world", max: 5, expected: "Hello"},
		{name: "multibyte", input: "환불 요청입니다", max: 2, expected: "환불"},
		{name: "empty", input: "", max: 10, expected: ""},
		{name: "zero max", input: "abc", max: 0, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Truncate(tt.input, tt.max)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name     string
		text     string
		ok       bool
		expected string
	}{
		{name: "json fence", text: "Here:\n```json\n{\"name\": \"a\"}\n```\nDone", ok: true, expected: "a"},
		{name: "generic fence", text: "```\n{\"name\": \"b\"}\n```", ok: true, expected: "b"},
		{name: "bare", text: "  {\"name\": \"c\"}  ", ok: true, expected: "c"},
		{name: "broken json fence falls back to whole text", text: "```json\n{oops\n```", ok: false},
		{name: "prose", text: "I cannot help with that.", ok: false},
		{name: "empty", text: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			ok := ExtractJSON(tt.text, &p)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && p.Name != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, p.Name)
			}
		})
	}
}

type recorded struct {
	mu       sync.Mutex
	requests []map[string]any
}

func (r *recorded) all() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.requests...)
}

func completionServer(t *testing.T, content string, status int) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		rec.mu.Lock()
		rec.requests = append(rec.requests, req)
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprint(w, `{"error": {"message": "boom", "type": "server_error"}}`)
			return
		}
		resp := map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "test",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestClientCompleteUsesProfile(t *testing.T) {
	srv, rec := completionServer(t, "Hello there", http.StatusOK)
	client := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "m"}, zerolog.Nop())

	text, err := client.For(ProfileExecution).Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hello there" {
		t.Errorf("expected %q, got %q", "Hello there", text)
	}

	requests := rec.all()
	if len(requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(requests))
	}
	req := requests[0]
	if req["model"] != "m" {
		t.Errorf("expected model m, got %v", req["model"])
	}
	if req["max_tokens"] != float64(2048) {
		t.Errorf("expected max_tokens 2048, got %v", req["max_tokens"])
	}
}

func TestClientEmptyCompletionIsError(t *testing.T) {
	srv, _ := completionServer(t, "   ", http.StatusOK)
	client := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL}, zerolog.Nop())

	_, err := client.Complete(context.Background(), ProfileClassifier, "prompt")
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestClientBreakerOpensAfterFailures(t *testing.T) {
	srv, requests := completionServer(t, "", http.StatusInternalServerError)
	client := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL}, zerolog.Nop())

	for i := 0; i < 5; i++ {
		if _, err := client.Complete(context.Background(), ProfileLearning, "p"); err == nil {
			t.Fatalf("expected error on attempt %d", i)
		}
	}

	_, err := client.Complete(context.Background(), ProfileLearning, "p")
	if outcome(err) != "breaker_open" {
		t.Errorf("expected breaker_open, got %v", err)
	}
	if n := len(requests.all()); n != 5 {
		t.Errorf("expected 5 upstream requests, got %d", n)
	}
}
