package claude_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/toolbridge/toolbridge/claude"
)

func fastRetry() claude.ClientOption {
	return claude.WithRetryPolicy(claude.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	})
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := claude.NewClient(""); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := claude.NewClient("   "); err == nil {
		t.Error("expected error for blank api key")
	}
}

func TestCreateMessage(t *testing.T) {
	var gotReq claude.MessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("X-API-Key = %q", got)
		}
		if got := r.Header.Get("Anthropic-Version"); got != "2023-06-01" {
			t.Errorf("Anthropic-Version = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}

		json.NewEncoder(w).Encode(claude.MessageResponse{
			ID:         "msg_1",
			Role:       "assistant",
			Content:    []claude.ContentBlock{{Type: "text", Text: "hello"}},
			StopReason: claude.StopReasonEndTurn,
			Usage:      claude.Usage{InputTokens: 10, OutputTokens: 5},
		})
	}))
	defer srv.Close()

	client, err := claude.NewClient("test-key", claude.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	resp, err := client.CreateMessage(context.Background(), claude.MessageRequest{
		Messages: []claude.MessageParam{
			{Role: "user", Content: []claude.ContentBlock{{Type: "text", Text: "hi"}}},
		},
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if resp.Text() != "hello" {
		t.Errorf("Text() = %q", resp.Text())
	}
	if resp.Usage.InputTokens != 10 {
		t.Errorf("input tokens = %d", resp.Usage.InputTokens)
	}

	// Client defaults fill zero-valued request fields.
	if gotReq.Model != claude.DefaultModel {
		t.Errorf("model = %q, want default", gotReq.Model)
	}
	if gotReq.MaxTokens != claude.DefaultMaxTokens {
		t.Errorf("max_tokens = %d, want default", gotReq.MaxTokens)
	}
}

func TestCreateMessageAPIErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(claude.ErrorResponse{
			Error: claude.ErrorBody{Type: "invalid_request_error", Message: "bad payload"},
		})
	}))
	defer srv.Close()

	client, err := claude.NewClient("test-key", claude.WithBaseURL(srv.URL), fastRetry())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.CreateMessage(context.Background(), claude.MessageRequest{})
	var apiErr claude.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Type != "invalid_request_error" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, a 400 must not be retried", got)
	}
}

func TestCreateMessageRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(claude.MessageResponse{
			Content:    []claude.ContentBlock{{Type: "text", Text: "recovered"}},
			StopReason: claude.StopReasonEndTurn,
		})
	}))
	defer srv.Close()

	client, err := claude.NewClient("test-key", claude.WithBaseURL(srv.URL), fastRetry())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	resp, err := client.CreateMessage(context.Background(), claude.MessageRequest{})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if resp.Text() != "recovered" {
		t.Errorf("Text() = %q", resp.Text())
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestCreateMessageRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := claude.NewClient("test-key", claude.WithBaseURL(srv.URL), fastRetry())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.CreateMessage(context.Background(), claude.MessageRequest{})
	if !errors.Is(err, claude.ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestCreateMessageHonorsRateLimiterCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(claude.MessageResponse{StopReason: claude.StopReasonEndTurn})
	}))
	defer srv.Close()

	limiter := claude.NewRateLimiter(1, 0)
	client, err := claude.NewClient("test-key",
		claude.WithBaseURL(srv.URL),
		claude.WithRateLimiter(limiter))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := client.CreateMessage(context.Background(), claude.MessageRequest{}); err != nil {
		t.Fatalf("first CreateMessage: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.CreateMessage(ctx, claude.MessageRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("rate-limited call err = %v, want context deadline", err)
	}
}
