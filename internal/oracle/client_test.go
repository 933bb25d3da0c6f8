package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func silenceSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	orig := sleepFn
	sleepFn = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	t.Cleanup(func() { sleepFn = orig })
	return &waits
}

func TestChatExtractsChoicesEnvelope(t *testing.T) {
	var hit int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hit, 1)
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "hello"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL, Model: "gpt-4o"}
	out, err := client.Chat(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected 'hello', got %q", out)
	}
	if atomic.LoadInt32(&hit) != 1 {
		t.Fatalf("expected 1 request, got %d", hit)
	}
}

func TestChatContentShapeFallbacks(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"flat content", `{"content":"flat"}`, "flat"},
		{"response field", `{"response":"resp"}`, "resp"},
		{"quoted string", `"plain"`, "plain"},
		{"raw body", `not json at all`, "not json at all"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := &Client{BaseURL: srv.URL, Model: "gpt-4o"}
			out, err := client.Chat(context.Background(), "sys", "user")
			if err != nil {
				t.Fatalf("Chat error: %v", err)
			}
			if out != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, out)
			}
		})
	}
}

func TestChatRetriesOn5xx(t *testing.T) {
	waits := silenceSleep(t)
	var hit int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hit, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		_, _ = w.Write([]byte(`{"content":"recovered"}`))
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL, Model: "gpt-4o"}
	out, err := client.Chat(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if out != "recovered" {
		t.Fatalf("expected 'recovered', got %q", out)
	}
	if atomic.LoadInt32(&hit) != 3 {
		t.Fatalf("expected 3 requests, got %d", hit)
	}
	if len(*waits) != 2 {
		t.Fatalf("expected 2 backoff waits, got %d", len(*waits))
	}
	if (*waits)[0] != time.Second || (*waits)[1] != 2*time.Second {
		t.Fatalf("expected exponential backoff 1s,2s, got %v", *waits)
	}
}

func TestChatHonorsRetryAfter(t *testing.T) {
	waits := silenceSleep(t)
	var hit int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hit, 1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"content":"ok"}`))
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL, Model: "gpt-4o"}
	if _, err := client.Chat(context.Background(), "sys", "user"); err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if len(*waits) != 1 || (*waits)[0] != 7*time.Second {
		t.Fatalf("expected single 7s wait, got %v", *waits)
	}
}

func TestChatExhaustsAttempts(t *testing.T) {
	silenceSleep(t)
	var hit int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hit, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL, Model: "gpt-4o"}
	_, err := client.Chat(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("expected error after exhausted attempts")
	}
	var oerr *Error
	if !errors.As(err, &oerr) {
		t.Fatalf("expected *oracle.Error, got %T", err)
	}
	if oerr.Status != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", oerr.Status)
	}
	if atomic.LoadInt32(&hit) != maxAttempts {
		t.Fatalf("expected %d requests, got %d", maxAttempts, hit)
	}
}

func TestChatFailsFastOnClientError(t *testing.T) {
	silenceSleep(t)
	var hit int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hit, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL, Model: "gpt-4o"}
	_, err := client.Chat(context.Background(), "sys", "user")
	var oerr *Error
	if !errors.As(err, &oerr) || oerr.Status != http.StatusUnauthorized {
		t.Fatalf("expected status 401 error, got %v", err)
	}
	if atomic.LoadInt32(&hit) != 1 {
		t.Fatalf("expected 1 request, got %d", hit)
	}
}

func TestChatSendsAuthAndPayload(t *testing.T) {
	var gotAuth string
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"content":"ok"}`))
	}))
	defer srv.Close()

	client := &Client{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-4o", MaxTokens: 8192, Temperature: 0.2, TopP: 1.0}
	if _, err := client.Chat(context.Background(), "sys", "user"); err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if payload["model"] != "gpt-4o" {
		t.Fatalf("expected model in payload, got %v", payload["model"])
	}
	if payload["max_tokens"].(float64) != 8192 {
		t.Fatalf("expected max_tokens 8192, got %v", payload["max_tokens"])
	}
	msgs := payload["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[1,2]\n```", `[1,2]`},
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := StripCodeFence(tc.in); got != tc.want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBackoffDoubles(t *testing.T) {
	if backoff(0) != time.Second {
		t.Fatalf("backoff(0) = %v", backoff(0))
	}
	if backoff(1) != 2*time.Second {
		t.Fatalf("backoff(1) = %v", backoff(1))
	}
	if backoff(2) != 4*time.Second {
		t.Fatalf("backoff(2) = %v", backoff(2))
	}
}
