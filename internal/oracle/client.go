package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// maxAttempts is the total number of tries per call, including the first.
const maxAttempts = 3

// Error reports a failed oracle call after all attempts were exhausted, or
// a non-retryable response.
type Error struct {
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("oracle: status %d: %s", e.Status, e.Msg)
	}
	if e.Err != nil {
		return "oracle: " + e.Err.Error()
	}
	return "oracle: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Client is an OpenAI-compatible chat completions client. Calls are rate
// limited, bounded by a per-call timeout and retried on transient failures.
type Client struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Timeout     time.Duration
	HTTPClient  *http.Client
	Limiter     *rate.Limiter
	Logger      *slog.Logger
}

var sleepFn = func(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Chat sends a system/user prompt pair and returns the completion text.
func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	payload := map[string]interface{}{
		"model":       c.Model,
		"max_tokens":  c.MaxTokens,
		"temperature": c.Temperature,
		"top_p":       c.TopP,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	c.logger().Debug("oracle request", "url", endpoint, "model", c.Model, "prompt_len", len(userPrompt))

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return "", &Error{Err: err}
			}
		}

		data, status, err := c.send(ctx, client, endpoint, body, timeout)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts-1 {
				if err := sleepFn(ctx, backoff(attempt)); err != nil {
					return "", &Error{Err: err}
				}
				continue
			}
			return "", &Error{Err: err}
		}

		if status == http.StatusTooManyRequests || status >= 500 {
			lastErr = fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(data.body)))
			if attempt < maxAttempts-1 {
				wait := backoff(attempt)
				if status == http.StatusTooManyRequests && data.retryAfter != "" {
					if secs, err := strconv.Atoi(data.retryAfter); err == nil {
						wait = time.Duration(secs) * time.Second
					}
				}
				if err := sleepFn(ctx, wait); err != nil {
					return "", &Error{Err: err}
				}
				continue
			}
			return "", &Error{Status: status, Msg: strings.TrimSpace(string(data.body))}
		}
		if status < 200 || status >= 300 {
			return "", &Error{Status: status, Msg: strings.TrimSpace(string(data.body))}
		}

		content := extractContent(data.body)
		c.logger().Debug("oracle response", "chars", len(content))
		return content, nil
	}
	return "", &Error{Err: lastErr}
}

type response struct {
	body       []byte
	retryAfter string
}

func (c *Client) send(ctx context.Context, client *http.Client, endpoint string, body []byte, timeout time.Duration) (response, int, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return response{}, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return response{}, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, 0, err
	}
	return response{body: data, retryAfter: strings.TrimSpace(resp.Header.Get("Retry-After"))}, resp.StatusCode, nil
}

// extractContent pulls the completion text out of the known response shapes:
// a choices/message envelope, a flat content or response field, or a plain
// JSON string. Unknown shapes fall back to the raw body so callers can run
// their own validation.
func extractContent(body []byte) string {
	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Content  string `json:"content"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Choices) > 0 && envelope.Choices[0].Message.Content != "" {
			return envelope.Choices[0].Message.Content
		}
		if envelope.Content != "" {
			return envelope.Content
		}
		if envelope.Response != "" {
			return envelope.Response
		}
	}
	var plain string
	if err := json.Unmarshal(body, &plain); err == nil {
		return plain
	}
	return string(body)
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// StripCodeFence removes a surrounding markdown code block, if present.
func StripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.Index(trimmed, "\n"); idx != -1 {
			trimmed = trimmed[idx+1:]
		}
		if end := strings.LastIndex(trimmed, "```"); end != -1 {
			trimmed = trimmed[:end]
		}
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}

func backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Second << attempt
}
