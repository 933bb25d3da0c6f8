package fetch

import (
	"strings"
	"testing"
)

func TestTextStripsMarkupAndScripts(t *testing.T) {
	page := `<html><head><title>API Docs</title>
	<style>body { color: red; }</style>
	<script>var tracking = "evil";</script></head>
	<body><h1>Users   API</h1><p>List  all
	users.</p><noscript>enable js</noscript></body></html>`

	got := Text(page)
	if strings.Contains(got, "tracking") || strings.Contains(got, "color: red") {
		t.Fatalf("script/style content leaked: %q", got)
	}
	if strings.Contains(got, "enable js") {
		t.Fatalf("noscript content leaked: %q", got)
	}
	if !strings.Contains(got, "Users API") {
		t.Fatalf("expected collapsed heading text, got %q", got)
	}
	if !strings.Contains(got, "List all users.") {
		t.Fatalf("expected body text, got %q", got)
	}
}

func TestTextPassesPlainTextThrough(t *testing.T) {
	got := Text("GET /users returns the user list")
	if got != "GET /users returns the user list" {
		t.Fatalf("plain text mangled: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Fatalf("expected passthrough, got %q", got)
	}
	long := strings.Repeat("x", 50)
	got := Truncate(long, 10)
	if !strings.HasPrefix(got, "xxxxxxxxxx") || !strings.HasSuffix(got, "... (truncated)") {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
