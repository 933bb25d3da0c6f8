package fetch

import (
	"strings"

	"golang.org/x/net/html"
)

// Text reduces an HTML page to its visible text, dropping script and style
// content and collapsing whitespace. Non-HTML input (markdown, plain text)
// passes through mostly unchanged since it contains no tags.
func Text(page string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(page))
	var b strings.Builder
	skipDepth := 0
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return collapseSpace(b.String())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if skipTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if skipTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func skipTag(name string) bool {
	switch name {
	case "script", "style", "noscript":
		return true
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate caps text at max bytes, marking the cut.
func Truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "... (truncated)"
}
