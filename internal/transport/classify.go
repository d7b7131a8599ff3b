package transport

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
)

// htmlPlaceholder replaces HTML error pages in diagnostics so logs stay
// bounded and readable.
const htmlPlaceholder = "[html error page omitted]"

// Excerpt produces a bounded diagnostic string from an error response
// body. JSON bodies yield their message/error field when present, HTML
// pages collapse to a placeholder, anything else is truncated to max
// bytes.
func Excerpt(body []byte, contentType string, max int) string {
	if max <= 0 {
		max = 200
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	if msg, ok := jsonMessage(trimmed); ok {
		return truncate(msg, max)
	}
	if strings.Contains(contentType, "text/html") || looksLikeHTML(trimmed) {
		return htmlPlaceholder
	}
	return truncate(string(trimmed), max)
}

// jsonMessage extracts a human-readable message from a JSON error body.
func jsonMessage(body []byte) (string, bool) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	for _, field := range []string{"message", "error"} {
		if v, ok := payload[field].(string); ok && v != "" {
			return v, true
		}
	}
	// Valid JSON without a known message field still beats raw bytes.
	return "", false
}

// looksLikeHTML tokenizes the prefix of the body and reports whether it
// opens an html or body element.
func looksLikeHTML(body []byte) bool {
	if len(body) > 512 {
		body = body[:512]
	}
	z := html.NewTokenizer(bytes.NewReader(body))
	for i := 0; i < 8; i++ {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.DoctypeToken:
			return true
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "html", "head", "body", "title":
				return true
			}
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
