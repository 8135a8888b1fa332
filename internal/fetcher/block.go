package fetcher

import (
	"fmt"
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// BlockedError reports a search page that came back as an anti-bot page
// instead of results. It is not retried: the same client would be blocked
// again.
type BlockedError struct {
	URL  string
	Type BlockType
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by %s at %s", e.Type, e.URL)
}

// DetectBlock checks a response for signs of anti-bot protection. JSON
// bodies are only checked by status and headers.
func DetectBlock(statusCode int, header http.Header, body []byte) BlockType {
	// Cloudflare: 403/503 with cf-* headers.
	if statusCode == http.StatusForbidden || statusCode == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || header.Get("cf-cache-status") != "" {
			return BlockCloudflare
		}
		if strings.EqualFold(header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}

	if strings.Contains(header.Get("Content-Type"), "json") {
		return BlockNone
	}

	lower := strings.ToLower(string(body))

	// Cloudflare challenge page markers.
	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return BlockCloudflare
	}

	if strings.Contains(lower, "captcha") {
		return BlockCaptcha
	}

	// JS-only shell: very small body with noscript or meta refresh.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return BlockJSShell
		}
	}

	return BlockNone
}
