package fetcher

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock_Cloudflare403(t *testing.T) {
	bt := DetectBlock(http.StatusForbidden, http.Header{"Cf-Ray": {"abc123"}}, nil)
	assert.Equal(t, BlockCloudflare, bt)
}

func TestDetectBlock_Cloudflare503Server(t *testing.T) {
	bt := DetectBlock(http.StatusServiceUnavailable, http.Header{"Server": {"cloudflare"}}, nil)
	assert.Equal(t, BlockCloudflare, bt)
}

func TestDetectBlock_ChallengePage(t *testing.T) {
	body := []byte("<html><title>Just a moment...</title><body>Checking your browser before accessing</body></html>")
	assert.Equal(t, BlockCloudflare, DetectBlock(http.StatusOK, http.Header{}, body))
}

func TestDetectBlock_CaptchaInBody(t *testing.T) {
	body := []byte("<html><body>Please complete the reCAPTCHA to continue</body></html>")
	assert.Equal(t, BlockCaptcha, DetectBlock(http.StatusOK, http.Header{}, body))
}

func TestDetectBlock_JSShell(t *testing.T) {
	body := []byte("<html><noscript>Enable JavaScript to continue</noscript></html>")
	assert.Equal(t, BlockJSShell, DetectBlock(http.StatusOK, http.Header{}, body))
}

func TestDetectBlock_JSONIgnoresBody(t *testing.T) {
	header := http.Header{"Content-Type": {"application/json; charset=utf-8"}}
	body := []byte(`{"results":{"products":[{"product_description":"captcha lager 350ml"}]}}`)
	assert.Equal(t, BlockNone, DetectBlock(http.StatusOK, header, body))
}

func TestDetectBlock_CleanPage(t *testing.T) {
	body := []byte(`<html><body><div data-product><span class="product-description">Cerveja Skol Lata 350ml</span></div></body></html>`)
	assert.Equal(t, BlockNone, DetectBlock(http.StatusOK, http.Header{"Content-Type": {"text/html"}}, body))
}

func TestBlockedError(t *testing.T) {
	err := &BlockedError{URL: "https://mercado.example/busca", Type: BlockCaptcha}
	assert.Equal(t, "blocked by captcha at https://mercado.example/busca", err.Error())
}
