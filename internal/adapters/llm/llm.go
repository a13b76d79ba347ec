// Package llm provides model transports over the OpenAI and Anthropic HTTP
// APIs. Everything above this package talks core.ModelTransport; the vendor
// wire formats live here and nowhere else.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/config"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

const defaultTimeout = 120 * time.Second

// NewTransport builds a model transport from provider configuration.
func NewTransport(cfg config.ProviderConfig) (core.ModelTransport, error) {
	if cfg.APIKey == "" {
		return nil, core.ErrConfig(core.CodeMissingInput, "provider api_key is required")
	}
	if cfg.Model == "" {
		return nil, core.ErrConfig(core.CodeMissingInput, "provider model is required")
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	hc := &http.Client{Timeout: timeout}

	switch strings.ToLower(cfg.Kind) {
	case "openai":
		return newOpenAI(cfg, hc), nil
	case "anthropic":
		return newAnthropic(cfg, hc), nil
	default:
		return nil, core.ErrConfig(core.CodeUnknownFramework,
			fmt.Sprintf("unknown provider kind %q (want openai or anthropic)", cfg.Kind))
	}
}

// sniffImageMIME identifies an image payload by its magic bytes. Unknown
// payloads default to JPEG since that is what phone cameras produce.
func sniffImageMIME(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("\xff\xd8\xff")):
		return "image/jpeg"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

func encodeImage(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// postJSON sends one API request and decodes the response body into out.
// HTTP-level failures are mapped into the domain error taxonomy so the retry
// layer can make its decisions.
func postJSON(ctx context.Context, hc *http.Client, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return core.ErrTransport("request failed").WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return core.ErrTransport("reading response").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &core.DomainError{
			Category: core.ErrCatTransport,
			Code:     core.CodeParseFailed,
			Message:  "decoding provider response",
			Cause:    err,
		}
	}
	return nil
}

func statusError(status int, body []byte) error {
	msg := fmt.Sprintf("provider returned %d: %s", status, truncate(string(body), 300))
	switch {
	case status == http.StatusTooManyRequests:
		return &core.DomainError{
			Category:  core.ErrCatRateLimit,
			Code:      "RATE_LIMITED",
			Message:   msg,
			Retryable: true,
		}
	case status >= 500:
		return core.ErrTransport(msg)
	default:
		return &core.DomainError{
			Category: core.ErrCatTransport,
			Code:     "TRANSPORT_FAILED",
			Message:  msg,
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
