package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/config"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 8192
)

type anthropicClient struct {
	baseURL string
	apiKey  string
	model   string
	hc      *http.Client
}

func newAnthropic(cfg config.ProviderConfig, hc *http.Client) *anthropicClient {
	base := cfg.BaseURL
	if base == "" {
		base = anthropicDefaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	// Tolerate a configured base that already carries the API version.
	base = strings.TrimSuffix(base, "/v1")
	return &anthropicClient{
		baseURL: base,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		hc:      hc,
	}
}

type anthropicRequest struct {
	Model      string             `json:"model"`
	MaxTokens  int                `json:"max_tokens"`
	System     string             `json:"system,omitempty"`
	Messages   []anthropicMessage `json:"messages"`
	Tools      []anthropicTool    `json:"tools,omitempty"`
	ToolChoice any                `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
}

func (c *anthropicClient) headers() map[string]string {
	return map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

func (c *anthropicClient) send(ctx context.Context, req anthropicRequest) (*anthropicResponse, error) {
	var resp anthropicResponse
	if err := postJSON(ctx, c.hc, c.baseURL+"/v1/messages", c.headers(), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Content) == 0 {
		return nil, core.ErrTransport("anthropic: empty content in response")
	}
	return &resp, nil
}

func (c *anthropicClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.send(ctx, anthropicRequest{
		Model:     c.model,
		MaxTokens: anthropicMaxTokens,
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", err
	}
	return textContent(resp), nil
}

// CompleteStructured forces a single tool whose input schema is the target
// schema; the tool input is the structured output. The API has no direct
// equivalent of a JSON-schema response format.
func (c *anthropicClient) CompleteStructured(ctx context.Context, system, user string, schema json.RawMessage, schemaName string) (string, error) {
	return c.structured(ctx, system, anthropicMessage{Role: "user", Content: user}, schema, schemaName)
}

func (c *anthropicClient) CompleteVisionStructured(ctx context.Context, system, user string, images [][]byte, schema json.RawMessage, schemaName string) (string, error) {
	blocks := []map[string]any{}
	for _, img := range images {
		blocks = append(blocks, map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": sniffImageMIME(img),
				"data":       encodeImage(img),
			},
		})
	}
	blocks = append(blocks, map[string]any{"type": "text", "text": user})
	return c.structured(ctx, system, anthropicMessage{Role: "user", Content: blocks}, schema, schemaName)
}

func (c *anthropicClient) structured(ctx context.Context, system string, msg anthropicMessage, schema json.RawMessage, schemaName string) (string, error) {
	toolName := "record_" + schemaName
	resp, err := c.send(ctx, anthropicRequest{
		Model:     c.model,
		MaxTokens: anthropicMaxTokens,
		System:    system,
		Messages:  []anthropicMessage{msg},
		Tools: []anthropicTool{{
			Name:        toolName,
			Description: "Record the analysis result in the required structure.",
			InputSchema: schema,
		}},
		ToolChoice: map[string]any{"type": "tool", "name": toolName},
	})
	if err != nil {
		return "", err
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == toolName {
			return string(block.Input), nil
		}
	}
	return "", &core.DomainError{
		Category: core.ErrCatTransport,
		Code:     core.CodeParseFailed,
		Message:  "anthropic: no tool_use block in structured response",
	}
}

func (c *anthropicClient) CompleteWithTools(ctx context.Context, system, user string, tools []core.ToolDefinition) (*core.ToolResponse, error) {
	defs := make([]anthropicTool, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	resp, err := c.send(ctx, anthropicRequest{
		Model:     c.model,
		MaxTokens: anthropicMaxTokens,
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: user}},
		Tools:     defs,
	})
	if err != nil {
		return nil, err
	}

	out := &core.ToolResponse{Content: textContent(resp)}
	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			out.ToolCalls = append(out.ToolCalls, core.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	return out, nil
}

func textContent(resp *anthropicResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
