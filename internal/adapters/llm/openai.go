package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/config"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

type openAIClient struct {
	baseURL string
	apiKey  string
	model   string
	hc      *http.Client
}

func newOpenAI(cfg config.ProviderConfig, hc *http.Client) *openAIClient {
	base := cfg.BaseURL
	if base == "" {
		base = openAIDefaultBaseURL
	}
	return &openAIClient{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		hc:      hc,
	}
}

type openAIMessage struct {
	Role       string          `json:"role"`
	Content    any             `json:"content"`
	ToolCalls  []openAIToolUse `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type openAIToolUse struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	ResponseFormat any             `json:"response_format,omitempty"`
	Tools          []any           `json:"tools,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func (c *openAIClient) complete(ctx context.Context, req openAIRequest) (*openAIMessage, error) {
	var resp openAIResponse
	if err := postJSON(ctx, c.hc, c.baseURL+"/chat/completions", c.headers(), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, core.ErrTransport("openai: empty choices in response")
	}
	return &resp.Choices[0].Message, nil
}

func (c *openAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := c.complete(ctx, openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	return contentString(msg.Content), nil
}

func (c *openAIClient) CompleteStructured(ctx context.Context, system, user string, schema json.RawMessage, schemaName string) (string, error) {
	msg, err := c.complete(ctx, openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"schema": schema,
				"strict": false,
			},
		},
	})
	if err != nil {
		return "", err
	}
	return contentString(msg.Content), nil
}

func (c *openAIClient) CompleteVisionStructured(ctx context.Context, system, user string, images [][]byte, schema json.RawMessage, schemaName string) (string, error) {
	parts := []map[string]any{{"type": "text", "text": user}}
	for _, img := range images {
		parts = append(parts, map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url": fmt.Sprintf("data:%s;base64,%s", sniffImageMIME(img), encodeImage(img)),
			},
		})
	}
	msg, err := c.complete(ctx, openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: parts},
		},
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"schema": schema,
				"strict": false,
			},
		},
	})
	if err != nil {
		return "", err
	}
	return contentString(msg.Content), nil
}

func (c *openAIClient) CompleteWithTools(ctx context.Context, system, user string, tools []core.ToolDefinition) (*core.ToolResponse, error) {
	defs := make([]any, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	msg, err := c.complete(ctx, openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Tools: defs,
	})
	if err != nil {
		return nil, err
	}

	out := &core.ToolResponse{Content: contentString(msg.Content)}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// contentString flattens the message content field, which the API returns as
// either a plain string or a list of typed parts.
func contentString(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, part := range v {
			m, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				sb.WriteString(text)
			}
		}
		return sb.String()
	default:
		return ""
	}
}
