package framework

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

// fakeTransport implements core.ModelTransport with canned responses.
type fakeTransport struct {
	completeFn           func(ctx context.Context, system, user string) (string, error)
	completeStructuredFn func(ctx context.Context, system, user string, schema json.RawMessage, schemaName string) (string, error)
	completeVisionFn     func(ctx context.Context, system, user string, images [][]byte, schema json.RawMessage, schemaName string) (string, error)
	completeWithToolsFn  func(ctx context.Context, system, user string, tools []core.ToolDefinition) (*core.ToolResponse, error)
}

func (f *fakeTransport) Complete(ctx context.Context, system, user string) (string, error) {
	if f.completeFn == nil {
		return "", errors.New("complete not stubbed")
	}
	return f.completeFn(ctx, system, user)
}

func (f *fakeTransport) CompleteStructured(ctx context.Context, system, user string, schema json.RawMessage, schemaName string) (string, error) {
	if f.completeStructuredFn == nil {
		return "", errors.New("structured completion not stubbed")
	}
	return f.completeStructuredFn(ctx, system, user, schema, schemaName)
}

func (f *fakeTransport) CompleteVisionStructured(ctx context.Context, system, user string, images [][]byte, schema json.RawMessage, schemaName string) (string, error) {
	if f.completeVisionFn == nil {
		return "", errors.New("vision completion not stubbed")
	}
	return f.completeVisionFn(ctx, system, user, images, schema, schemaName)
}

func (f *fakeTransport) CompleteWithTools(ctx context.Context, system, user string, tools []core.ToolDefinition) (*core.ToolResponse, error) {
	if f.completeWithToolsFn == nil {
		return nil, errors.New("tool completion not stubbed")
	}
	return f.completeWithToolsFn(ctx, system, user, tools)
}

// visionTransport returns a transport whose vision call always yields the
// given JSON payload.
func visionTransport(payload string) *fakeTransport {
	return &fakeTransport{
		completeVisionFn: func(context.Context, string, string, [][]byte, json.RawMessage, string) (string, error) {
			return payload, nil
		},
	}
}

// failingTransport errors on every call.
func failingTransport() *fakeTransport {
	fail := errors.New("model unavailable")
	return &fakeTransport{
		completeFn: func(context.Context, string, string) (string, error) { return "", fail },
		completeStructuredFn: func(context.Context, string, string, json.RawMessage, string) (string, error) {
			return "", fail
		},
		completeVisionFn: func(context.Context, string, string, [][]byte, json.RawMessage, string) (string, error) {
			return "", fail
		},
		completeWithToolsFn: func(context.Context, string, string, []core.ToolDefinition) (*core.ToolResponse, error) {
			return nil, fail
		},
	}
}

func fastRetry() agents.RetryPolicy {
	return agents.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}
}

func visionJSON(photoID string, components ...map[string]any) string {
	doc := map[string]any{
		"photo_id":            photoID,
		"components":          components,
		"global_observations": []any{},
	}
	raw, _ := json.Marshal(doc)
	return string(raw)
}

func componentJSON(componentType, location string, severity, confidence float64) map[string]any {
	return map[string]any{
		"component_type":       componentType,
		"location_hint":        location,
		"condition":            "damaged",
		"description":          componentType + " shows impact damage at " + location,
		"severity_score":       severity,
		"detection_confidence": confidence,
	}
}
