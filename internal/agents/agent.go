// Package agents implements the stage agents of the claim pipeline: one LLM
// call cycle each for vision evidence, estimate parsing, gap analysis,
// supplement strategy, review, and report generation. Prompt builders are
// pure functions of the request structs so they can be unit tested without a
// model.
package agents

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// responseSchema pairs the raw schema bytes sent to the transport with the
// compiled validator applied to responses.
type responseSchema struct {
	name     string
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

func mustSchema(name string) *responseSchema {
	data, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		panic(fmt.Sprintf("agents: missing embedded schema %s: %v", name, err))
	}
	compiled, err := jsonschema.CompileString(name+".json", string(data))
	if err != nil {
		panic(fmt.Sprintf("agents: invalid embedded schema %s: %v", name, err))
	}
	return &responseSchema{name: name, raw: data, compiled: compiled}
}

var (
	visionSchema   = mustSchema("vision_evidence")
	estimateSchema = mustSchema("estimate_interpretation")
	gapSchema      = mustSchema("gap_analysis")
	strategySchema = mustSchema("supplement_strategy")
	reviewSchema   = mustSchema("review_result")
)

// extractJSON strips optional markdown code fences from a model response.
func extractJSON(response string) string {
	s := strings.TrimSpace(response)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-len("```")]
	}
	return strings.TrimSpace(s)
}

// decodeStage parses a model response into out: fence stripping, JSON
// decoding, sanitization of common semantic slips, then schema validation.
func decodeStage(raw string, sch *responseSchema, sanitize func(map[string]any), out any) error {
	text := extractJSON(raw)

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return core.ErrExecution(core.CodeParseFailed, "model returned invalid JSON").WithCause(err)
	}

	if m, ok := doc.(map[string]any); ok && sanitize != nil {
		sanitize(m)
	}

	if err := sch.compiled.Validate(doc); err != nil {
		return core.ErrValidation(core.CodeSchemaInvalid,
			fmt.Sprintf("response does not match %s schema", sch.name)).WithCause(err)
	}

	buf, err := json.Marshal(doc)
	if err != nil {
		return core.ErrExecution(core.CodeParseFailed, "re-encoding sanitized response").WithCause(err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return core.ErrExecution(core.CodeParseFailed, "decoding response into typed result").WithCause(err)
	}
	return nil
}

const repairSystem = "You repair JSON to match the provided schema. Preserve meaning; only change structure or fields needed for validity."

func repairUserPrompt(invalid string, verr error) string {
	return fmt.Sprintf(`The following JSON failed schema validation. Return corrected JSON only.

JSON:
%s

Validation errors:
%v
`, invalid, verr)
}

// decodeWithRepair runs decodeStage and, on schema validation failure, issues
// exactly one repair round trip re-prompting the model with the invalid JSON
// and the concrete validation errors. A second validation failure propagates.
func decodeWithRepair(ctx context.Context, tr core.ModelTransport, log *logging.Logger, raw string, sch *responseSchema, sanitize func(map[string]any), out any) error {
	err := decodeStage(raw, sch, sanitize, out)
	if err == nil {
		return nil
	}

	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr.Code != core.CodeSchemaInvalid {
		return err
	}

	log.Warn("response failed schema validation, attempting repair", "schema", sch.name, "error", err)
	repaired, rerr := tr.CompleteStructured(ctx, repairSystem,
		repairUserPrompt(extractJSON(raw), domErr.Cause), sch.raw, sch.name+"_repair")
	if rerr != nil {
		return err
	}
	return decodeStage(repaired, sch, sanitize, out)
}

// overridesSection renders reviewer feedback appended to a user prompt on
// rerun-enhanced requests.
func overridesSection(o *Overrides) string {
	if o == nil || (o.ReviewFeedback == "" && len(o.FocusItems) == 0) {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n## REVIEW FEEDBACK\n")
	if o.ReviewFeedback != "" {
		b.WriteString(o.ReviewFeedback)
		b.WriteString("\n")
	}
	if len(o.FocusItems) > 0 {
		b.WriteString("Focus on these items: ")
		b.WriteString(strings.Join(o.FocusItems, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

func jsonBlock(v any) string {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(buf)
}
