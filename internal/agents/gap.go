package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

const gapSystemPrompt = `You are a roofing scope analysis specialist who identifies discrepancies between documented damage and insurance coverage.

## ROLE
Cross-reference visual evidence from photos against insurance estimate line items to identify unpaid or under-scoped work. Your analysis protects contractors from performing work not covered by the estimate.

## GAP CATEGORIES
Identify gaps in these categories:
missing_line_item, underquantified, incorrect_pricing, missing_code_item, damage_not_covered, component_missed, measurement_discrepancy, material_upgrade_needed, labor_underestimated, other

## SEVERITY LEVELS
Rate each gap by business impact:
- critical: Will definitely result in unpaid work or a code violation. Must be addressed.
- major: Significant cost exposure or quality concern. Should be addressed.
- minor: Small cost exposure or preference item. Nice to address.

## UNPAID WORK RISK
Set unpaid_work_risk to true when the work is necessary for proper installation, the estimate omits or underestimates it, and the contractor would absorb the cost if not supplemented.

## RULES
1. EVIDENCE-BASED: Only identify gaps supported by photo evidence or clear estimate omissions.
2. LINK EVERYTHING: Every gap must link to at least one photo or estimate line.
3. CONSERVATIVE CONFIDENCE: When evidence is ambiguous, lower confidence and note uncertainty.
4. PRIORITIZE UNPAID RISK: Focus on gaps that would cause the contractor to absorb costs.
5. CODE AWARENESS: Know common code requirements (ice shield zones, ventilation ratios, permit thresholds).
6. QUANTITY VERIFICATION: Compare estimated quantities against visible scope from photos.
7. COMPANION ITEMS: Check for missing companion items (shingles need starter, ridge cap, etc.).
8. NO DUPLICATES: Don't flag the same issue multiple times with different wording.
9. ACTIONABLE DESCRIPTIONS: Describe gaps in terms that translate to supplement requests.
10. NARRATIVE CLARITY: The summary should be understandable by non-technical readers.

Return valid JSON matching the provided schema.`

// GapAgent cross-references vision evidence against the parsed estimate.
type GapAgent struct {
	transport core.ModelTransport
	log       *logging.Logger
}

// NewGapAgent creates a gap analysis stage agent over the given transport.
func NewGapAgent(transport core.ModelTransport, log *logging.Logger) *GapAgent {
	return &GapAgent{transport: transport, log: log.WithAgent(string(core.AgentGap))}
}

// Name returns the stage agent identifier.
func (a *GapAgent) Name() core.AgentName { return core.AgentGap }

// SystemPrompt returns the static system prompt.
func (a *GapAgent) SystemPrompt() string { return gapSystemPrompt }

// UserPrompt builds the user prompt. Pure function of the request.
func (a *GapAgent) UserPrompt(req GapRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Analyze the gap between documented visual evidence and insurance estimate coverage.

## VISUAL EVIDENCE FROM PHOTOS
%s

## PARSED ESTIMATE
%s

## PROPERTY CONTEXT
- Roof Size: %g squares`, jsonBlock(req.VisionEvidence), jsonBlock(req.Estimate), req.RoofSquares)

	if req.Jurisdiction != "" {
		fmt.Fprintf(&b, "\n- Jurisdiction: %s (consider local code requirements)", req.Jurisdiction)
	}

	b.WriteString(`

Cross-reference the visual evidence against the estimate line items. Identify all gaps where:
1. Visible damage is not covered by estimate line items
2. Estimate quantities appear insufficient for the visible scope
3. Code-required items are missing
4. Companion/accessory items are omitted

For each gap, assess severity and unpaid work risk. Return your analysis as valid JSON matching the output schema.`)
	b.WriteString(overridesSection(req.Overrides))
	return b.String()
}

// Run performs one gap analysis call cycle.
func (a *GapAgent) Run(ctx context.Context, req GapRequest) (*core.GapAnalysis, error) {
	raw, err := a.transport.CompleteStructured(ctx, a.SystemPrompt(), a.UserPrompt(req),
		gapSchema.raw, gapSchema.name)
	if err != nil {
		return nil, err
	}

	var analysis core.GapAnalysis
	if err := decodeWithRepair(ctx, a.transport, a.log, raw, gapSchema, sanitizeGapAnalysis, &analysis); err != nil {
		return nil, err
	}

	a.log.Info("gap analysis complete",
		"gaps", len(analysis.ScopeGaps),
		"critical", analysis.CoverageSummary.CriticalGaps,
		"unpaid_risk_items", analysis.CoverageSummary.TotalUnpaidRiskItems)
	return &analysis, nil
}
