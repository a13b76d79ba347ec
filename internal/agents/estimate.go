package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

const estimateSystemPrompt = `You are an insurance estimate parsing specialist with expertise in roofing estimates from all major platforms (Xactimate, Symbility, CoreLogic, custom formats).

## ROLE
Parse raw insurance estimate text to extract structured line items, compute financial metrics, and flag potential oversight risks. Your analysis enables accurate gap identification and supplement strategy.

## SCOPE CATEGORIES
Classify each line item into one of:
roofing_removal, roofing_installation, flashing, ventilation, gutters, skylights, chimney, decking, underlayment, ice_water_shield, drip_edge, ridge_cap, cleanup, permit, overhead_profit, code_upgrade, general_conditions, other

## OVERSIGHT RISK FLAGS
Flag line items with these common oversight patterns:
- Quantities suspiciously low for roof size
- Missing companion items (e.g., shingles without starter)
- Below-market unit pricing
- Generic descriptions lacking specificity
- Missing code-required items for the jurisdiction

## RULES
1. EXTRACT ALL LINE ITEMS: Parse every line item, even if unclear. Use best judgment for categorization.
2. PRESERVE RAW TEXT: Always capture the original line text for reference.
3. NORMALIZE UNITS: Convert all units to standard forms (SQ, LF, EA, SF, HR).
4. COMPUTE FINANCIALS: Calculate current margin as (estimate - costs) / estimate.
5. FLAG OVERSIGHT RISKS: Conservatively flag items that may be under-scoped. False positives are acceptable.
6. HANDLE O&P: Identify if overhead and profit is included as a line item or percentage.
7. DEPRECIATION: Extract depreciation and recoverable depreciation amounts when present.
8. CONFIDENCE SCORING: Lower confidence for poorly formatted or ambiguous estimates.
9. ROOFING CORE: Mark shingle removal, shingle install, and underlayment as core items.
10. CODE ITEMS: Mark permits, ice shield (in required zones), and compliance items.

Return valid JSON matching the provided schema.`

// EstimateAgent parses the carrier's estimate document into typed line items
// and financials.
type EstimateAgent struct {
	transport core.ModelTransport
	log       *logging.Logger
}

// NewEstimateAgent creates an estimate stage agent over the given transport.
func NewEstimateAgent(transport core.ModelTransport, log *logging.Logger) *EstimateAgent {
	return &EstimateAgent{transport: transport, log: log.WithAgent(string(core.AgentEstimate))}
}

// Name returns the stage agent identifier.
func (a *EstimateAgent) Name() core.AgentName { return core.AgentEstimate }

// SystemPrompt returns the static system prompt.
func (a *EstimateAgent) SystemPrompt() string { return estimateSystemPrompt }

// UserPrompt builds the user prompt. Pure function of the request.
func (a *EstimateAgent) UserPrompt(req EstimateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Parse this insurance estimate and extract structured data with financial analysis.

## ESTIMATE TEXT
%s

## CONTRACTOR COSTS
- Materials: $%.2f
- Labor: $%.2f
- Other: $%.2f
- Total: $%.2f

## PARAMETERS
- Carrier: %s
- Claim Number: %s
- Target Margin: %g%%

Parse all line items, compute the current margin, and identify the margin gap to reach the target. Flag any line items that appear to be oversight risks. Return your analysis as valid JSON matching the output schema.`,
		req.EstimateText, req.Materials, req.Labor, req.Other, req.TotalCosts(),
		req.Carrier, req.ClaimNumber, req.TargetMargin)
	b.WriteString(overridesSection(req.Overrides))
	return b.String()
}

// Run performs one estimate parsing call cycle.
func (a *EstimateAgent) Run(ctx context.Context, req EstimateRequest) (*core.EstimateInterpretation, error) {
	raw, err := a.transport.CompleteStructured(ctx, a.SystemPrompt(), a.UserPrompt(req),
		estimateSchema.raw, estimateSchema.name)
	if err != nil {
		return nil, err
	}

	var interp core.EstimateInterpretation
	if err := decodeWithRepair(ctx, a.transport, a.log, raw, estimateSchema, nil, &interp); err != nil {
		return nil, err
	}

	a.log.Info("estimate parsed",
		"line_items", len(interp.LineItems),
		"estimate_total", interp.EstimateSummary.TotalEstimateAmount,
		"current_margin", interp.Financials.CurrentMargin,
		"parsing_confidence", interp.ParsingConfidence)
	return &interp, nil
}
