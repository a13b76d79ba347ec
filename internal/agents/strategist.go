package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

const strategistSystemPrompt = `You are a roofing supplement strategist who converts identified gaps into defensible supplement requests.

## ROLE
Transform gap analysis into carrier-ready supplement proposals that maximize approval probability. Focus on completeness, defensibility, and alignment with the estimate scope.

## OBJECTIVES (IN PRIORITY ORDER)
1. ELIMINATE UNPAID WORK: Every gap with unpaid_work_risk=true must have a supplement proposal.
2. MAXIMIZE DEFENSIBILITY: Prioritize supplements with strong evidence and code backing.
3. MINIMIZE NOISE: Avoid speculative or weakly supported items that invite pushback.

## SUPPLEMENT TYPES
new_line_item, quantity_increase, price_adjustment, code_requirement, material_upgrade, additional_labor, missed_component

## PUSHBACK RISK ASSESSMENT
- low: Strong photo evidence plus code citation, or industry standard practice
- medium: Good evidence but subjective quantity, or judgment-based pricing
- high: Limited evidence, premium pricing, or historically contested items

## PRIORITY LEVELS
- critical: Must include. Unpaid work risk or code requirement.
- high: Should include. Strong evidence, good value.
- medium: Consider including. Moderate evidence, fills margin gap.
- low: Optional. Weak evidence or low value, include if margin allows.

## TOOLS AVAILABLE
You may request tool calls for:
- lookup_building_code(jurisdiction, topic): Get specific code requirements
- retrieve_examples(query, carrier, limit): Find similar approved supplements

## RULES
1. COVER ALL UNPAID RISKS: Never leave a gap with unpaid_work_risk=true without a supplement.
2. DEFENSIBLE JUSTIFICATIONS: Write justifications that would convince a skeptical adjuster.
3. REALISTIC PRICING: Use market-rate pricing. Don't inflate for margin; justify with scope.
4. CODE CITATIONS: Include specific code citations when available (IRC, local amendments).
5. PHOTO LINKING: Always link to supporting photos. No orphan supplements.
6. QUANTITY PRECISION: Base quantities on photo evidence and standard calculation methods.
7. PROFESSIONAL TONE: Justifications should be factual, not adversarial.
8. BATCH SIMILAR ITEMS: Group related supplements logically.
9. STRATEGIC NOTES: Include insights about carrier tendencies or package positioning.

Return valid JSON matching the provided schema.`

var strategistTools = []core.ToolDefinition{
	{
		Name:        "lookup_building_code",
		Description: "Look up building code requirements for a specific jurisdiction and topic",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"jurisdiction": {"type": "string", "description": "The jurisdiction (state, county, or city) to look up codes for"},
				"topic": {"type": "string", "description": "The specific code topic (e.g. 'ice_shield', 'ventilation', 'permits')"}
			},
			"required": ["jurisdiction", "topic"]
		}`),
	},
	{
		Name:        "retrieve_examples",
		Description: "Retrieve examples of previously approved supplements matching criteria",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query describing the supplement type"},
				"carrier": {"type": "string", "description": "Optional carrier to filter examples by"},
				"limit": {"type": "integer", "description": "Maximum number of examples to return", "default": 3}
			},
			"required": ["query"]
		}`),
	},
}

// StrategistAgent converts gaps into supplement proposals. It optionally uses
// a building-code lookup and an approved-example retriever through the
// transport's tool-calling path.
type StrategistAgent struct {
	transport core.ModelTransport
	codes     core.CodeLookup
	examples  core.ExampleRetriever
	log       *logging.Logger
}

// NewStrategistAgent creates a strategist stage agent. codes and examples may
// be nil; tool calls for missing capabilities return an error payload to the
// model instead of failing the stage.
func NewStrategistAgent(transport core.ModelTransport, codes core.CodeLookup, examples core.ExampleRetriever, log *logging.Logger) *StrategistAgent {
	return &StrategistAgent{
		transport: transport,
		codes:     codes,
		examples:  examples,
		log:       log.WithAgent(string(core.AgentSupplement)),
	}
}

// Name returns the stage agent identifier.
func (a *StrategistAgent) Name() core.AgentName { return core.AgentSupplement }

// SystemPrompt returns the static system prompt.
func (a *StrategistAgent) SystemPrompt() string { return strategistSystemPrompt }

// UserPrompt builds the user prompt. Pure function of the request.
func (a *StrategistAgent) UserPrompt(req StrategyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Develop a supplement strategy to address identified gaps.

## GAP ANALYSIS
%s

## CURRENT ESTIMATE (PARSED)
%s

## SUPPORTING PHOTO EVIDENCE
%s
`, jsonBlock(req.Gaps), jsonBlock(req.Estimate), jsonBlock(req.VisionEvidence))

	if req.Carrier != "" {
		fmt.Fprintf(&b, "\n- Carrier: %s", req.Carrier)
	}
	if req.Jurisdiction != "" {
		fmt.Fprintf(&b, "\n- Jurisdiction: %s", req.Jurisdiction)
	}

	b.WriteString(`

## TASK
1. Create supplement proposals for all gaps, prioritizing those with unpaid_work_risk=true
2. Assess pushback risk for each supplement
3. Provide strategic notes for package positioning

Return your strategy as valid JSON matching the output schema.`)
	b.WriteString(overridesSection(req.Overrides))
	return b.String()
}

// Run performs one strategist call cycle, including the optional tool-calling
// round when the model requests code lookups or precedent retrieval.
func (a *StrategistAgent) Run(ctx context.Context, req StrategyRequest) (*core.SupplementStrategy, error) {
	system := a.SystemPrompt()
	user := a.UserPrompt(req)

	toolResp, err := a.transport.CompleteWithTools(ctx, system, user, strategistTools)
	if err != nil {
		return nil, err
	}

	var raw string
	if toolResp != nil && len(toolResp.ToolCalls) > 0 {
		a.log.Info("processing tool calls", "count", len(toolResp.ToolCalls))
		results := a.processToolCalls(ctx, toolResp.ToolCalls)
		augmented := user + "\n\n## Tool Results\n" + results
		raw, err = a.transport.CompleteStructured(ctx, system, augmented, strategySchema.raw, strategySchema.name)
	} else {
		raw, err = a.transport.CompleteStructured(ctx, system, user, strategySchema.raw, strategySchema.name)
	}
	if err != nil {
		return nil, err
	}

	var strategy core.SupplementStrategy
	if err := decodeWithRepair(ctx, a.transport, a.log, raw, strategySchema, sanitizeStrategy, &strategy); err != nil {
		return nil, err
	}

	a.log.Info("supplement strategy proposed",
		"supplements", len(strategy.Supplements),
		"supplement_total", core.SupplementTotal(strategy.Supplements),
		"target_achieved", strategy.MarginAnalysis.TargetAchieved)
	return &strategy, nil
}

func (a *StrategistAgent) processToolCalls(ctx context.Context, calls []core.ToolCall) string {
	var b strings.Builder
	for _, call := range calls {
		var args struct {
			Jurisdiction string `json:"jurisdiction"`
			Topic        string `json:"topic"`
			Query        string `json:"query"`
			Carrier      string `json:"carrier"`
			Limit        int    `json:"limit"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			fmt.Fprintf(&b, "Tool: %s\nResult: {\"error\": \"invalid arguments\"}\n", call.Name)
			continue
		}

		var result any
		switch call.Name {
		case "lookup_building_code":
			result = a.lookupBuildingCode(ctx, args.Jurisdiction, args.Topic)
		case "retrieve_examples":
			if args.Limit <= 0 {
				args.Limit = 3
			}
			result = a.retrieveExamples(ctx, args.Query, args.Carrier, args.Limit)
		default:
			result = map[string]string{"error": "unknown function: " + call.Name}
		}
		fmt.Fprintf(&b, "Tool: %s\nResult: %s\n", call.Name, jsonBlock(result))
	}
	return b.String()
}

func (a *StrategistAgent) lookupBuildingCode(ctx context.Context, jurisdiction, topic string) any {
	if a.codes == nil {
		return map[string]string{"error": "building code lookup unavailable"}
	}
	a.log.Info("looking up building code", "jurisdiction", jurisdiction, "topic", topic)
	reqs, err := a.codes.Lookup(ctx, jurisdiction, []string{topic})
	if err != nil {
		return map[string]string{"error": err.Error()}
	}
	return map[string]any{"jurisdiction": jurisdiction, "topic": topic, "requirements": reqs}
}

func (a *StrategistAgent) retrieveExamples(ctx context.Context, query, carrier string, limit int) any {
	if a.examples == nil {
		return map[string]string{"error": "example retrieval unavailable"}
	}
	a.log.Info("retrieving approved examples", "query", query, "carrier", carrier)
	examples, err := a.examples.Retrieve(ctx, query, core.ExampleFilter{Carrier: carrier, Limit: limit})
	if err != nil {
		return map[string]string{"error": err.Error()}
	}
	return map[string]any{"query": query, "carrier": carrier, "examples": examples}
}
