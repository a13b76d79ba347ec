package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

const visionSystemPrompt = `You are a roofing damage assessment specialist with expertise in identifying and documenting roof components and damage from photographs.

## ROLE
Analyze roofing photographs to produce structured, objective evidence documentation. Your output directly supports insurance supplement requests and must be defensible under carrier scrutiny.

## COMPONENT TYPES
Identify these roofing components when visible:
shingle, ridge_cap, flashing, decking, underlayment, drip_edge, ice_water_shield, vent, pipe_boot, chimney, skylight, gutter, downspout, fascia, soffit, satellite_dish_mount, hvac_curb, valley, other

## CONDITION ASSESSMENT
Rate each component's condition:
- intact: No visible damage, normal wear
- minor_damage: Cosmetic damage, granule loss, minor lifting
- moderate_damage: Functional impairment, cracking, curling, displaced components
- severe_damage: Structural compromise, holes, major displacement, missing sections
- missing: Component absent where required
- improper_install: Installation defects visible

## RULES
1. BE OBJECTIVE: Document only what is visually verifiable. No speculation about causes unless damage patterns clearly indicate them.
2. NO COST ESTIMATES: Never estimate repair costs or quantities beyond visible area. That's for other agents.
3. CONSERVATIVE CONFIDENCE: When uncertain, lower your confidence score. It's better to flag uncertainty than overstate findings.
4. LOCATION SPECIFICITY: Always provide location hints using compass directions and proximity to features (ridge, eave, valley, chimney).
5. DAMAGE PATTERNS: Note patterns consistent with hail, wind, age, or improper installation when clearly visible.
6. BBOX PRECISION: Provide bounding boxes for identified components when possible, using normalized 0-1 coordinates.
7. SEVERITY SCORING: 0.0-0.3 minor, 0.3-0.6 moderate, 0.6-0.8 significant, 0.8-1.0 critical or safety concern.
8. AREA ESTIMATION: Only estimate areas when reference objects are visible or measurements can be reasonably inferred.
9. MULTIPLE INSTANCES: If multiple instances of the same component type exist, create separate entries for each.
10. GLOBAL OBSERVATIONS: Use for roof-wide assessments that don't fit specific components.

Return valid JSON matching the provided schema.`

// VisionAgent extracts structured damage evidence from one claim photo.
type VisionAgent struct {
	transport core.ModelTransport
	log       *logging.Logger
}

// NewVisionAgent creates a vision stage agent over the given transport.
func NewVisionAgent(transport core.ModelTransport, log *logging.Logger) *VisionAgent {
	return &VisionAgent{transport: transport, log: log.WithAgent(string(core.AgentVision))}
}

// Name returns the stage agent identifier.
func (a *VisionAgent) Name() core.AgentName { return core.AgentVision }

// SystemPrompt returns the static system prompt.
func (a *VisionAgent) SystemPrompt() string { return visionSystemPrompt }

// UserPrompt builds the per-photo user prompt. Pure function of the request.
func (a *VisionAgent) UserPrompt(req VisionRequest) string {
	req = req.withDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, `Analyze this roofing photograph and provide structured evidence documentation.

Photo ID: %s
Job Type: %s
Damage Type: %s
Roof Type: %s
Roof Size: %g squares`, req.PhotoID, req.JobType, req.DamageType, req.RoofType, req.RoofSquares)

	if req.ViewType != "" && req.ViewType != core.ViewUnknown {
		fmt.Fprintf(&b, "\nPhoto View: %s", req.ViewType)
	}
	if req.Notes != "" {
		fmt.Fprintf(&b, "\nAdditional Notes: %s", req.Notes)
	}

	b.WriteString("\n\nIdentify all visible roofing components, assess their condition, and document any damage or concerns. Return your analysis as valid JSON matching the output schema.")
	b.WriteString(overridesSection(req.Overrides))
	return b.String()
}

// Run performs one vision call cycle and returns typed evidence.
func (a *VisionAgent) Run(ctx context.Context, req VisionRequest) (*core.VisionEvidence, error) {
	if len(req.Image) == 0 {
		return nil, core.ErrValidation(core.CodeMissingInput, "vision request has no image data")
	}

	raw, err := a.transport.CompleteVisionStructured(ctx, a.SystemPrompt(), a.UserPrompt(req),
		[][]byte{req.Image}, visionSchema.raw, visionSchema.name)
	if err != nil {
		return nil, err
	}

	var evidence core.VisionEvidence
	if err := decodeWithRepair(ctx, a.transport, a.log, raw, visionSchema, nil, &evidence); err != nil {
		return nil, err
	}

	// Models occasionally echo a placeholder photo id; trust the request.
	evidence.PhotoID = req.PhotoID

	a.log.Info("vision evidence extracted",
		"photo_id", req.PhotoID,
		"components", len(evidence.Components),
		"observations", len(evidence.GlobalObservations))
	return &evidence, nil
}
