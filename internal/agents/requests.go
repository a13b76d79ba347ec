package agents

import "github.com/hugo-lorenzo-mato/claimpilot/internal/core"

// Overrides carries reviewer-supplied corrective context into a rerun of an
// upstream stage. Nil means a normal first run.
type Overrides struct {
	ReviewFeedback string
	FocusItems     []string
}

// VisionRequest is the input for one vision stage call over a single photo.
type VisionRequest struct {
	PhotoID     string
	Image       []byte
	ViewType    core.PhotoView
	JobType     string
	DamageType  string
	RoofType    string
	RoofSquares float64
	Notes       string
	Overrides   *Overrides
}

func (r VisionRequest) withDefaults() VisionRequest {
	if r.JobType == "" {
		r.JobType = "storm_damage"
	}
	if r.DamageType == "" {
		r.DamageType = "hail_and_wind"
	}
	if r.RoofType == "" {
		r.RoofType = "asphalt_shingle"
	}
	return r
}

// EstimateRequest is the input for the estimate parsing stage.
type EstimateRequest struct {
	EstimateText string
	Carrier      string
	ClaimNumber  string
	Materials    float64
	Labor        float64
	Other        float64
	// TargetMargin is a percentage (33.0 = 33%), matching the prompt's framing.
	TargetMargin float64
	Overrides    *Overrides
}

// TotalCosts returns the summed contractor costs.
func (r EstimateRequest) TotalCosts() float64 {
	return r.Materials + r.Labor + r.Other
}

// GapRequest is the input for the gap analysis stage.
type GapRequest struct {
	VisionEvidence []core.VisionEvidence
	Estimate       *core.EstimateInterpretation
	RoofSquares    float64
	Jurisdiction   string
	Overrides      *Overrides
}

// StrategyRequest is the input for the supplement strategist stage.
type StrategyRequest struct {
	Gaps           *core.GapAnalysis
	Estimate       *core.EstimateInterpretation
	VisionEvidence []core.VisionEvidence
	// TargetMargin is a decimal (0.33 = 33%).
	TargetMargin float64
	Carrier      string
	Jurisdiction string
	Overrides    *Overrides
}

// ReviewRequest is the input for one review cycle.
type ReviewRequest struct {
	Strategy       *core.SupplementStrategy
	Gaps           *core.GapAnalysis
	Estimate       *core.EstimateInterpretation
	VisionEvidence []core.VisionEvidence
	TargetMargin   float64
	Iteration      int
	MaxIterations  int
}

// ReportRequest is the input for report generation.
type ReportRequest struct {
	Strategy       *core.SupplementStrategy
	Estimate       *core.EstimateInterpretation
	VisionEvidence []core.VisionEvidence
	Metadata       core.ClaimMetadata
	PhotoIDs       []string
}

// ReportOutput is the report stage result: always HTML, PDF only when a
// renderer is available and succeeds.
type ReportOutput struct {
	HTML string
	PDF  []byte
}
