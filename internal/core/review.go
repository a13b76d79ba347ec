package core

// AgentName identifies a rerunnable upstream stage.
type AgentName string

const (
	AgentVision     AgentName = "vision_agent"
	AgentEstimate   AgentName = "estimate_agent"
	AgentGap        AgentName = "gap_agent"
	AgentSupplement AgentName = "supplement_agent"
)

// ValidAgentName reports whether n names a rerunnable agent.
func ValidAgentName(n AgentName) bool {
	switch n {
	case AgentVision, AgentEstimate, AgentGap, AgentSupplement:
		return true
	default:
		return false
	}
}

// RerunRequest asks for an upstream stage to run again with corrective
// instructions.
type RerunRequest struct {
	RequestID     string    `json:"request_id"`
	TargetAgent   AgentName `json:"target_agent"`
	Priority      Priority  `json:"priority"`
	Reason        string    `json:"reason"`
	Instructions  string    `json:"instructions"`
	AffectedItems []string  `json:"affected_items"`
	ExpectsChange []string  `json:"expects_change_to"`
}

// AdjustmentTarget is the kind of object an adjustment patches.
type AdjustmentTarget string

const (
	TargetSupplement     AdjustmentTarget = "supplement"
	TargetGap            AdjustmentTarget = "gap"
	TargetLineItem       AdjustmentTarget = "line_item"
	TargetEvidence       AdjustmentTarget = "evidence"
	TargetMarginAnalysis AdjustmentTarget = "margin_analysis"
)

// Adjustment is a targeted field-level patch avoiding a full stage rerun.
type Adjustment struct {
	RequestID      string           `json:"request_id"`
	TargetType     AdjustmentTarget `json:"target_type"`
	TargetID       string           `json:"target_id"`
	Field          string           `json:"field"`
	CurrentValue   any              `json:"current_value"`
	SuggestedValue any              `json:"suggested_value"`
	Reason         string           `json:"reason"`
}

// FlagSeverity grades a human flag.
type FlagSeverity string

const (
	FlagCritical FlagSeverity = "critical"
	FlagWarning  FlagSeverity = "warning"
	FlagInfo     FlagSeverity = "info"
)

// HumanFlag signals that a human must look at something before delivery.
// Critical severity short-circuits the review loop.
type HumanFlag struct {
	FlagID            string       `json:"flag_id"`
	Severity          FlagSeverity `json:"severity"`
	Reason            string       `json:"reason"`
	Context           string       `json:"context"`
	RecommendedAction string       `json:"recommended_action"`
}

// MarginAssessment is the reviewer's read on margin attainment.
type MarginAssessment struct {
	Target     float64 `json:"target"`
	Projected  float64 `json:"projected"`
	Acceptable bool    `json:"acceptable"`
	Notes      string  `json:"notes,omitempty"`
}

// CarrierRiskAssessment is the reviewer's read on carrier pushback risk.
type CarrierRiskAssessment struct {
	OverallRisk   RiskLevel `json:"overall_risk"`
	HighRiskItems []string  `json:"high_risk_items"`
	Notes         string    `json:"notes,omitempty"`
}

// ReviewResult is the review stage output for one cycle.
type ReviewResult struct {
	Approved              bool                  `json:"approved"`
	OverallAssessment     string                `json:"overall_assessment"`
	RerunsRequested       []RerunRequest        `json:"reruns_requested"`
	AdjustmentsRequested  []Adjustment          `json:"adjustments_requested"`
	HumanFlags            []HumanFlag           `json:"human_flags"`
	MarginAssessment      MarginAssessment      `json:"margin_assessment"`
	CarrierRiskAssessment CarrierRiskAssessment `json:"carrier_risk_assessment"`
	ReadyForDelivery      bool                  `json:"ready_for_delivery"`
}

// HasCriticalFlag reports whether any flag carries critical severity.
func (r ReviewResult) HasCriticalFlag() bool {
	for _, f := range r.HumanFlags {
		if f.Severity == FlagCritical {
			return true
		}
	}
	return false
}

// HasActionableFeedback reports whether the reviewer supplied anything the
// loop can act on.
func (r ReviewResult) HasActionableFeedback() bool {
	return len(r.RerunsRequested) > 0 || len(r.AdjustmentsRequested) > 0
}
