package core

// RiskLevel grades expected carrier pushback.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Priority orders work and rerun requests.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// PriorityRank returns the sort rank of a priority, lower is more urgent.
// Unknown priorities sort last.
func PriorityRank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// SupplementProposal is one proposed addition or correction to the estimate.
type SupplementProposal struct {
	SupplementID       string    `json:"supplement_id"`
	Type               string    `json:"type"`
	Description        string    `json:"line_item_description"`
	Justification      string    `json:"justification"`
	Source             string    `json:"source"`
	LinkedGaps         []string  `json:"linked_gaps"`
	LinkedPhotos       []string  `json:"linked_photos"`
	CodeCitation       string    `json:"code_citation,omitempty"`
	Quantity           float64   `json:"quantity"`
	Unit               string    `json:"unit"`
	EstimatedUnitPrice float64   `json:"estimated_unit_price"`
	EstimatedValue     float64   `json:"estimated_value"`
	Confidence         float64   `json:"confidence"`
	PushbackRisk       RiskLevel `json:"pushback_risk"`
	Priority           Priority  `json:"priority"`
}

// MarginAnalysis is the derived financial picture of a strategy. Every
// instance must satisfy the invariants enforced by ComputeMarginAnalysis.
type MarginAnalysis struct {
	OriginalEstimate        float64 `json:"original_estimate"`
	TotalCosts              float64 `json:"total_costs"`
	CurrentMargin           float64 `json:"current_margin"`
	ProposedSupplementTotal float64 `json:"proposed_supplement_total"`
	NewEstimateTotal        float64 `json:"new_estimate_total"`
	ProjectedMargin         float64 `json:"projected_margin"`
	TargetMargin            float64 `json:"target_margin"`
	MarginGapRemaining      float64 `json:"margin_gap_remaining"`
	TargetAchieved          bool    `json:"target_achieved"`
}

// ComputeMarginAnalysis derives a consistent MarginAnalysis:
//
//	new_estimate_total = original + supplementTotal
//	projected_margin   = (new_estimate_total - costs) / new_estimate_total
//	target_achieved    = projected_margin >= target
//
// A zero new estimate total yields a zero projected margin.
func ComputeMarginAnalysis(original, totalCosts, currentMargin, target, supplementTotal float64) MarginAnalysis {
	newTotal := original + supplementTotal
	projected := 0.0
	if newTotal > 0 {
		projected = (newTotal - totalCosts) / newTotal
	}
	return MarginAnalysis{
		OriginalEstimate:        original,
		TotalCosts:              totalCosts,
		CurrentMargin:           currentMargin,
		ProposedSupplementTotal: supplementTotal,
		NewEstimateTotal:        newTotal,
		ProjectedMargin:         projected,
		TargetMargin:            target,
		MarginGapRemaining:      target - projected,
		TargetAchieved:          projected >= target,
	}
}

// SupplementTotal sums the estimated value of all proposals.
func SupplementTotal(supplements []SupplementProposal) float64 {
	total := 0.0
	for _, s := range supplements {
		total += s.EstimatedValue
	}
	return total
}

// SupplementStrategy is the strategist stage output.
type SupplementStrategy struct {
	Supplements    []SupplementProposal `json:"supplements"`
	MarginAnalysis MarginAnalysis       `json:"margin_analysis"`
	StrategyNotes  []string             `json:"strategy_notes"`
}
