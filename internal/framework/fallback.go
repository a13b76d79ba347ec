package framework

import (
	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

// Fallback constructors produce minimally valid typed results from fields
// that are always available on the request, with no model call and no
// failure mode. They are the last line of defense letting the pipeline
// degrade instead of crash.

// FallbackEstimate builds an empty estimate interpretation carrying the
// contractor's known costs.
func FallbackEstimate(req agents.EstimateRequest) *core.EstimateInterpretation {
	target := req.TargetMargin / 100
	return &core.EstimateInterpretation{
		EstimateSummary: core.EstimateSummary{
			Carrier:     req.Carrier,
			ClaimNumber: req.ClaimNumber,
		},
		LineItems: []core.LineItem{},
		Financials: core.Financials{
			ActualCosts: core.ActualCosts{
				Materials: req.Materials,
				Labor:     req.Labor,
				Other:     req.Other,
				Total:     req.TotalCosts(),
			},
			TargetMargin: target,
			MarginGap:    target,
		},
		ParsingNotes:      []string{"Fallback estimate created due to model processing failure"},
		ParsingConfidence: 0,
	}
}

// FallbackGapAnalysis builds an empty gap analysis.
func FallbackGapAnalysis() *core.GapAnalysis {
	return &core.GapAnalysis{
		ScopeGaps: []core.ScopeGap{},
		CoverageSummary: core.CoverageSummary{
			Narrative: "Fallback gap analysis created due to model processing failure",
		},
	}
}

// FallbackStrategy builds an empty supplement strategy whose margin analysis
// is derived purely from the parsed estimate's financials.
func FallbackStrategy(req agents.StrategyRequest) *core.SupplementStrategy {
	var original, totalCosts float64
	if req.Estimate != nil {
		original = req.Estimate.Financials.OriginalEstimateTotal
		totalCosts = req.Estimate.Financials.ActualCosts.Total
	}
	currentMargin := 0.0
	if original > 0 {
		currentMargin = (original - totalCosts) / original
	}
	return &core.SupplementStrategy{
		Supplements:    []core.SupplementProposal{},
		MarginAnalysis: core.ComputeMarginAnalysis(original, totalCosts, currentMargin, req.TargetMargin, 0),
		StrategyNotes:  []string{"Fallback strategy created due to model processing failure"},
	}
}
