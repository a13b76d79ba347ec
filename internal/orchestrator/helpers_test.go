package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/framework"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

func nopLogger() *logging.Logger { return logging.NewNop() }

// fakeTransport implements core.ModelTransport with canned responses.
type fakeTransport struct {
	completeFn           func(ctx context.Context, system, user string) (string, error)
	completeStructuredFn func(ctx context.Context, system, user string, schema json.RawMessage, schemaName string) (string, error)
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

func (f *fakeTransport) CompleteVisionStructured(context.Context, string, string, [][]byte, json.RawMessage, string) (string, error) {
	return "", errors.New("vision completion not stubbed")
}

func (f *fakeTransport) CompleteWithTools(context.Context, string, string, []core.ToolDefinition) (*core.ToolResponse, error) {
	return nil, errors.New("tool completion not stubbed")
}

// scriptedTransport replays one structured response per call, repeating the
// last entry once the script runs out.
func scriptedTransport(responses ...string) *fakeTransport {
	calls := 0
	return &fakeTransport{
		completeStructuredFn: func(context.Context, string, string, json.RawMessage, string) (string, error) {
			i := calls
			if i >= len(responses) {
				i = len(responses) - 1
			}
			calls++
			return responses[i], nil
		},
	}
}

// Fake frameworks with call counters and optional request capture.

type fakeVision struct {
	calls int
	fn    func(req agents.VisionRequest) (*core.VisionEvidence, error)
}

func (f *fakeVision) Analyze(_ context.Context, req agents.VisionRequest) (*core.VisionEvidence, error) {
	f.calls++
	if f.fn != nil {
		return f.fn(req)
	}
	return sampleEvidence(req.PhotoID), nil
}

type fakeEstimate struct {
	calls int
	last  agents.EstimateRequest
}

func (f *fakeEstimate) Analyze(_ context.Context, req agents.EstimateRequest) (*core.EstimateInterpretation, error) {
	f.calls++
	f.last = req
	return sampleEstimate(), nil
}

type fakeGap struct {
	calls int
	last  agents.GapRequest
}

func (f *fakeGap) Analyze(_ context.Context, req agents.GapRequest) (*core.GapAnalysis, error) {
	f.calls++
	f.last = req
	return sampleGaps(), nil
}

type fakeStrategist struct {
	calls int
	last  agents.StrategyRequest
}

func (f *fakeStrategist) Analyze(_ context.Context, req agents.StrategyRequest) (*core.SupplementStrategy, error) {
	f.calls++
	f.last = req
	return sampleStrategy(), nil
}

func sampleEvidence(photoID string) *core.VisionEvidence {
	return &core.VisionEvidence{
		PhotoID: photoID,
		Components: []core.Component{{
			Type:                core.ComponentShingle,
			LocationHint:        "north slope",
			Condition:           "damaged",
			Description:         "widespread hail bruising",
			SeverityScore:       0.8,
			DetectionConfidence: 0.9,
		}},
	}
}

func sampleEstimate() *core.EstimateInterpretation {
	return &core.EstimateInterpretation{
		EstimateSummary: core.EstimateSummary{Carrier: "State Farm", ClaimNumber: "CLM-100", TotalEstimateAmount: 20000},
		LineItems: []core.LineItem{{
			LineID: "L1", Description: "Remove and replace shingles",
			ScopeCategory: core.ScopeRoofingInstallation, Quantity: 30, Unit: "SQ", UnitPrice: 600, Total: 18000,
			IsRoofingCore: true,
		}},
		Financials: core.Financials{
			OriginalEstimateTotal: 20000,
			ActualCosts:           core.ActualCosts{Materials: 9000, Labor: 6500, Other: 500, Total: 16000},
			CurrentMargin:         0.2,
			TargetMargin:          0.33,
			MarginGap:             0.13,
		},
		ParsingConfidence: 0.9,
	}
}

func sampleGaps() *core.GapAnalysis {
	gaps := []core.ScopeGap{{
		GapID: "G1", Category: core.GapMissingLineItem, Severity: core.SeverityCritical,
		Description: "drip edge absent", LinkedPhotos: []string{"photo-1"},
		Confidence: 0.9, UnpaidWorkRisk: true,
	}}
	return &core.GapAnalysis{ScopeGaps: gaps, CoverageSummary: core.SummarizeGaps(gaps, "one critical gap")}
}

func sampleStrategy() *core.SupplementStrategy {
	supplements := []core.SupplementProposal{{
		SupplementID: "S1", Type: "addition", Description: "Drip edge all elevations",
		Justification: "Visible in photos, required by code.", Source: "gap_analysis",
		LinkedGaps: []string{"G1"}, Quantity: 180, Unit: "LF",
		EstimatedUnitPrice: 11.11, EstimatedValue: 2000,
		Confidence: 0.85, PushbackRisk: core.RiskLow, Priority: core.PriorityHigh,
	}}
	return &core.SupplementStrategy{
		Supplements:    supplements,
		MarginAnalysis: core.ComputeMarginAnalysis(20000, 16000, 0.2, 0.33, core.SupplementTotal(supplements)),
		StrategyNotes:  []string{"Single proposal covering the critical gap."},
	}
}

func sampleJob() *core.Job {
	return &core.Job{
		ID: "job-1",
		Metadata: core.ClaimMetadata{
			Carrier: "State Farm", ClaimNumber: "CLM-100",
			InsuredName: "Jordan Miller", PropertyAddress: "12 Oak St",
		},
		Photos: []core.Photo{
			{ID: "photo-1", Data: []byte{0x89, 0x50}, Filename: "roof1.png", MIMEType: "image/png"},
			{ID: "photo-2", Data: []byte{0xff, 0xd8}, Filename: "roof2.jpg", MIMEType: "image/jpeg"},
		},
		Costs:          core.Costs{Materials: 9000, Labor: 6500, Other: 500, Currency: "USD"},
		Targets:        core.BusinessTargets{MinimumMargin: 0.33},
		GenerateReport: true,
	}
}

// Review JSON builders.

func approvedReviewJSON() string {
	return `{
		"approved": true,
		"overall_assessment": "Package is complete and defensible.",
		"ready_for_delivery": true,
		"margin_assessment": {"target": 0.33, "projected": 0.36, "acceptable": true},
		"carrier_risk_assessment": {"overall_risk": "low", "high_risk_items": []}
	}`
}

func rerunReviewJSON(agent, priority string) string {
	return fmt.Sprintf(`{
		"approved": false,
		"overall_assessment": "Supplement values need rework.",
		"ready_for_delivery": false,
		"reruns_requested": [{
			"request_id": "RR-1",
			"target_agent": %q,
			"priority": %q,
			"reason": "Pricing is inconsistent with the evidence",
			"instructions": "Re-derive supplement pricing from the linked gaps",
			"affected_items": ["S1"]
		}]
	}`, agent, priority)
}

func adjustmentReviewJSON(targetType, targetID, field string, value any) string {
	raw, _ := json.Marshal(value)
	return fmt.Sprintf(`{
		"approved": false,
		"overall_assessment": "One value needs correction.",
		"ready_for_delivery": false,
		"adjustments_requested": [{
			"request_id": "ADJ-1",
			"target_type": %q,
			"target_id": %q,
			"field": %q,
			"suggested_value": %s,
			"reason": "Market rate correction"
		}]
	}`, targetType, targetID, field, raw)
}

func criticalFlagReviewJSON() string {
	return `{
		"approved": false,
		"overall_assessment": "Evidence does not support the claimed damage scope.",
		"ready_for_delivery": false,
		"human_flags": [{
			"flag_id": "HF-1",
			"severity": "critical",
			"reason": "Possible scope inflation",
			"context": "Supplement total exceeds evidence-supported damage",
			"recommended_action": "Senior estimator review required"
		}]
	}`
}

func testOrchestrator(deps Deps, opts Options) *Orchestrator {
	return New(deps, opts, nopLogger())
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Retry = agents.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	opts.VisionFramework = framework.VisionSingleModel
	return opts
}
