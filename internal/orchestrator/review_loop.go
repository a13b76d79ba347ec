package orchestrator

import (
	"context"
	"sort"
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

// stageRunner is the review loop's handle for rerunning upstream stages.
// Implemented by the Orchestrator; faked in tests.
type stageRunner interface {
	runEstimate(ctx context.Context, rc *runContext, ov *agents.Overrides) error
	runGap(ctx context.Context, rc *runContext, ov *agents.Overrides) error
	runStrategist(ctx context.Context, rc *runContext, ov *agents.Overrides) error
}

// reviewLoop runs bounded review cycles: each cycle invokes the review agent
// and either terminates (approved, critical flag, nothing actionable, no
// progress) or applies the requested adjustments and reruns before the next
// cycle. Exhausting all cycles synthesizes a critical MAX_CYCLES flag.
type reviewLoop struct {
	reviewer  *agents.ReviewAgent
	stages    stageRunner
	maxCycles int
	maxReruns int
	log       *logging.Logger
}

// loopOutcome is the review loop's terminal state. escalate is set only when
// the review agent itself raised a critical flag; the synthetic exhaustion
// flag completes the job with flags attached instead.
type loopOutcome struct {
	review   *core.ReviewResult
	escalate bool
}

func (l *reviewLoop) run(ctx context.Context, rc *runContext) (*loopOutcome, error) {
	rerunCounts := make(map[core.AgentName]int)

	for cycle := 1; cycle <= l.maxCycles; cycle++ {
		log := l.log.WithCycle(cycle)
		rc.reviewCycles = cycle
		rc.llmCalls++

		review, err := l.reviewer.Run(ctx, rc.reviewRequest(cycle, l.maxCycles))
		if err != nil {
			return nil, err
		}
		rc.reviews = append(rc.reviews, *review)

		switch {
		case review.Approved && review.ReadyForDelivery:
			log.Info("package approved for delivery")
			return &loopOutcome{review: review}, nil
		case review.HasCriticalFlag():
			log.Warn("critical human flag raised", "flags", len(review.HumanFlags))
			return &loopOutcome{review: review, escalate: true}, nil
		case !review.HasActionableFeedback():
			log.Info("review rejected with no actionable feedback")
			return &loopOutcome{review: review}, nil
		}

		changes := l.applyAdjustments(rc, review.AdjustmentsRequested, log)
		executed, err := l.processReruns(ctx, rc, review.RerunsRequested, rerunCounts, log)
		if err != nil {
			return nil, err
		}
		changes += executed

		if changes == 0 {
			log.Info("no changes could be applied, stopping review loop")
			return &loopOutcome{review: review}, nil
		}
		log.Info("review cycle complete", "adjustments", changes-executed, "reruns", executed)
	}

	l.log.Warn("review loop exhausted without approval", "cycles", l.maxCycles)
	return &loopOutcome{review: maxCyclesReview(rc.targetMargin)}, nil
}

// maxCyclesReview is the synthetic terminal result for an exhausted loop.
func maxCyclesReview(targetMargin float64) *core.ReviewResult {
	const notes = "Unable to assess - review loop exhausted"
	return &core.ReviewResult{
		Approved:          false,
		OverallAssessment: "Maximum review cycles exceeded without resolution",
		HumanFlags: []core.HumanFlag{{
			FlagID:            "MAX_CYCLES",
			Severity:          core.FlagCritical,
			Reason:            "Review loop exhausted without approval",
			Context:           "System reached maximum review iterations",
			RecommendedAction: "Manual review of supplement package required",
		}},
		MarginAssessment:      core.MarginAssessment{Target: targetMargin, Notes: notes},
		CarrierRiskAssessment: core.CarrierRiskAssessment{OverallRisk: core.RiskHigh, Notes: notes},
	}
}

// applyAdjustments patches the named fields on targets resolved by id,
// producing new values rather than mutating shared state. Unknown targets
// and unknown fields are skipped. Derived aggregates are recomputed after
// every batch of patches.
func (l *reviewLoop) applyAdjustments(rc *runContext, adjustments []core.Adjustment, log *logging.Logger) int {
	applied := 0
	supplementsPatched := false
	gapsPatched := false

	for _, adj := range adjustments {
		switch adj.TargetType {
		case core.TargetSupplement:
			if l.adjustSupplement(rc, adj) {
				applied++
				supplementsPatched = true
			} else {
				log.Warn("supplement adjustment skipped", "target_id", adj.TargetID, "field", adj.Field)
			}
		case core.TargetGap:
			if l.adjustGap(rc, adj) {
				applied++
				gapsPatched = true
			} else {
				log.Warn("gap adjustment skipped", "target_id", adj.TargetID, "field", adj.Field)
			}
		case core.TargetMarginAnalysis:
			if l.adjustMargin(rc, adj) {
				applied++
				supplementsPatched = true
			} else {
				log.Warn("margin adjustment skipped", "field", adj.Field)
			}
		default:
			log.Warn("adjustment for unsupported target type skipped", "target_type", string(adj.TargetType))
		}
	}

	if gapsPatched && rc.gaps != nil {
		rc.gaps = &core.GapAnalysis{
			ScopeGaps:       rc.gaps.ScopeGaps,
			CoverageSummary: core.SummarizeGaps(rc.gaps.ScopeGaps, rc.gaps.CoverageSummary.Narrative),
		}
	}
	if supplementsPatched && rc.strategy != nil {
		m := rc.strategy.MarginAnalysis
		rc.strategy = &core.SupplementStrategy{
			Supplements: rc.strategy.Supplements,
			MarginAnalysis: core.ComputeMarginAnalysis(
				m.OriginalEstimate, m.TotalCosts, m.CurrentMargin, m.TargetMargin,
				core.SupplementTotal(rc.strategy.Supplements)),
			StrategyNotes: rc.strategy.StrategyNotes,
		}
	}
	return applied
}

// supplementSetters whitelists the patchable supplement fields. Unknown
// field names are a no-op.
var supplementSetters = map[string]func(*core.SupplementProposal, any) bool{
	"estimated_value": func(s *core.SupplementProposal, v any) bool {
		f, ok := toFloat(v)
		if !ok || f < 0 {
			return false
		}
		s.EstimatedValue = f
		if s.Quantity > 0 {
			s.EstimatedUnitPrice = f / s.Quantity
		}
		return true
	},
	"estimated_unit_price": func(s *core.SupplementProposal, v any) bool {
		f, ok := toFloat(v)
		if !ok || f < 0 {
			return false
		}
		s.EstimatedUnitPrice = f
		if s.Quantity > 0 {
			s.EstimatedValue = f * s.Quantity
		}
		return true
	},
	"quantity": func(s *core.SupplementProposal, v any) bool {
		f, ok := toFloat(v)
		if !ok || f < 0 {
			return false
		}
		s.Quantity = f
		s.EstimatedValue = s.EstimatedUnitPrice * f
		return true
	},
	"justification": func(s *core.SupplementProposal, v any) bool {
		str, ok := toString(v)
		if !ok {
			return false
		}
		s.Justification = str
		return true
	},
	"line_item_description": func(s *core.SupplementProposal, v any) bool {
		str, ok := toString(v)
		if !ok {
			return false
		}
		s.Description = str
		return true
	},
	"code_citation": func(s *core.SupplementProposal, v any) bool {
		str, ok := toString(v)
		if !ok {
			return false
		}
		s.CodeCitation = str
		return true
	},
	"pushback_risk": func(s *core.SupplementProposal, v any) bool {
		str, ok := toString(v)
		risk := core.RiskLevel(strings.ToLower(str))
		if !ok || (risk != core.RiskLow && risk != core.RiskMedium && risk != core.RiskHigh) {
			return false
		}
		s.PushbackRisk = risk
		return true
	},
	"priority": func(s *core.SupplementProposal, v any) bool {
		str, ok := toString(v)
		p := core.Priority(strings.ToLower(str))
		if !ok || core.PriorityRank(p) > 3 {
			return false
		}
		s.Priority = p
		return true
	},
}

// gapSetters whitelists the patchable gap fields.
var gapSetters = map[string]func(*core.ScopeGap, any) bool{
	"severity": func(g *core.ScopeGap, v any) bool {
		str, ok := toString(v)
		sev := core.Severity(strings.ToLower(str))
		if !ok || !core.ValidSeverity(sev) {
			return false
		}
		g.Severity = sev
		return true
	},
	"confidence": func(g *core.ScopeGap, v any) bool {
		f, ok := toFloat(v)
		if !ok || f < 0 || f > 1 {
			return false
		}
		g.Confidence = f
		return true
	},
	"description": func(g *core.ScopeGap, v any) bool {
		str, ok := toString(v)
		if !ok {
			return false
		}
		g.Description = str
		return true
	},
	"notes": func(g *core.ScopeGap, v any) bool {
		str, ok := toString(v)
		if !ok {
			return false
		}
		g.Notes = str
		return true
	},
	"unpaid_work_risk": func(g *core.ScopeGap, v any) bool {
		b, ok := v.(bool)
		if !ok {
			return false
		}
		g.UnpaidWorkRisk = b
		return true
	},
}

func (l *reviewLoop) adjustSupplement(rc *runContext, adj core.Adjustment) bool {
	if rc.strategy == nil {
		return false
	}
	setter, ok := supplementSetters[adj.Field]
	if !ok {
		return false
	}
	supplements := make([]core.SupplementProposal, len(rc.strategy.Supplements))
	copy(supplements, rc.strategy.Supplements)
	for i := range supplements {
		if supplements[i].SupplementID == adj.TargetID {
			if !setter(&supplements[i], adj.SuggestedValue) {
				return false
			}
			rc.strategy = &core.SupplementStrategy{
				Supplements:    supplements,
				MarginAnalysis: rc.strategy.MarginAnalysis,
				StrategyNotes:  rc.strategy.StrategyNotes,
			}
			return true
		}
	}
	return false
}

func (l *reviewLoop) adjustGap(rc *runContext, adj core.Adjustment) bool {
	if rc.gaps == nil {
		return false
	}
	setter, ok := gapSetters[adj.Field]
	if !ok {
		return false
	}
	gaps := make([]core.ScopeGap, len(rc.gaps.ScopeGaps))
	copy(gaps, rc.gaps.ScopeGaps)
	for i := range gaps {
		if gaps[i].GapID == adj.TargetID {
			if !setter(&gaps[i], adj.SuggestedValue) {
				return false
			}
			rc.gaps = &core.GapAnalysis{ScopeGaps: gaps, CoverageSummary: rc.gaps.CoverageSummary}
			return true
		}
	}
	return false
}

// adjustMargin supports only retargeting; all other margin fields are
// derived and recomputed, never patched directly.
func (l *reviewLoop) adjustMargin(rc *runContext, adj core.Adjustment) bool {
	if rc.strategy == nil || adj.Field != "target_margin" {
		return false
	}
	f, ok := toFloat(adj.SuggestedValue)
	if !ok || f <= 0 || f >= 1 {
		return false
	}
	m := rc.strategy.MarginAnalysis
	rc.strategy = &core.SupplementStrategy{
		Supplements: rc.strategy.Supplements,
		MarginAnalysis: core.ComputeMarginAnalysis(
			m.OriginalEstimate, m.TotalCosts, m.CurrentMargin, f, m.ProposedSupplementTotal),
		StrategyNotes: rc.strategy.StrategyNotes,
	}
	return true
}

// processReruns executes rerun requests in priority order under the
// per-agent budget. Each rerun cascades through the stages downstream of its
// target; vision reruns skip vision itself and refresh downstream analysis
// with the reviewer's feedback instead.
func (l *reviewLoop) processReruns(ctx context.Context, rc *runContext, requests []core.RerunRequest, counts map[core.AgentName]int, log *logging.Logger) (int, error) {
	sorted := make([]core.RerunRequest, len(requests))
	copy(sorted, requests)
	sort.SliceStable(sorted, func(i, j int) bool {
		return core.PriorityRank(sorted[i].Priority) < core.PriorityRank(sorted[j].Priority)
	})

	executed := 0
	for _, req := range sorted {
		if !core.ValidAgentName(req.TargetAgent) {
			log.Warn("rerun request for unknown agent skipped", "target_agent", string(req.TargetAgent))
			continue
		}
		if counts[req.TargetAgent] >= l.maxReruns {
			log.Info("rerun budget exhausted, skipping", "target_agent", string(req.TargetAgent))
			continue
		}
		counts[req.TargetAgent]++

		ov := rerunOverrides(req)
		log.Info("rerunning stage",
			"target_agent", string(req.TargetAgent),
			"priority", string(req.Priority),
			"reason", req.Reason)

		var err error
		switch req.TargetAgent {
		case core.AgentSupplement:
			err = l.stages.runStrategist(ctx, rc, ov)
		case core.AgentGap:
			err = l.cascade(ctx, rc, ov, l.stages.runGap)
		case core.AgentVision:
			err = l.cascade(ctx, rc, ov, l.stages.runGap)
		case core.AgentEstimate:
			err = l.cascade(ctx, rc, ov, l.stages.runEstimate, l.stages.runGap)
		}
		if err != nil {
			return executed, err
		}
		executed++
	}
	return executed, nil
}

type stageFn func(ctx context.Context, rc *runContext, ov *agents.Overrides) error

// cascade runs the listed stages in order with the overrides attached to the
// first, then always finishes with a strategist refresh.
func (l *reviewLoop) cascade(ctx context.Context, rc *runContext, ov *agents.Overrides, stages ...stageFn) error {
	for i, stage := range stages {
		var stageOv *agents.Overrides
		if i == 0 {
			stageOv = ov
		}
		if err := stage(ctx, rc, stageOv); err != nil {
			return err
		}
	}
	return l.stages.runStrategist(ctx, rc, nil)
}

func rerunOverrides(req core.RerunRequest) *agents.Overrides {
	feedback := req.Instructions
	if req.Reason != "" && feedback != "" {
		feedback = req.Reason + ": " + feedback
	} else if feedback == "" {
		feedback = req.Reason
	}
	return &agents.Overrides{ReviewFeedback: feedback, FocusItems: req.AffectedItems}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
