package orchestrator

import (
	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

// runContext accumulates the intermediate artifacts of one orchestration run.
// It lives for the duration of Run and is never persisted; one instance per
// job, never shared.
type runContext struct {
	job          *core.Job
	estimateText string
	// targetMargin is a decimal (0.33 = 33%).
	targetMargin float64

	evidence []core.VisionEvidence
	estimate *core.EstimateInterpretation
	gaps     *core.GapAnalysis
	strategy *core.SupplementStrategy

	// reviews accumulates one entry per completed review cycle.
	reviews []core.ReviewResult

	llmCalls     int
	reviewCycles int
}

func newRunContext(job *core.Job) *runContext {
	margin := job.Targets.MinimumMargin
	if margin <= 0 {
		margin = core.DefaultMinimumMargin
	}
	return &runContext{job: job, targetMargin: margin}
}

func (rc *runContext) photoIDs() []string {
	ids := make([]string, len(rc.job.Photos))
	for i, p := range rc.job.Photos {
		ids[i] = p.ID
	}
	return ids
}

func (rc *runContext) visionRequest(photo core.Photo) agents.VisionRequest {
	return agents.VisionRequest{
		PhotoID:  photo.ID,
		Image:    photo.Data,
		ViewType: photo.View,
		Notes:    photo.Notes,
	}
}

func (rc *runContext) estimateRequest(ov *agents.Overrides) agents.EstimateRequest {
	return agents.EstimateRequest{
		EstimateText: rc.estimateText,
		Carrier:      rc.job.Metadata.Carrier,
		ClaimNumber:  rc.job.Metadata.ClaimNumber,
		Materials:    rc.job.Costs.Materials,
		Labor:        rc.job.Costs.Labor,
		Other:        rc.job.Costs.Other,
		TargetMargin: rc.targetMargin * 100,
		Overrides:    ov,
	}
}

func (rc *runContext) gapRequest(ov *agents.Overrides) agents.GapRequest {
	return agents.GapRequest{
		VisionEvidence: rc.evidence,
		Estimate:       rc.estimate,
		Overrides:      ov,
	}
}

func (rc *runContext) strategyRequest(ov *agents.Overrides) agents.StrategyRequest {
	return agents.StrategyRequest{
		Gaps:           rc.gaps,
		Estimate:       rc.estimate,
		VisionEvidence: rc.evidence,
		TargetMargin:   rc.targetMargin,
		Carrier:        rc.job.Metadata.Carrier,
		Overrides:      ov,
	}
}

func (rc *runContext) reviewRequest(iteration, maxIterations int) agents.ReviewRequest {
	return agents.ReviewRequest{
		Strategy:       rc.strategy,
		Gaps:           rc.gaps,
		Estimate:       rc.estimate,
		VisionEvidence: rc.evidence,
		TargetMargin:   rc.targetMargin,
		Iteration:      iteration,
		MaxIterations:  maxIterations,
	}
}

func (rc *runContext) reportRequest() agents.ReportRequest {
	return agents.ReportRequest{
		Strategy:       rc.strategy,
		Estimate:       rc.estimate,
		VisionEvidence: rc.evidence,
		Metadata:       rc.job.Metadata,
		PhotoIDs:       rc.photoIDs(),
	}
}
