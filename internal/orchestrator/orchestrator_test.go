package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

func happyDeps(reviewScript ...string) (Deps, *fakeVision, *fakeEstimate, *fakeGap, *fakeStrategist) {
	vision := &fakeVision{}
	estimate := &fakeEstimate{}
	gap := &fakeGap{}
	strategist := &fakeStrategist{}

	reporter := agents.NewReportAgent(&fakeTransport{
		completeFn: func(context.Context, string, string) (string, error) {
			return "<html><body>Supplement Request</body></html>", nil
		},
	}, nil, nopLogger())

	deps := Deps{
		Vision:     vision,
		Estimate:   estimate,
		Gap:        gap,
		Strategist: strategist,
		Reviewer:   agents.NewReviewAgent(scriptedTransport(reviewScript...), nopLogger()),
		Reporter:   reporter,
	}
	return deps, vision, estimate, gap, strategist
}

func TestRunCompletesOnFirstApproval(t *testing.T) {
	deps, vision, estimate, gap, strategist := happyDeps(approvedReviewJSON())
	o := testOrchestrator(deps, testOptions())

	result := o.Run(context.Background(), sampleJob())

	assert.True(t, result.Success)
	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, "job-1", result.JobID)
	require.NotNil(t, result.Supplements)
	assert.Empty(t, result.HumanFlags)
	assert.Contains(t, result.ReportHTML, "Supplement Request")
	assert.Equal(t, 1, result.ReviewCycles)

	assert.Equal(t, 2, vision.calls)
	assert.Equal(t, 1, estimate.calls)
	assert.Equal(t, 1, gap.calls)
	assert.Equal(t, 1, strategist.calls)

	// 2 vision + 1 estimate + 1 gap + 1 strategist + 1 review + 1 report.
	assert.Equal(t, 7, result.LLMCalls)
	assert.GreaterOrEqual(t, result.ProcessingTime, 0.0)
}

func TestRunRerunThenApproval(t *testing.T) {
	deps, _, _, gap, strategist := happyDeps(
		rerunReviewJSON("supplement_agent", "critical"),
		approvedReviewJSON(),
	)
	o := testOrchestrator(deps, testOptions())

	result := o.Run(context.Background(), sampleJob())

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, 2, result.ReviewCycles)
	assert.Equal(t, 2, strategist.calls, "initial run plus exactly one rerun")
	assert.Equal(t, 1, gap.calls, "supplement rerun must not cascade upstream")
	assert.Empty(t, result.HumanFlags)
}

func TestRunExhaustsCyclesWithAdjustments(t *testing.T) {
	adjust := adjustmentReviewJSON("supplement", "S1", "estimated_value", 2500)
	deps, _, _, _, strategist := happyDeps(adjust, adjust)
	o := testOrchestrator(deps, testOptions())

	result := o.Run(context.Background(), sampleJob())

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ReviewCycles)
	assert.Equal(t, 1, strategist.calls, "adjustments never trigger reruns")

	require.Len(t, result.HumanFlags, 1)
	assert.Equal(t, "MAX_CYCLES", result.HumanFlags[0].FlagID)
	assert.Equal(t, core.FlagCritical, result.HumanFlags[0].Severity)

	assert.NotEmpty(t, result.ReportHTML, "report generation still proceeds on exhaustion")
	require.NotNil(t, result.Supplements)
	assert.InDelta(t, 2500, result.Supplements.Supplements[0].EstimatedValue, 1e-9)
	assert.InDelta(t, 2500, result.Supplements.MarginAnalysis.ProposedSupplementTotal, 1e-9)
}

func TestRunEscalatesOnCriticalFlag(t *testing.T) {
	deps, _, _, _, _ := happyDeps(criticalFlagReviewJSON())
	o := testOrchestrator(deps, testOptions())

	result := o.Run(context.Background(), sampleJob())

	assert.False(t, result.Success)
	assert.Equal(t, core.StatusEscalated, result.Status)
	assert.Equal(t, "Evidence does not support the claimed damage scope.", result.EscalationReason)
	require.Len(t, result.HumanFlags, 1)
	require.NotNil(t, result.PartialResults)
	assert.NotNil(t, result.PartialResults.Supplements)
	assert.NotNil(t, result.PartialResults.Gaps)
	assert.Empty(t, result.ReportHTML, "escalated jobs skip report generation")
	assert.Equal(t, 1, result.ReviewCycles)
}

func TestRunFailsWhenReviewerBreaks(t *testing.T) {
	deps, _, _, _, _ := happyDeps()
	deps.Reviewer = agents.NewReviewAgent(&fakeTransport{
		completeStructuredFn: func(context.Context, string, string, json.RawMessage, string) (string, error) {
			return "", errors.New("model unavailable")
		},
	}, nopLogger())
	o := testOrchestrator(deps, testOptions())

	result := o.Run(context.Background(), sampleJob())

	assert.False(t, result.Success)
	assert.Equal(t, core.StatusFailed, result.Status)
	assert.NotEmpty(t, result.EscalationReason)
	assert.Nil(t, result.PartialResults, "failed runs attach no partial results")
	assert.Nil(t, result.Supplements)
}

func TestRerunBudgetNeverExceeded(t *testing.T) {
	rerun := rerunReviewJSON("gap_agent", "high")
	deps, _, _, gap, strategist := happyDeps(rerun, rerun, rerun, rerun)
	opts := testOptions()
	opts.MaxReviewCycles = 4
	o := testOrchestrator(deps, opts)

	result := o.Run(context.Background(), sampleJob())

	assert.Equal(t, 2, gap.calls, "one initial run plus at most MaxRerunsPerAgent reruns")
	assert.Equal(t, 2, strategist.calls, "gap rerun cascades to the strategist once")
	assert.Equal(t, 2, result.ReviewCycles, "loop stops once the budget blocks all progress")
	assert.Equal(t, core.StatusCompleted, result.Status)
}

func TestEstimateRerunCascadesThroughGapAndStrategist(t *testing.T) {
	deps, _, estimate, gap, strategist := happyDeps(
		rerunReviewJSON("estimate_agent", "high"),
		approvedReviewJSON(),
	)
	o := testOrchestrator(deps, testOptions())

	result := o.Run(context.Background(), sampleJob())

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, 2, estimate.calls)
	assert.Equal(t, 2, gap.calls)
	assert.Equal(t, 2, strategist.calls)
	require.NotNil(t, estimate.last.Overrides)
	assert.Contains(t, estimate.last.Overrides.ReviewFeedback, "Re-derive")
	assert.Nil(t, gap.last.Overrides, "cascaded stages run without the reviewer overrides")
}

func TestVisionRerunRefreshesDownstreamOnly(t *testing.T) {
	deps, vision, _, gap, strategist := happyDeps(
		rerunReviewJSON("vision_agent", "medium"),
		approvedReviewJSON(),
	)
	o := testOrchestrator(deps, testOptions())

	result := o.Run(context.Background(), sampleJob())

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, 2, vision.calls, "vision itself is never rerun by the review loop")
	assert.Equal(t, 2, gap.calls)
	assert.Equal(t, 2, strategist.calls)
	require.NotNil(t, gap.last.Overrides, "reviewer feedback lands on the first downstream stage")
}

func TestPhotoDroppedAfterExhaustedRetries(t *testing.T) {
	deps, vision, _, gap, _ := happyDeps(approvedReviewJSON())
	vision.fn = func(req agents.VisionRequest) (*core.VisionEvidence, error) {
		if req.PhotoID == "photo-2" {
			return nil, errors.New("blurry beyond recognition")
		}
		return sampleEvidence(req.PhotoID), nil
	}
	o := testOrchestrator(deps, testOptions())

	result := o.Run(context.Background(), sampleJob())

	assert.Equal(t, core.StatusCompleted, result.Status)
	require.Len(t, gap.last.VisionEvidence, 1, "failed photo is dropped, not fatal")
	assert.Equal(t, "photo-1", gap.last.VisionEvidence[0].PhotoID)
	assert.Equal(t, 3, vision.calls, "dropped photo consumed its retry budget")
}

func TestRunSkipsReportWhenNotRequested(t *testing.T) {
	deps, _, _, _, _ := happyDeps(approvedReviewJSON())
	o := testOrchestrator(deps, testOptions())

	job := sampleJob()
	job.GenerateReport = false
	result := o.Run(context.Background(), job)

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Empty(t, result.ReportHTML)
	assert.Equal(t, 6, result.LLMCalls, "no report call charged")
}

func TestRunAppliesDefaultMarginTarget(t *testing.T) {
	deps, _, estimate, _, strategist := happyDeps(approvedReviewJSON())
	o := testOrchestrator(deps, testOptions())

	job := sampleJob()
	job.Targets.MinimumMargin = 0
	o.Run(context.Background(), job)

	assert.InDelta(t, core.DefaultMinimumMargin*100, estimate.last.TargetMargin, 1e-9)
	assert.InDelta(t, core.DefaultMinimumMargin, strategist.last.TargetMargin, 1e-9)
}
