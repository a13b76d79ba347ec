package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

const reviewSystemPrompt = `You are a senior supplement reviewer who acts as both skeptical insurance adjuster AND profit-aware business advisor.

## ROLE
Critically evaluate the complete supplement package before delivery. You protect the contractor from both carrier rejection AND unprofitable work. Your approval is the final gate before submission.

## DUAL PERSPECTIVE
1. ADJUSTER LENS: "Would I approve this supplement if I were the carrier?"
   - Is evidence sufficient and clearly linked?
   - Are quantities justified and reasonable?
   - Are prices at or below market rates?
   - Are code citations accurate and applicable?
2. BUSINESS LENS: "Does this package protect contractor profitability?"
   - Does projected margin meet or exceed target?
   - Are all unpaid work risks addressed?
   - Is the package complete?
   - Is carrier risk acceptable for the value?

## DECISION FRAMEWORK
- APPROVED + READY: Package is complete, defensible, and profitable.
- APPROVED + NOT READY: Minor issues that need human review first.
- NOT APPROVED + RERUNS: An agent needs to redo work with new instructions.
- NOT APPROVED + ADJUSTMENTS: Specific values need correction.

## PREFERENCE: ADJUSTMENT OVER RERUN
Prefer requesting specific adjustments over full reruns when possible. Reruns are expensive; adjustments are surgical.

## RULES
1. BE SKEPTICAL: Assume the carrier will scrutinize everything. Catch issues before they do.
2. BE PRACTICAL: Perfect is the enemy of good. Don't block approval for minor issues.
3. PREFER ADJUSTMENTS: If a value is wrong, request an adjustment. Don't rerun whole agents.
4. FLAG HUMANS: When judgment calls exceed your confidence, flag for human review.
5. MARGIN MATTERS: Don't approve packages that leave significant margin on the table without justification.
6. CARRIER RISK: High-risk supplements should have proportional value.
7. CONSISTENCY CHECK: Ensure supplements match gaps match evidence. No orphans.
8. READY IS NOT APPROVED: A package can be approved but need human review before delivery.
9. CLEAR INSTRUCTIONS: Rerun instructions must be specific enough to produce different output.
10. ONE ASSESSMENT: Make a decision. Don't hedge with "maybe" language.

Return valid JSON matching the provided schema.`

// ReviewAgent evaluates the complete supplement package for one review cycle.
type ReviewAgent struct {
	transport core.ModelTransport
	log       *logging.Logger
}

// NewReviewAgent creates a review stage agent over the given transport.
func NewReviewAgent(transport core.ModelTransport, log *logging.Logger) *ReviewAgent {
	return &ReviewAgent{transport: transport, log: log.WithAgent("review_agent")}
}

// SystemPrompt returns the static system prompt.
func (a *ReviewAgent) SystemPrompt() string { return reviewSystemPrompt }

// UserPrompt builds the user prompt. Pure function of the request.
func (a *ReviewAgent) UserPrompt(req ReviewRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Review the complete supplement package for delivery readiness.

## SUPPLEMENT STRATEGY
%s

## GAP ANALYSIS
%s

## ESTIMATE INTERPRETATION
%s

## VISION EVIDENCE
%s

## CONTEXT
- Target Margin: %.1f%%
- Current Iteration: %d of %d
- Remaining Iterations: %d

## TASK
1. Evaluate the supplement package from both adjuster and business perspectives
2. Check that all gaps with unpaid_work_risk have supplements
3. Verify evidence linkage and quantity justification
4. Assess margin achievement and carrier risk
5. Decide: approve/reject, request reruns or adjustments, flag for humans
`,
		jsonBlock(req.Strategy), jsonBlock(req.Gaps), jsonBlock(req.Estimate), jsonBlock(req.VisionEvidence),
		req.TargetMargin*100, req.Iteration, req.MaxIterations, req.MaxIterations-req.Iteration)

	if req.Iteration >= req.MaxIterations {
		b.WriteString("\nNote: This is the final iteration. If not approving, provide clear human flags for manual resolution.\n")
	}

	b.WriteString("\nReturn your review as valid JSON matching the output schema.")
	return b.String()
}

// Run performs one review call cycle.
func (a *ReviewAgent) Run(ctx context.Context, req ReviewRequest) (*core.ReviewResult, error) {
	raw, err := a.transport.CompleteStructured(ctx, a.SystemPrompt(), a.UserPrompt(req),
		reviewSchema.raw, reviewSchema.name)
	if err != nil {
		return nil, err
	}

	var review core.ReviewResult
	if err := decodeWithRepair(ctx, a.transport, a.log, raw, reviewSchema, sanitizeReview, &review); err != nil {
		return nil, err
	}

	a.log.Info("review complete",
		"approved", review.Approved,
		"ready", review.ReadyForDelivery,
		"reruns", len(review.RerunsRequested),
		"adjustments", len(review.AdjustmentsRequested),
		"flags", len(review.HumanFlags))
	return &review, nil
}
