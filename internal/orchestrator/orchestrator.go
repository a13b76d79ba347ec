// Package orchestrator drives one claim job through the analysis pipeline:
// prepare, extract (vision over photos in parallel with estimate parsing),
// gap analysis, supplement strategy, the bounded review loop, and report
// generation. Run always returns a terminal OrchestratorResult; failures
// surface as status=failed, never as a raw error.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/framework"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

// Options bounds the pipeline. The framework name fields feed the static
// LLM-call cost table; they do not select behavior here.
type Options struct {
	MaxReviewCycles   int
	MaxRerunsPerAgent int
	PhotoBatchSize    int
	Retry             agents.RetryPolicy

	VisionFramework     string
	EstimateFramework   string
	GapFramework        string
	StrategistFramework string
	// VisionModels is the ensemble size, used only to cost ensemble_voting.
	VisionModels int
}

// DefaultOptions returns the standard pipeline limits.
func DefaultOptions() Options {
	return Options{
		MaxReviewCycles:     2,
		MaxRerunsPerAgent:   1,
		PhotoBatchSize:      5,
		Retry:               agents.DefaultRetryPolicy(),
		VisionFramework:     framework.VisionSingleModel,
		EstimateFramework:   framework.EstimateSingle,
		GapFramework:        framework.GapSingle,
		StrategistFramework: framework.StrategistSingle,
		VisionModels:        1,
	}
}

// frameworkCost is the declared LLM-call cost of one invocation of a named
// framework. Static by design: consensus charges 3 even when the debate
// exits early, a conservative budget estimate rather than an exact count.
func frameworkCost(name string, models int) int {
	switch name {
	case framework.VisionParallelAggregate, framework.EstimateEnsemble:
		return 2
	case framework.VisionConsensusDebate, framework.GapConsensus:
		return 3
	case framework.VisionEnsembleVoting:
		if models < 1 {
			return 1
		}
		return models
	default:
		return 1
	}
}

// Deps are the injected collaborators for one Orchestrator. Frameworks are
// constructed elsewhere; the orchestrator never reads configuration mid-run.
type Deps struct {
	Vision     framework.Vision
	Estimate   framework.Estimate
	Gap        framework.Gap
	Strategist framework.Strategist
	Reviewer   *agents.ReviewAgent
	Reporter   *agents.ReportAgent
	Extractor  core.TextExtractor
}

// Orchestrator runs one job through the full pipeline.
type Orchestrator struct {
	deps Deps
	opts Options
	log  *logging.Logger
}

// New creates an orchestrator over pre-built collaborators.
func New(deps Deps, opts Options, log *logging.Logger) *Orchestrator {
	if opts.MaxReviewCycles < 1 {
		opts.MaxReviewCycles = 2
	}
	if opts.MaxRerunsPerAgent < 0 {
		opts.MaxRerunsPerAgent = 1
	}
	if opts.PhotoBatchSize < 1 {
		opts.PhotoBatchSize = 5
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = agents.DefaultRetryPolicy()
	}
	return &Orchestrator{deps: deps, opts: opts, log: log}
}

// Run executes the pipeline for one job. The result is always terminal:
// completed, escalated, or failed.
func (o *Orchestrator) Run(ctx context.Context, job *core.Job) *core.OrchestratorResult {
	start := time.Now()
	log := o.log.WithJob(job.ID)
	rc := newRunContext(job)

	result := &core.OrchestratorResult{JobID: job.ID}
	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panicked", "panic", r)
			result.Success = false
			result.Status = core.StatusFailed
			result.EscalationReason = fmt.Sprintf("internal error: %v", r)
		}
		result.ProcessingTime = time.Since(start).Seconds()
		result.LLMCalls = rc.llmCalls
		result.ReviewCycles = rc.reviewCycles
	}()

	if err := o.runPhases(ctx, rc, result, log); err != nil {
		log.Error("pipeline failed", "error", err)
		result.Success = false
		result.Status = core.StatusFailed
		result.EscalationReason = err.Error()
		result.Supplements = nil
		result.PartialResults = nil
	}
	return result
}

func (o *Orchestrator) runPhases(ctx context.Context, rc *runContext, result *core.OrchestratorResult, log *logging.Logger) error {
	if err := o.prepare(ctx, rc, log.WithPhase(core.PhasePrepare.String())); err != nil {
		return err
	}
	if err := o.extract(ctx, rc, log.WithPhase(core.PhaseExtract.String())); err != nil {
		return err
	}
	log.WithPhase(core.PhaseGapAnalysis.String()).Info("analyzing coverage gaps",
		"photos_analyzed", len(rc.evidence))
	if err := o.runGap(ctx, rc, nil); err != nil {
		return err
	}
	log.WithPhase(core.PhaseStrategize.String()).Info("building supplement strategy",
		"gaps_found", len(rc.gaps.ScopeGaps))
	if err := o.runStrategist(ctx, rc, nil); err != nil {
		return err
	}

	loop := &reviewLoop{
		reviewer:  o.deps.Reviewer,
		stages:    o,
		maxCycles: o.opts.MaxReviewCycles,
		maxReruns: o.opts.MaxRerunsPerAgent,
		log:       log.WithPhase(core.PhaseReview.String()),
	}
	outcome, err := loop.run(ctx, rc)
	if err != nil {
		return err
	}

	if outcome.escalate {
		log.Warn("job escalated for human review", "reason", outcome.review.OverallAssessment)
		result.Success = false
		result.Status = core.StatusEscalated
		result.EscalationReason = outcome.review.OverallAssessment
		result.HumanFlags = outcome.review.HumanFlags
		result.PartialResults = &core.PartialResults{Supplements: rc.strategy, Gaps: rc.gaps}
		return nil
	}

	result.Success = true
	result.Status = core.StatusCompleted
	result.Supplements = rc.strategy
	if !outcome.review.Approved || !outcome.review.ReadyForDelivery {
		result.HumanFlags = outcome.review.HumanFlags
	}

	if rc.job.GenerateReport {
		if err := o.report(ctx, rc, result, log.WithPhase(core.PhaseReport.String())); err != nil {
			return err
		}
	}
	return nil
}

// prepare extracts the estimate document text. Extraction failure is
// tolerated: the estimate stage degrades to its fallback on empty text.
func (o *Orchestrator) prepare(ctx context.Context, rc *runContext, log *logging.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(rc.job.EstimatePDF) > 0 && o.deps.Extractor != nil {
		text, err := o.deps.Extractor.ExtractText(rc.job.EstimatePDF)
		if err != nil {
			log.Warn("estimate text extraction failed", "error", err)
		} else {
			rc.estimateText = text
		}
	}
	log.Info("job prepared",
		"photos", len(rc.job.Photos),
		"estimate_chars", len(rc.estimateText),
		"target_margin", rc.targetMargin)
	return nil
}

// extract runs vision over all photos, batched, concurrently with estimate
// parsing. The estimate task is awaited only after all photo batches finish.
func (o *Orchestrator) extract(ctx context.Context, rc *runContext, log *logging.Logger) error {
	type estimateOutcome struct {
		result *core.EstimateInterpretation
		err    error
	}
	estimateDone := make(chan estimateOutcome, 1)
	go func() {
		result, err := o.deps.Estimate.Analyze(ctx, rc.estimateRequest(nil))
		estimateDone <- estimateOutcome{result, err}
	}()
	rc.llmCalls += frameworkCost(o.opts.EstimateFramework, 2)

	photos := rc.job.Photos
	visionCost := frameworkCost(o.opts.VisionFramework, o.opts.VisionModels)
	for offset := 0; offset < len(photos); offset += o.opts.PhotoBatchSize {
		end := offset + o.opts.PhotoBatchSize
		if end > len(photos) {
			end = len(photos)
		}
		batch := photos[offset:end]

		results := make([]*core.VisionEvidence, len(batch))
		var g errgroup.Group
		for i, photo := range batch {
			g.Go(func() error {
				evidence, err := agents.Retry(ctx, log, o.opts.Retry, "vision:"+photo.ID,
					func(ctx context.Context) (*core.VisionEvidence, error) {
						return o.deps.Vision.Analyze(ctx, rc.visionRequest(photo))
					})
				if err != nil {
					log.Error("photo dropped after exhausted retries", "photo_id", photo.ID, "error", err)
					return nil
				}
				results[i] = evidence
				return nil
			})
		}
		_ = g.Wait()

		for _, evidence := range results {
			if evidence != nil {
				rc.evidence = append(rc.evidence, *evidence)
			}
		}
		rc.llmCalls += visionCost * len(batch)
	}

	est := <-estimateDone
	if est.err != nil {
		return est.err
	}
	rc.estimate = est.result

	log.Info("extraction complete",
		"photos_analyzed", len(rc.evidence),
		"photos_dropped", len(photos)-len(rc.evidence),
		"line_items", len(rc.estimate.LineItems))
	return nil
}

// runGap executes the gap stage. Also used by the review loop for reruns,
// with reviewer overrides attached.
func (o *Orchestrator) runGap(ctx context.Context, rc *runContext, ov *agents.Overrides) error {
	gaps, err := o.deps.Gap.Analyze(ctx, rc.gapRequest(ov))
	if err != nil {
		return err
	}
	rc.gaps = gaps
	rc.llmCalls += frameworkCost(o.opts.GapFramework, 2)
	return nil
}

// runStrategist executes the strategy stage, also used for reruns.
func (o *Orchestrator) runStrategist(ctx context.Context, rc *runContext, ov *agents.Overrides) error {
	strategy, err := o.deps.Strategist.Analyze(ctx, rc.strategyRequest(ov))
	if err != nil {
		return err
	}
	rc.strategy = strategy
	rc.llmCalls += frameworkCost(o.opts.StrategistFramework, 2)
	return nil
}

// runEstimate re-executes the estimate stage during a review-loop rerun.
func (o *Orchestrator) runEstimate(ctx context.Context, rc *runContext, ov *agents.Overrides) error {
	estimate, err := o.deps.Estimate.Analyze(ctx, rc.estimateRequest(ov))
	if err != nil {
		return err
	}
	rc.estimate = estimate
	rc.llmCalls += frameworkCost(o.opts.EstimateFramework, 2)
	return nil
}

func (o *Orchestrator) report(ctx context.Context, rc *runContext, result *core.OrchestratorResult, log *logging.Logger) error {
	out, err := o.deps.Reporter.Run(ctx, rc.reportRequest())
	if err != nil {
		return err
	}
	rc.llmCalls++
	result.ReportHTML = out.HTML
	result.ReportPDF = out.PDF
	log.Info("report ready", "html_bytes", len(out.HTML), "pdf", len(out.PDF) > 0)
	return nil
}
