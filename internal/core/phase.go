package core

// Phase represents a stage in the orchestration pipeline.
type Phase string

const (
	// PhasePrepare extracts the estimate text and seeds the run context.
	PhasePrepare Phase = "preparing"

	// PhaseExtract runs vision over all photos in parallel with the
	// estimate interpreter.
	PhaseExtract Phase = "extracting"

	// PhaseGapAnalysis compares photo evidence against estimate coverage.
	PhaseGapAnalysis Phase = "gap_analysis"

	// PhaseStrategize converts gaps into supplement proposals.
	PhaseStrategize Phase = "strategizing"

	// PhaseReview runs the bounded review/refinement loop.
	PhaseReview Phase = "reviewing"

	// PhaseReport generates the deliverable package.
	PhaseReport Phase = "reporting"
)

func (p Phase) String() string {
	return string(p)
}
