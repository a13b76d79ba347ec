package core

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusEscalated  JobStatus = "escalated"
	StatusFailed     JobStatus = "failed"
)

// PartialResults is the snapshot attached to escalated outcomes.
type PartialResults struct {
	Supplements *SupplementStrategy `json:"supplements,omitempty"`
	Gaps        *GapAnalysis        `json:"gaps,omitempty"`
}

// OrchestratorResult is the single terminal value of an orchestration run.
// Callers never receive a raw error from Run; failures surface here as
// StatusFailed with EscalationReason set.
type OrchestratorResult struct {
	Success          bool                `json:"success"`
	JobID            string              `json:"job_id"`
	Status           JobStatus           `json:"status"`
	ReportHTML       string              `json:"report_html,omitempty"`
	ReportPDF        []byte              `json:"-"`
	Supplements      *SupplementStrategy `json:"supplements,omitempty"`
	EscalationReason string              `json:"escalation_reason,omitempty"`
	HumanFlags       []HumanFlag         `json:"human_flags,omitempty"`
	PartialResults   *PartialResults     `json:"partial_results,omitempty"`
	ProcessingTime   float64             `json:"processing_time_seconds"`
	LLMCalls         int                 `json:"llm_calls"`
	ReviewCycles     int                 `json:"review_cycles"`
}
