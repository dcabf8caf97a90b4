package model

import "time"

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusPending       JobStatus = "pending"
	JobStatusInProgress    JobStatus = "in_progress"
	JobStatusCompleted     JobStatus = "completed"
	JobStatusFailedPartial JobStatus = "failed_partial"
	JobStatusFailed        JobStatus = "failed"
)

// JobInput names the documents supplied for one job. RoofDoc is optional;
// the pipeline degrades gracefully without it.
type JobInput struct {
	EstimateDoc string `json:"estimate_doc"`
	RoofDoc     string `json:"roof_doc,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
}

// Job is a single supplement-analysis run over one estimate document and an
// optional roof-measurement report.
type Job struct {
	ID        string     `json:"id"`
	Input     JobInput   `json:"input"`
	Status    JobStatus  `json:"status"`
	Result    *JobResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// JobResult holds the final outcome of a job.
type JobResult struct {
	Estimate        *EstimateRecord            `json:"estimate,omitempty"`
	Roof            *RoofMeasurementRecord     `json:"roof,omitempty"`
	Discrepancy     *DiscrepancyReport         `json:"discrepancy,omitempty"`
	Recommendations []SupplementRecommendation `json:"recommendations,omitempty"`
	Supervision     *SupervisorReport          `json:"supervision,omitempty"`
	Stages          []StageResult              `json:"stages"`
	Errors          []string                   `json:"errors,omitempty"`
	Warnings        []string                   `json:"warnings,omitempty"`
	Report          string                     `json:"report,omitempty"`
	TotalUsage      TokenUsage                 `json:"total_usage"`
}

// StageStatus represents the state of a pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult holds the outcome of one pipeline stage.
type StageResult struct {
	Name       string         `json:"name"`
	Status     StageStatus    `json:"status"`
	Duration   int64          `json:"duration_ms"`
	TokenUsage TokenUsage     `json:"token_usage"`
	Error      string         `json:"error,omitempty"`
	SkipReason string         `json:"skip_reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// JobStage is the persisted form of a stage within a job.
type JobStage struct {
	ID        string       `json:"id"`
	JobID     string       `json:"job_id"`
	Name      string       `json:"name"`
	Status    StageStatus  `json:"status"`
	Result    *StageResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// TokenUsage tracks LLM token consumption and estimated cost.
type TokenUsage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost_usd"`
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Cost += other.Cost
}

// IssueSeverity tags supervisor findings.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "CRITICAL"
	SeverityWarning  IssueSeverity = "WARNING"
)

// SupervisorIssue is one finding from the final quality gate.
type SupervisorIssue struct {
	Severity IssueSeverity `json:"severity"`
	Field    string        `json:"field,omitempty"`
	Message  string        `json:"message"`
}

// SupervisorReport is the terminal quality-gate output for a job.
type SupervisorReport struct {
	FinalStatus       JobStatus         `json:"final_status"`
	OverallConfidence float64           `json:"overall_confidence"`
	Highlights        []string          `json:"highlights,omitempty"`
	Issues            []SupervisorIssue `json:"issues,omitempty"`
	Suggestions       []string          `json:"suggestions,omitempty"`
	Narrative         string            `json:"narrative,omitempty"`
}
