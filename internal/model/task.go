package model

import "time"

// TaskContext carries the identity and budget of one unit of stage work.
// Child tasks (e.g. per-field extraction calls) reference their parent.
type TaskContext struct {
	JobID        string        `json:"job_id"`
	TaskID       string        `json:"task_id"`
	ParentTaskID string        `json:"parent_task_id,omitempty"`
	Priority     int           `json:"priority"`
	MaxRetries   int           `json:"max_retries"`
	RetryCount   int           `json:"retry_count"`
	Timeout      time.Duration `json:"timeout"`
}

// Child derives a task context for a sub-task, inheriting budget settings.
func (tc TaskContext) Child(taskID string) TaskContext {
	return TaskContext{
		JobID:        tc.JobID,
		TaskID:       taskID,
		ParentTaskID: tc.TaskID,
		Priority:     tc.Priority,
		MaxRetries:   tc.MaxRetries,
		Timeout:      tc.Timeout,
	}
}

// ValidationResult scores a stage result. Produced by every stage's
// Validate step and consumed by the retry driver to decide accept vs retry.
type ValidationResult struct {
	IsValid     bool     `json:"is_valid"`
	Confidence  float64  `json:"confidence"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Valid is a convenience constructor for a passing validation.
func Valid(confidence float64, warnings ...string) ValidationResult {
	return ValidationResult{
		IsValid:    true,
		Confidence: Clamp01(confidence),
		Warnings:   warnings,
	}
}

// Invalid is a convenience constructor for a failing validation.
func Invalid(confidence float64, errs ...string) ValidationResult {
	return ValidationResult{
		IsValid:    false,
		Confidence: Clamp01(confidence),
		Errors:     errs,
	}
}
