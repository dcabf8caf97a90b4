// Package agent defines the plan/act/validate contract every pipeline stage
// implements, and the retry driver that executes stages uniformly.
package agent

import (
	"context"
	"time"

	"github.com/jglaspey/supplement-cli/internal/model"
)

// Default retry-driver tuning. Backoff doubles per attempt from BaseDelay
// up to MaxDelay.
const (
	DefaultTimeout             = 2 * time.Minute
	DefaultMaxRetries          = 2
	DefaultConfidenceThreshold = 0.7
	DefaultBaseDelay           = 1 * time.Second
	DefaultMaxDelay            = 10 * time.Second
)

// Config declares a stage's identity and execution budget.
type Config struct {
	Name                string        `json:"name"`
	Capabilities        []string      `json:"capabilities,omitempty"`
	Timeout             time.Duration `json:"timeout"`
	MaxRetries          int           `json:"max_retries"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	BaseDelay           time.Duration `json:"base_delay"`
	MaxDelay            time.Duration `json:"max_delay"`
}

// withDefaults fills zero-valued budget settings.
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// Subtask is one planned unit of work. Plans are logged for observability;
// they do not drive scheduling.
type Subtask struct {
	Name              string        `json:"name"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	Confidence        float64       `json:"confidence"`
}

// Plan describes how a stage intends to process its input.
type Plan struct {
	Subtasks []Subtask `json:"subtasks"`
}

// Result is the outcome of one stage attempt.
type Result[O any] struct {
	Data           O                      `json:"data"`
	Validation     model.ValidationResult `json:"validation"`
	ProcessingTime time.Duration          `json:"processing_time"`
	ModelUsed      string                 `json:"model_used,omitempty"`
	Usage          model.TokenUsage       `json:"usage"`
}

// Stage is the uniform contract for every pipeline stage. Act performs the
// real work; Validate independently scores the result so the driver can
// gate on confidence.
type Stage[I, O any] interface {
	Config() Config
	Plan(ctx context.Context, input I, tc model.TaskContext) (Plan, error)
	Act(ctx context.Context, input I, tc model.TaskContext) (Result[O], error)
	Validate(ctx context.Context, result Result[O], tc model.TaskContext) model.ValidationResult
}
