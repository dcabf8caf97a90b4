// Package store persists jobs, their stage records, and prompt-config
// overrides. Two backends: SQLite for single-user CLI runs, Postgres for
// the shared serve mode.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/jglaspey/supplement-cli/internal/config"
	"github.com/jglaspey/supplement-cli/internal/model"
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status model.JobStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analysis pipeline.
// Writes are append-only per job: status transitions and the final result;
// nothing downstream assumes read-after-write consistency.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, input model.JobInput) (*model.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error
	UpdateJobResult(ctx context.Context, jobID string, status model.JobStatus, result *model.JobResult) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// Stages
	CreateStage(ctx context.Context, jobID string, name string) (*model.JobStage, error)
	CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error

	// Prompt overrides. GetPromptConfig satisfies prompts.OverrideSource:
	// a nil result means no override is stored for the step.
	GetPromptConfig(ctx context.Context, step string) (*model.PromptConfig, error)
	SetPromptConfig(ctx context.Context, cfg model.PromptConfig) error
	ListPromptConfigs(ctx context.Context) ([]model.PromptConfig, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
