package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jglaspey/supplement-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_JobLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, model.JobInput{
		EstimateDoc: "estimate.pdf",
		RoofDoc:     "roof.pdf",
		Strategy:    "FALLBACK",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)

	require.NoError(t, st.UpdateJobStatus(ctx, job.ID, model.JobStatusInProgress))

	result := &model.JobResult{
		Estimate: &model.EstimateRecord{
			ClaimNumber: model.NewField("CLM-4821", 0.9, model.SourceText, "header"),
		},
		Warnings: []string{"low confidence on deductible"},
	}
	require.NoError(t, st.UpdateJobResult(ctx, job.ID, model.JobStatusCompleted, result))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, "estimate.pdf", got.Input.EstimateDoc)
	require.NotNil(t, got.Result)
	assert.Equal(t, "CLM-4821", got.Result.Estimate.ClaimNumber.OrZero())
	assert.Len(t, got.Result.Warnings, 1)
}

func TestSQLite_JobNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetJob(ctx, "missing-id")
	require.Error(t, err)

	err = st.UpdateJobStatus(ctx, "missing-id", model.JobStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListJobsFiltersByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateJob(ctx, model.JobInput{EstimateDoc: "a.pdf"})
	require.NoError(t, err)
	_, err = st.CreateJob(ctx, model.JobInput{EstimateDoc: "b.pdf"})
	require.NoError(t, err)

	require.NoError(t, st.UpdateJobStatus(ctx, a.ID, model.JobStatusCompleted))

	completed, err := st.ListJobs(ctx, JobFilter{Status: model.JobStatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, a.ID, completed[0].ID)

	all, err := st.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	limited, err := st.ListJobs(ctx, JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_StageLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, model.JobInput{EstimateDoc: "a.pdf"})
	require.NoError(t, err)

	stage, err := st.CreateStage(ctx, job.ID, "estimate_extraction")
	require.NoError(t, err)
	assert.Equal(t, model.StageStatusRunning, stage.Status)

	err = st.CompleteStage(ctx, stage.ID, &model.StageResult{
		Name:     "estimate_extraction",
		Status:   model.StageStatusComplete,
		Duration: 1200,
	})
	require.NoError(t, err)

	err = st.CompleteStage(ctx, "missing-stage", &model.StageResult{Status: model.StageStatusFailed})
	require.Error(t, err)
}

func TestSQLite_PromptConfigs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// No override yet: nil, nil per the OverrideSource contract.
	cfg, err := st.GetPromptConfig(ctx, "estimate.claim_number")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	temp := 0.2
	require.NoError(t, st.SetPromptConfig(ctx, model.PromptConfig{
		Step:        "estimate.claim_number",
		Prompt:      "Find the claim number in: %s",
		Model:       "sonnet",
		Temperature: &temp,
		MaxTokens:   256,
	}))

	cfg, err = st.GetPromptConfig(ctx, "estimate.claim_number")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "sonnet", cfg.Model)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-9)

	// Upsert replaces in place.
	require.NoError(t, st.SetPromptConfig(ctx, model.PromptConfig{
		Step:   "estimate.claim_number",
		Prompt: "updated prompt %s",
	}))
	cfg, err = st.GetPromptConfig(ctx, "estimate.claim_number")
	require.NoError(t, err)
	assert.Equal(t, "updated prompt %s", cfg.Prompt)

	list, err := st.ListPromptConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	err = st.SetPromptConfig(ctx, model.PromptConfig{Prompt: "no step"})
	require.Error(t, err)
}
