package agent

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jglaspey/supplement-cli/internal/model"
)

// fakeStage is a scriptable Stage for driver tests.
type fakeStage struct {
	cfg       Config
	acts      int
	validates int
	actFn     func(attempt int) (Result[string], error)
	validFn   func(attempt int) model.ValidationResult
}

func (f *fakeStage) Config() Config { return f.cfg }

func (f *fakeStage) Plan(ctx context.Context, input string, tc model.TaskContext) (Plan, error) {
	return Plan{Subtasks: []Subtask{{Name: "work", Confidence: 0.9}}}, nil
}

func (f *fakeStage) Act(ctx context.Context, input string, tc model.TaskContext) (Result[string], error) {
	f.acts++
	return f.actFn(f.acts)
}

func (f *fakeStage) Validate(ctx context.Context, result Result[string], tc model.TaskContext) model.ValidationResult {
	f.validates++
	return f.validFn(f.validates)
}

func fastConfig() Config {
	return Config{
		Name:                "test_stage",
		MaxRetries:          2,
		ConfidenceThreshold: 0.7,
		BaseDelay:           time.Millisecond,
		MaxDelay:            4 * time.Millisecond,
		Timeout:             time.Second,
	}
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	st := &fakeStage{
		cfg: fastConfig(),
		actFn: func(int) (Result[string], error) {
			return Result[string]{Data: "ok"}, nil
		},
		validFn: func(int) model.ValidationResult {
			return model.Valid(0.9)
		},
	}

	res, err := Execute[string, string](context.Background(), st, "in", model.TaskContext{JobID: "j1", TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Data)
	assert.Equal(t, 1, st.acts)
}

func TestExecuteAlwaysInvalidPerformsExactlyThreeAttempts(t *testing.T) {
	t.Parallel()

	st := &fakeStage{
		cfg: fastConfig(), // MaxRetries: 2
		actFn: func(attempt int) (Result[string], error) {
			return Result[string]{Data: "partial"}, nil
		},
		validFn: func(int) model.ValidationResult {
			return model.Invalid(0.3, "incomplete extraction")
		},
	}

	res, err := Execute[string, string](context.Background(), st, "in", model.TaskContext{JobID: "j1", TaskID: "t1"})

	// Retries exhausted: last result is returned, never dropped.
	require.NoError(t, err)
	assert.Equal(t, 3, st.acts, "initial attempt + 2 retries")
	assert.Equal(t, "partial", res.Data)
	assert.False(t, res.Validation.IsValid)
}

func TestExecuteBelowThresholdRetriesThenReturnsLast(t *testing.T) {
	t.Parallel()

	st := &fakeStage{
		cfg: fastConfig(),
		actFn: func(attempt int) (Result[string], error) {
			return Result[string]{Data: "low"}, nil
		},
		validFn: func(int) model.ValidationResult {
			return model.Valid(0.5) // valid but under 0.7 threshold
		},
	}

	res, err := Execute[string, string](context.Background(), st, "in", model.TaskContext{JobID: "j1", TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, 3, st.acts)
	assert.True(t, res.Validation.IsValid)
	assert.InDelta(t, 0.5, res.Validation.Confidence, 1e-9)
}

func TestExecuteActErrorsExhaustedReturnsTerminalError(t *testing.T) {
	t.Parallel()

	st := &fakeStage{
		cfg: fastConfig(),
		actFn: func(int) (Result[string], error) {
			return Result[string]{}, eris.New("provider unavailable")
		},
		validFn: func(int) model.ValidationResult {
			return model.Valid(1)
		},
	}

	_, err := Execute[string, string](context.Background(), st, "in", model.TaskContext{JobID: "j1", TaskID: "t1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Contains(t, err.Error(), "provider unavailable")
	assert.Equal(t, 0, st.validates, "validate never runs on act error")
}

func TestExecuteRecoversAfterActError(t *testing.T) {
	t.Parallel()

	st := &fakeStage{
		cfg: fastConfig(),
		actFn: func(attempt int) (Result[string], error) {
			if attempt == 1 {
				return Result[string]{}, eris.New("transient")
			}
			return Result[string]{Data: "recovered"}, nil
		},
		validFn: func(int) model.ValidationResult {
			return model.Valid(0.95)
		},
	}

	res, err := Execute[string, string](context.Background(), st, "in", model.TaskContext{JobID: "j1", TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Data)
	assert.Equal(t, 2, st.acts)
}

func TestExecuteContextCancellationStopsRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	st := &fakeStage{
		cfg: fastConfig(),
		actFn: func(int) (Result[string], error) {
			cancel()
			return Result[string]{}, eris.New("boom")
		},
		validFn: func(int) model.ValidationResult {
			return model.Valid(1)
		},
	}

	_, err := Execute[string, string](ctx, st, "in", model.TaskContext{JobID: "j1", TaskID: "t1"})
	require.Error(t, err)
	assert.Equal(t, 1, st.acts)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	base := time.Second
	max := 10 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // capped
		{10, 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(tt.attempt, base, max), "attempt %d", tt.attempt)
	}
}
