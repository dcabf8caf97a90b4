package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jglaspey/supplement-cli/internal/agent"
	"github.com/jglaspey/supplement-cli/internal/config"
	"github.com/jglaspey/supplement-cli/internal/discrepancy"
	"github.com/jglaspey/supplement-cli/internal/extract"
	"github.com/jglaspey/supplement-cli/internal/model"
	"github.com/jglaspey/supplement-cli/internal/resilience"
	"github.com/jglaspey/supplement-cli/internal/rules"
	"github.com/jglaspey/supplement-cli/internal/store"
	"github.com/jglaspey/supplement-cli/internal/supervisor"
)

// memStore is an in-memory store.Store for orchestrator tests.
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	stages  []model.JobStage
	prompts map[string]model.PromptConfig
}

func newMemStore() *memStore {
	return &memStore{
		jobs:    make(map[string]*model.Job),
		prompts: make(map[string]model.PromptConfig),
	}
}

func (m *memStore) CreateJob(_ context.Context, input model.JobInput) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := &model.Job{ID: uuid.New().String(), Input: input, Status: model.JobStatusPending}
	m.jobs[j.ID] = j
	return &model.Job{ID: j.ID, Input: input, Status: j.Status}, nil
}

func (m *memStore) UpdateJobStatus(_ context.Context, jobID string, status model.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return eris.Errorf("job not found: %s", jobID)
	}
	j.Status = status
	return nil
}

func (m *memStore) UpdateJobResult(_ context.Context, jobID string, status model.JobStatus, result *model.JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return eris.Errorf("job not found: %s", jobID)
	}
	j.Status = status
	j.Result = result
	return nil
}

func (m *memStore) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	return j, nil
}

func (m *memStore) ListJobs(_ context.Context, _ store.JobFilter) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Job
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (m *memStore) CreateStage(_ context.Context, jobID, name string) (*model.JobStage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.JobStage{ID: uuid.New().String(), JobID: jobID, Name: name, Status: model.StageStatusRunning}
	m.stages = append(m.stages, s)
	return &s, nil
}

func (m *memStore) CompleteStage(_ context.Context, stageID string, result *model.StageResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.stages {
		if m.stages[i].ID == stageID {
			m.stages[i].Status = result.Status
			m.stages[i].Result = result
			return nil
		}
	}
	return eris.Errorf("stage not found: %s", stageID)
}

func (m *memStore) GetPromptConfig(_ context.Context, step string) (*model.PromptConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.prompts[step]; ok {
		return &cfg, nil
	}
	return nil, nil
}

func (m *memStore) SetPromptConfig(_ context.Context, cfg model.PromptConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[cfg.Step] = cfg
	return nil
}

func (m *memStore) ListPromptConfigs(_ context.Context) ([]model.PromptConfig, error) {
	return nil, nil
}

func (m *memStore) Migrate(_ context.Context) error { return nil }
func (m *memStore) Close() error                    { return nil }

// fakeStage returns a canned result or error without touching any
// collaborator. MaxRetries 0 keeps Execute to one attempt.
type fakeStage[I, O any] struct {
	name  string
	out   O
	err   error
	usage model.TokenUsage
}

func (f *fakeStage[I, O]) Config() agent.Config {
	return agent.Config{Name: f.name}
}

func (f *fakeStage[I, O]) Plan(context.Context, I, model.TaskContext) (agent.Plan, error) {
	return agent.Plan{}, nil
}

func (f *fakeStage[I, O]) Act(context.Context, I, model.TaskContext) (agent.Result[O], error) {
	if f.err != nil {
		return agent.Result[O]{}, f.err
	}
	return agent.Result[O]{Data: f.out, Usage: f.usage}, nil
}

func (f *fakeStage[I, O]) Validate(context.Context, agent.Result[O], model.TaskContext) model.ValidationResult {
	return model.Valid(0.9)
}

func goodEstimate() *model.EstimateRecord {
	return &model.EstimateRecord{
		ClaimNumber:          model.NewField("CLM-4821", 0.92, model.SourceText, "document header"),
		Carrier:              model.NewField("State Farm", 0.9, model.SourceText, "letterhead"),
		TotalReplacementCost: model.NewField(18250.40, 0.88, model.SourceText, "summary table"),
		TotalActualCashValue: model.NewField(15000.00, 0.85, model.SourceText, "summary table"),
		LineItems: model.NewField([]model.LineItem{
			{Description: "Laminated comp shingle - remove & replace", Quantity: 32.5, Unit: "SQ"},
			{Description: "Ridge cap - composition shingles", Quantity: 48, Unit: "LF"},
		}, 0.85, model.SourceText, "scope table"),
	}
}

func goodRoof() *model.RoofMeasurementRecord {
	return &model.RoofMeasurementRecord{
		TotalArea:    model.NewField(3250.0, 0.95, model.SourceVision, "measurement table"),
		EaveLength:   model.NewField(150.0, 0.92, model.SourceVision, "measurement table"),
		RakeLength:   model.NewField(110.0, 0.9, model.SourceVision, "measurement table"),
		ValleyLength: model.NewField(40.0, 0.88, model.SourceVision, "measurement table"),
		Pitch:        model.NewField("6/12", 0.9, model.SourceVision, "pitch diagram"),
	}
}

func newTestPipeline(
	st store.Store,
	est agent.Stage[extract.DocumentInput, *model.EstimateRecord],
	roof agent.Stage[extract.DocumentInput, *model.RoofMeasurementRecord],
) *Pipeline {
	return &Pipeline{
		cfg:       &config.Config{},
		store:     st,
		estimate:  est,
		roof:      roof,
		compare:   discrepancy.NewEngine(agent.Config{}),
		recommend: rules.NewEngine(agent.Config{}),
		supervise: supervisor.New(agent.Config{}, nil, nil, config.AnthropicConfig{}),
	}
}

func stageByName(t *testing.T, result *model.JobResult, name string) model.StageResult {
	t.Helper()
	for _, s := range result.Stages {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("stage %s not recorded", name)
	return model.StageResult{}
}

func TestRun_CompletesWithoutRoofDocument(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	p := newTestPipeline(st,
		&fakeStage[extract.DocumentInput, *model.EstimateRecord]{name: StageEstimate, out: goodEstimate()},
		&fakeStage[extract.DocumentInput, *model.RoofMeasurementRecord]{name: StageRoof},
	)

	job, err := p.Run(context.Background(), model.JobInput{EstimateDoc: "estimate.pdf"})
	require.NoError(t, err)
	require.NotNil(t, job.Result)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Empty(t, job.Result.Errors)

	roofStage := stageByName(t, job.Result, StageRoof)
	assert.Equal(t, model.StageStatusSkipped, roofStage.Status)
	assert.Equal(t, "no roof report supplied", roofStage.SkipReason)

	// Discrepancy degrades instead of failing.
	require.NotNil(t, job.Result.Discrepancy)
	assert.Empty(t, job.Result.Discrepancy.Points)
	require.NotEmpty(t, job.Result.Discrepancy.Warnings)
	assert.Contains(t, job.Result.Discrepancy.Warnings[0], "roof report not supplied")

	// Persisted status matches the in-memory one.
	persisted, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, persisted.Status)
	require.NotNil(t, persisted.Result)
	assert.NotEmpty(t, persisted.Result.Report)
}

func TestRun_EstimateFailureIsTerminal(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	p := newTestPipeline(st,
		&fakeStage[extract.DocumentInput, *model.EstimateRecord]{
			name: StageEstimate,
			err:  resilience.WithKind(eris.New("pdf unreadable"), resilience.KindExtraction),
		},
		&fakeStage[extract.DocumentInput, *model.RoofMeasurementRecord]{name: StageRoof, out: goodRoof()},
	)

	job, err := p.Run(context.Background(), model.JobInput{EstimateDoc: "estimate.pdf", RoofDoc: "roof.pdf"})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotEmpty(t, job.Result.Errors)
	assert.Contains(t, job.Result.Errors[0], StageEstimate)
	assert.Contains(t, job.Result.Errors[0], "extraction")

	for _, name := range []string{StageDiscrepancy, StageRules} {
		s := stageByName(t, job.Result, name)
		assert.Equal(t, model.StageStatusSkipped, s.Status)
		assert.Equal(t, "estimate extraction produced no data", s.SkipReason)
	}
}

func TestRun_RoofFailureDegradesToPartial(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	p := newTestPipeline(st,
		&fakeStage[extract.DocumentInput, *model.EstimateRecord]{name: StageEstimate, out: goodEstimate()},
		&fakeStage[extract.DocumentInput, *model.RoofMeasurementRecord]{
			name: StageRoof,
			err:  resilience.WithKind(eris.New("pdftoppm exited 1"), resilience.KindExtraction),
		},
	)

	job, err := p.Run(context.Background(), model.JobInput{EstimateDoc: "estimate.pdf", RoofDoc: "roof.pdf"})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusFailedPartial, job.Status)
	require.Len(t, job.Result.Errors, 1)
	assert.Contains(t, job.Result.Errors[0], StageRoof)

	// Analysis still ran on the surviving estimate data.
	require.NotNil(t, job.Result.Discrepancy)
	s := stageByName(t, job.Result, StageRules)
	assert.Equal(t, model.StageStatusComplete, s.Status)
}

func TestRun_FullAnalysisProducesRecommendations(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	p := newTestPipeline(st,
		&fakeStage[extract.DocumentInput, *model.EstimateRecord]{
			name:  StageEstimate,
			out:   goodEstimate(),
			usage: model.TokenUsage{InputTokens: 1000, OutputTokens: 200},
		},
		&fakeStage[extract.DocumentInput, *model.RoofMeasurementRecord]{
			name:  StageRoof,
			out:   goodRoof(),
			usage: model.TokenUsage{InputTokens: 500, OutputTokens: 100},
		},
	)

	job, err := p.Run(context.Background(), model.JobInput{EstimateDoc: "estimate.pdf", RoofDoc: "roof.pdf"})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result.Discrepancy)
	assert.NotEmpty(t, job.Result.Discrepancy.Points)

	// The fixture estimate misses starter strip and drip edge against the
	// fixture roof; the rule table should notice.
	require.NotEmpty(t, job.Result.Recommendations)
	ids := make([]string, 0, len(job.Result.Recommendations))
	for _, r := range job.Result.Recommendations {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, "starter-strip")
	assert.Contains(t, ids, "drip-edge")

	assert.Equal(t, int64(1500), job.Result.TotalUsage.InputTokens)
	assert.Equal(t, int64(300), job.Result.TotalUsage.OutputTokens)

	require.NotNil(t, job.Result.Supervision)
	assert.Equal(t, model.JobStatusCompleted, job.Result.Supervision.FinalStatus)
	assert.Contains(t, job.Result.Report, "## Recommended Supplement Items")
}

func TestRun_RejectsUnknownStrategy(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	p := newTestPipeline(st,
		&fakeStage[extract.DocumentInput, *model.EstimateRecord]{name: StageEstimate, out: goodEstimate()},
		&fakeStage[extract.DocumentInput, *model.RoofMeasurementRecord]{name: StageRoof},
	)

	_, err := p.Run(context.Background(), model.JobInput{EstimateDoc: "estimate.pdf", Strategy: "GUESS"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
	assert.Empty(t, st.jobs)
}

func TestRun_PersistsStageRecords(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	p := newTestPipeline(st,
		&fakeStage[extract.DocumentInput, *model.EstimateRecord]{name: StageEstimate, out: goodEstimate()},
		&fakeStage[extract.DocumentInput, *model.RoofMeasurementRecord]{name: StageRoof, out: goodRoof()},
	)

	job, err := p.Run(context.Background(), model.JobInput{EstimateDoc: "estimate.pdf", RoofDoc: "roof.pdf"})
	require.NoError(t, err)

	names := make([]string, 0, len(st.stages))
	for _, s := range st.stages {
		names = append(names, s.Name)
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{StageEstimate, StageRoof, StageDiscrepancy, StageRules, StageSupervisor, StageReport} {
		assert.Contains(t, joined, want)
	}
	assert.Len(t, job.Result.Stages, len(st.stages))
}
