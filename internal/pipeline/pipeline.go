// Package pipeline orchestrates the supplement-analysis stages: dual
// document extraction, discrepancy analysis, rule-based recommendations,
// and the supervisor quality gate. Stage failures are recorded, not
// propagated; the job finishes with whatever data survived.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jglaspey/supplement-cli/internal/agent"
	"github.com/jglaspey/supplement-cli/internal/config"
	"github.com/jglaspey/supplement-cli/internal/discrepancy"
	"github.com/jglaspey/supplement-cli/internal/extract"
	"github.com/jglaspey/supplement-cli/internal/model"
	"github.com/jglaspey/supplement-cli/internal/ocr"
	"github.com/jglaspey/supplement-cli/internal/prompts"
	"github.com/jglaspey/supplement-cli/internal/resilience"
	"github.com/jglaspey/supplement-cli/internal/rules"
	"github.com/jglaspey/supplement-cli/internal/store"
	"github.com/jglaspey/supplement-cli/internal/supervisor"
	"github.com/jglaspey/supplement-cli/pkg/anthropic"
)

// Stage names as persisted in job_stages and surfaced in reports.
const (
	StageEstimate    = "estimate_extraction"
	StageRoof        = "roof_extraction"
	StageDiscrepancy = "discrepancy_analysis"
	StageRules       = "recommendation_generation"
	StageSupervisor  = "supervisor_review"
	StageReport      = "report"
)

// Pipeline runs one analysis job end to end.
type Pipeline struct {
	cfg   *config.Config
	store store.Store

	estimate  agent.Stage[extract.DocumentInput, *model.EstimateRecord]
	roof      agent.Stage[extract.DocumentInput, *model.RoofMeasurementRecord]
	compare   agent.Stage[discrepancy.Input, *model.DiscrepancyReport]
	recommend agent.Stage[rules.Context, []model.SupplementRecommendation]
	supervise agent.Stage[supervisor.Input, *model.SupervisorReport]
}

// New wires a Pipeline from its external collaborators. The store doubles
// as the prompt-override source; pass a nil client to run the supervisor
// gate without the narrative pass.
func New(
	cfg *config.Config,
	st store.Store,
	client anthropic.Client,
	text ocr.TextExtractor,
	images ocr.ImageConverter,
) *Pipeline {
	resolver := prompts.NewResolver(st)
	stageCfg := agent.Config{
		Timeout:             cfg.Pipeline.StageTimeout,
		MaxRetries:          cfg.Pipeline.MaxRetries,
		ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
	}

	return &Pipeline{
		cfg:       cfg,
		store:     st,
		estimate:  extract.NewEstimateAgent(stageCfg, client, resolver, cfg.Anthropic, text, images, cfg.Vision),
		roof:      extract.NewRoofAgent(stageCfg, client, resolver, cfg.Anthropic, text, images, cfg.Vision),
		compare:   discrepancy.NewEngine(stageCfg),
		recommend: rules.NewEngine(stageCfg),
		supervise: supervisor.New(stageCfg, client, resolver, cfg.Anthropic),
	}
}

// Run creates a job record for the input and executes the full pipeline.
// The returned job always carries a result, even on failure; the error
// return is reserved for failures before the job record exists.
func (p *Pipeline) Run(ctx context.Context, input model.JobInput) (*model.Job, error) {
	if _, err := extract.ParseStrategy(input.Strategy); err != nil {
		return nil, eris.Wrap(err, "pipeline: input")
	}

	job, err := p.store.CreateJob(ctx, input)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create job")
	}

	return job, p.RunJob(ctx, job)
}

// RunJob executes the pipeline for an already-created job record, mutating
// job in place. Used by the intake server, which persists the record before
// responding.
func (p *Pipeline) RunJob(ctx context.Context, job *model.Job) error {
	input := job.Input
	strategy, err := extract.ParseStrategy(input.Strategy)
	if err != nil {
		return eris.Wrap(err, "pipeline: input")
	}

	log := zap.L().With(zap.String("job_id", job.ID), zap.String("estimate_doc", input.EstimateDoc))
	log.Info("pipeline: starting analysis", zap.String("roof_doc", input.RoofDoc))

	result := &model.JobResult{}
	job.Result = result

	setStatus := func(status model.JobStatus) {
		job.Status = status
		if statusErr := p.store.UpdateJobStatus(ctx, job.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}
	setStatus(model.JobStatusInProgress)

	tc := model.TaskContext{
		JobID:      job.ID,
		TaskID:     uuid.New().String(),
		MaxRetries: p.cfg.Pipeline.MaxRetries,
		Timeout:    p.cfg.Pipeline.StageTimeout,
	}

	// Stage tracking. fatal flips when a failed stage carries a kind that
	// counts toward FAILED_PARTIAL; warnings never do.
	var mu sync.Mutex
	var totalUsage model.TokenUsage
	fatal := false

	trackStage := func(name string, fn func() (*model.StageResult, error)) *model.StageResult {
		rec, recErr := p.store.CreateStage(ctx, job.ID, name)
		if recErr != nil {
			log.Warn("pipeline: failed to create stage", zap.String("stage", name), zap.Error(recErr))
		}

		start := time.Now()
		sr, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		if sr == nil {
			sr = &model.StageResult{}
		}
		sr.Name = name
		sr.Duration = duration

		mu.Lock()
		defer mu.Unlock()

		if fnErr != nil {
			kind := resilience.KindOf(fnErr)
			sr.Status = model.StageStatusFailed
			sr.Error = fnErr.Error()
			result.Errors = append(result.Errors, fmt.Sprintf("%s [%s]: %s", name, kind, fnErr))
			if resilience.IsFatalKind(kind) {
				fatal = true
			}
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.String("kind", string(kind)),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else if sr.Status == "" {
			sr.Status = model.StageStatusComplete
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
			)
		}

		totalUsage.Add(sr.TokenUsage)
		result.Stages = append(result.Stages, *sr)
		if rec != nil {
			_ = p.store.CompleteStage(ctx, rec.ID, sr)
		}
		return sr
	}

	docInput := func(path string) extract.DocumentInput {
		return extract.DocumentInput{
			Path:           path,
			Strategy:       strategy,
			TextQualityMin: p.cfg.Pipeline.TextQualityMin,
		}
	}

	// Extraction: both documents in parallel. Errors stay per-stage; the
	// group exists for fan-out, not for short-circuiting.
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		trackStage(StageEstimate, func() (*model.StageResult, error) {
			res, runErr := agent.Execute(gCtx, p.estimate, docInput(input.EstimateDoc), tc.Child(uuid.New().String()))
			if runErr != nil {
				return &model.StageResult{TokenUsage: res.Usage}, runErr
			}
			mu.Lock()
			result.Estimate = res.Data
			mu.Unlock()
			return &model.StageResult{
				TokenUsage: res.Usage,
				Metadata: map[string]any{
					"model":      res.ModelUsed,
					"confidence": res.Validation.Confidence,
				},
			}, nil
		})
		return nil
	})

	g.Go(func() error {
		if input.RoofDoc == "" {
			trackStage(StageRoof, func() (*model.StageResult, error) {
				return &model.StageResult{
					Status:     model.StageStatusSkipped,
					SkipReason: "no roof report supplied",
				}, nil
			})
			return nil
		}
		trackStage(StageRoof, func() (*model.StageResult, error) {
			res, runErr := agent.Execute(gCtx, p.roof, docInput(input.RoofDoc), tc.Child(uuid.New().String()))
			if runErr != nil {
				return &model.StageResult{TokenUsage: res.Usage}, runErr
			}
			mu.Lock()
			result.Roof = res.Data
			mu.Unlock()
			return &model.StageResult{
				TokenUsage: res.Usage,
				Metadata: map[string]any{
					"model":      res.ModelUsed,
					"confidence": res.Validation.Confidence,
				},
			}, nil
		})
		return nil
	})

	_ = g.Wait()

	hasEstimate := result.Estimate.HasData()

	// Downstream analysis requires estimate data. A missing roof is fine:
	// the discrepancy engine degrades and the rule table goes quiet.
	if hasEstimate {
		trackStage(StageDiscrepancy, func() (*model.StageResult, error) {
			res, runErr := agent.Execute(ctx, p.compare, discrepancy.Input{
				JobID:    job.ID,
				Estimate: result.Estimate,
				Roof:     result.Roof,
			}, tc.Child(uuid.New().String()))
			if runErr != nil {
				return nil, runErr
			}
			result.Discrepancy = res.Data
			result.Warnings = append(result.Warnings, res.Data.Warnings...)
			return &model.StageResult{
				Metadata: map[string]any{
					"points":      len(res.Data.Points),
					"consistency": res.Data.OverallConsistency,
				},
			}, nil
		})

		trackStage(StageRules, func() (*model.StageResult, error) {
			res, runErr := agent.Execute(ctx, p.recommend, rules.Context{
				Estimate: result.Estimate,
				Roof:     result.Roof,
				Report:   result.Discrepancy,
			}, tc.Child(uuid.New().String()))
			if runErr != nil {
				return nil, runErr
			}
			result.Recommendations = res.Data
			return &model.StageResult{
				Metadata: map[string]any{"recommendations": len(res.Data)},
			}, nil
		})
	} else {
		reason := "estimate extraction produced no data"
		for _, name := range []string{StageDiscrepancy, StageRules} {
			trackStage(name, func() (*model.StageResult, error) {
				return &model.StageResult{
					Status:     model.StageStatusSkipped,
					SkipReason: reason,
				}, nil
			})
		}
	}

	// Propose a status for the supervisor to review. No estimate data is
	// terminal; fatal stage errors with surviving data degrade to partial.
	proposed := model.JobStatusCompleted
	switch {
	case !hasEstimate:
		proposed = model.JobStatusFailed
	case fatal:
		proposed = model.JobStatusFailedPartial
	}

	trackStage(StageSupervisor, func() (*model.StageResult, error) {
		res, runErr := agent.Execute(ctx, p.supervise, supervisor.Input{
			JobID:          job.ID,
			ProposedStatus: proposed,
			Result:         result,
		}, tc.Child(uuid.New().String()))
		if runErr != nil {
			return &model.StageResult{TokenUsage: res.Usage}, runErr
		}
		result.Supervision = res.Data
		return &model.StageResult{
			TokenUsage: res.Usage,
			Metadata: map[string]any{
				"final_status":       string(res.Data.FinalStatus),
				"overall_confidence": res.Data.OverallConfidence,
			},
		}, nil
	})

	final := proposed
	if result.Supervision != nil {
		final = result.Supervision.FinalStatus
		result.Warnings = append(result.Warnings, result.Supervision.Suggestions...)
	}

	trackStage(StageReport, func() (*model.StageResult, error) {
		result.Report = FormatReport(job.ID, input, result, totalUsage)
		return &model.StageResult{}, nil
	})

	result.TotalUsage = totalUsage
	job.Status = final

	if saveErr := p.store.UpdateJobResult(ctx, job.ID, final, result); saveErr != nil {
		log.Warn("pipeline: failed to save job result", zap.Error(saveErr))
	}

	log.Info("pipeline: analysis finished",
		zap.String("status", string(final)),
		zap.Int("recommendations", len(result.Recommendations)),
		zap.Int("errors", len(result.Errors)),
		zap.Int64("input_tokens", totalUsage.InputTokens),
		zap.Int64("output_tokens", totalUsage.OutputTokens),
	)

	return nil
}
