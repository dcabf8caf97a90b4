// Package supervisor is the final quality gate: a second, independent pass
// over the pipeline's output combining deterministic checks with an
// optional model-written narrative review.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jglaspey/supplement-cli/internal/agent"
	"github.com/jglaspey/supplement-cli/internal/config"
	"github.com/jglaspey/supplement-cli/internal/model"
	"github.com/jglaspey/supplement-cli/internal/prompts"
	"github.com/jglaspey/supplement-cli/pkg/anthropic"
)

// Confidence floors per field category. Fields below the floor raise a
// warning-level issue; missing mandatory fields raise critical ones.
const (
	identityConfidenceFloor = 0.5
	moneyConfidenceFloor    = 0.6
	consistencyFloor        = 0.4
)

// Input is everything the gate reviews: the proposed status from the
// orchestrator plus the accumulated result.
type Input struct {
	JobID          string
	ProposedStatus model.JobStatus
	Result         *model.JobResult
}

// Supervisor reviews a finished job. client may be nil, which skips the
// narrative pass and keeps the gate fully deterministic.
type Supervisor struct {
	cfg      agent.Config
	client   anthropic.Client
	resolver *prompts.Resolver
	models   config.AnthropicConfig
}

// New builds the supervision stage.
func New(cfg agent.Config, client anthropic.Client, resolver *prompts.Resolver, models config.AnthropicConfig) *Supervisor {
	if cfg.Name == "" {
		cfg.Name = "supervisor_review"
	}
	if len(cfg.Capabilities) == 0 {
		cfg.Capabilities = []string{"quality_gate", "narrative_review"}
	}
	return &Supervisor{cfg: cfg, client: client, resolver: resolver, models: models}
}

func (s *Supervisor) Config() agent.Config { return s.cfg }

func (s *Supervisor) Plan(ctx context.Context, in Input, tc model.TaskContext) (agent.Plan, error) {
	p := agent.Plan{Subtasks: []agent.Subtask{
		{Name: "deterministic_checks", EstimatedDuration: time.Millisecond, Confidence: 1},
	}}
	if s.client != nil {
		p.Subtasks = append(p.Subtasks, agent.Subtask{
			Name:              "narrative_review",
			EstimatedDuration: 15 * time.Second,
			Confidence:        0.8,
		})
	}
	return p, nil
}

func (s *Supervisor) Act(ctx context.Context, in Input, tc model.TaskContext) (agent.Result[*model.SupervisorReport], error) {
	start := time.Now()
	var usage model.TokenUsage

	report := Review(in)

	if s.client != nil && s.resolver != nil {
		narrative, u, err := s.narrative(ctx, in, report)
		usage.Add(u)
		if err != nil {
			// The gate stands on its deterministic checks alone.
			zap.L().Warn("supervisor: narrative review failed",
				zap.String("job", in.JobID), zap.Error(err))
		} else {
			report.Narrative = narrative
		}
	}

	return agent.Result[*model.SupervisorReport]{
		Data:           report,
		ProcessingTime: time.Since(start),
		Usage:          usage,
	}, nil
}

func (s *Supervisor) Validate(ctx context.Context, res agent.Result[*model.SupervisorReport], tc model.TaskContext) model.ValidationResult {
	r := res.Data
	if r == nil {
		return model.Invalid(0, "no supervisor report produced")
	}
	if r.FinalStatus == "" {
		return model.Invalid(0.5, "supervisor report missing final status")
	}
	return model.Valid(0.95)
}

// Review runs the deterministic gate: mandatory-field presence, per-field
// confidence floors, cross-record numeric sanity, and status derivation.
// Pure function; the narrative pass is layered on separately.
func Review(in Input) *model.SupervisorReport {
	report := &model.SupervisorReport{}
	res := in.Result
	if res == nil {
		report.FinalStatus = model.JobStatusFailed
		report.Issues = append(report.Issues, model.SupervisorIssue{
			Severity: model.SeverityCritical,
			Message:  "job produced no result to review",
		})
		return report
	}

	checkEstimate(res.Estimate, report)
	checkRoof(res.Roof, report)
	checkConsistency(res.Discrepancy, report)
	checkRecommendations(res.Recommendations, report)

	// An empty error list under a non-completed proposal is itself an
	// internal inconsistency worth surfacing.
	if in.ProposedStatus != model.JobStatusCompleted && len(res.Errors) == 0 {
		report.Issues = append(report.Issues, model.SupervisorIssue{
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("status %s proposed with an empty error list", in.ProposedStatus),
		})
	}

	report.FinalStatus = deriveStatus(in.ProposedStatus, report.Issues)
	report.OverallConfidence = overallConfidence(res, report.Issues)
	return report
}

func checkEstimate(est *model.EstimateRecord, report *model.SupervisorReport) {
	if !est.HasData() {
		report.Issues = append(report.Issues, model.SupervisorIssue{
			Severity: model.SeverityCritical,
			Message:  "no estimate data extracted",
		})
		return
	}

	if est.ClaimNumber.IsNull() {
		report.Issues = append(report.Issues, model.SupervisorIssue{
			Severity: model.SeverityWarning,
			Field:    "claim_number",
			Message:  "claim number could not be extracted",
		})
		report.Suggestions = append(report.Suggestions, "confirm the claim number against the carrier correspondence")
	} else if est.ClaimNumber.Confidence < identityConfidenceFloor {
		report.Issues = append(report.Issues, model.SupervisorIssue{
			Severity: model.SeverityWarning,
			Field:    "claim_number",
			Message:  fmt.Sprintf("claim number confidence %.2f below floor %.2f", est.ClaimNumber.Confidence, identityConfidenceFloor),
		})
	} else {
		report.Highlights = append(report.Highlights,
			fmt.Sprintf("claim %s identified at %.0f%% confidence", est.ClaimNumber.OrZero(), est.ClaimNumber.Confidence*100))
	}

	rcv, rcvOK := est.TotalReplacementCost.Get()
	acv, acvOK := est.TotalActualCashValue.Get()
	if rcvOK && est.TotalReplacementCost.Confidence < moneyConfidenceFloor {
		report.Issues = append(report.Issues, model.SupervisorIssue{
			Severity: model.SeverityWarning,
			Field:    "total_replacement_cost",
			Message:  fmt.Sprintf("replacement cost confidence %.2f below floor %.2f", est.TotalReplacementCost.Confidence, moneyConfidenceFloor),
		})
	}
	if rcvOK && acvOK && acv > rcv {
		report.Issues = append(report.Issues, model.SupervisorIssue{
			Severity: model.SeverityCritical,
			Field:    "total_actual_cash_value",
			Message:  fmt.Sprintf("actual cash value %.2f exceeds replacement cost %.2f", acv, rcv),
		})
	}

	if items, ok := est.LineItems.Get(); ok && len(items) > 0 {
		report.Highlights = append(report.Highlights, fmt.Sprintf("%d line items extracted", len(items)))
	} else {
		report.Issues = append(report.Issues, model.SupervisorIssue{
			Severity: model.SeverityWarning,
			Field:    "line_items",
			Message:  "no line items extracted; supplement analysis is scope-blind",
		})
	}
}

func checkRoof(roof *model.RoofMeasurementRecord, report *model.SupervisorReport) {
	if !roof.HasData() {
		return
	}
	if roof.TotalArea.IsNull() {
		report.Issues = append(report.Issues, model.SupervisorIssue{
			Severity: model.SeverityWarning,
			Field:    "total_area",
			Message:  "roof report processed but total area missing",
		})
		return
	}
	report.Highlights = append(report.Highlights,
		fmt.Sprintf("roof measured at %.1f squares", roof.TotalSquares()))
}

func checkConsistency(rep *model.DiscrepancyReport, report *model.SupervisorReport) {
	if rep == nil {
		return
	}
	if rep.OverallConsistency < consistencyFloor {
		report.Issues = append(report.Issues, model.SupervisorIssue{
			Severity: model.SeverityWarning,
			Field:    "consistency",
			Message:  fmt.Sprintf("cross-document consistency %.2f below floor %.2f", rep.OverallConsistency, consistencyFloor),
		})
		report.Suggestions = append(report.Suggestions, "re-verify the roof measurements against the estimate scope before submitting")
	}
	for _, p := range rep.Points {
		if p.Status == model.ComparisonMismatch {
			report.Suggestions = append(report.Suggestions,
				fmt.Sprintf("resolve the %s mismatch before submitting the supplement", p.Field))
		}
	}
}

func checkRecommendations(recs []model.SupplementRecommendation, report *model.SupervisorReport) {
	if len(recs) == 0 {
		return
	}
	report.Highlights = append(report.Highlights,
		fmt.Sprintf("%d supplement recommendations generated", len(recs)))
	for _, r := range recs {
		if r.Quantity.OrZero() <= 0 {
			report.Issues = append(report.Issues, model.SupervisorIssue{
				Severity: model.SeverityCritical,
				Field:    r.ID,
				Message:  fmt.Sprintf("recommendation %q carries a non-positive quantity", r.Description),
			})
		}
	}
}

// deriveStatus downgrades the orchestrator's proposal on critical findings.
// Warning-level issues never block completion.
func deriveStatus(proposed model.JobStatus, issues []model.SupervisorIssue) model.JobStatus {
	critical := false
	for _, i := range issues {
		if i.Severity == model.SeverityCritical {
			critical = true
			break
		}
	}

	switch proposed {
	case model.JobStatusFailed:
		return model.JobStatusFailed
	case model.JobStatusFailedPartial:
		return model.JobStatusFailedPartial
	default:
		if critical {
			return model.JobStatusFailedPartial
		}
		return model.JobStatusCompleted
	}
}

// overallConfidence blends upstream stage confidence with the gate's own
// findings: start from the extraction aggregates, average in consistency,
// and shave per issue.
func overallConfidence(res *model.JobResult, issues []model.SupervisorIssue) float64 {
	var parts []float64
	if res.Estimate.HasData() {
		parts = append(parts, res.Estimate.AggregateConfidence())
	}
	if res.Roof.HasData() {
		parts = append(parts, res.Roof.AggregateConfidence())
	}
	if res.Discrepancy != nil {
		parts = append(parts, res.Discrepancy.OverallConsistency)
	}
	if len(parts) == 0 {
		return 0
	}

	var sum float64
	for _, p := range parts {
		sum += p
	}
	conf := sum / float64(len(parts))

	for _, i := range issues {
		if i.Severity == model.SeverityCritical {
			conf -= 0.15
		} else {
			conf -= 0.05
		}
	}
	return model.Clamp01(conf)
}

// narrative asks the review model for a short human-readable assessment of
// the gate's findings.
func (s *Supervisor) narrative(ctx context.Context, in Input, report *model.SupervisorReport) (string, model.TokenUsage, error) {
	var usage model.TokenUsage

	cfg, err := s.resolver.Get(ctx, "supervisor.review")
	if err != nil {
		return "", usage, err
	}

	summary, err := json.MarshalIndent(struct {
		Status     model.JobStatus         `json:"proposed_status"`
		Issues     []model.SupervisorIssue `json:"issues"`
		Highlights []string                `json:"highlights"`
		Warnings   []string                `json:"warnings"`
		Errors     []string                `json:"errors"`
	}{in.ProposedStatus, report.Issues, report.Highlights, in.Result.Warnings, in.Result.Errors}, "", "  ")
	if err != nil {
		return "", usage, err
	}

	modelID := s.models.SonnetModel
	if cfg.Model != "" && cfg.Model != "sonnet" && cfg.Model != "haiku" {
		modelID = cfg.Model
	} else if cfg.Model == "haiku" {
		modelID = s.models.HaikuModel
	}

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       modelID,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Messages: []anthropic.Message{
			anthropic.Text("user", fmt.Sprintf(cfg.Prompt, string(summary))),
		},
	})
	if err != nil {
		return "", usage, err
	}

	usage = model.TokenUsage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Cost:         resp.Usage.EstimateCost(modelID),
	}
	return resp.FirstText(), usage, nil
}
