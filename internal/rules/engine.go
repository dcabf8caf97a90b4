// Package rules generates supplement recommendations from the fused records
// via a data-driven rule table. Rules are pure functions over an immutable
// context; adding a rule means appending to the table, never touching the
// evaluator.
package rules

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jglaspey/supplement-cli/internal/agent"
	"github.com/jglaspey/supplement-cli/internal/model"
	"github.com/jglaspey/supplement-cli/internal/resilience"
)

// inferenceDiscount reflects that a recommendation is one inferential step
// removed from its source field: rule confidence is the field's confidence
// times this factor.
const inferenceDiscount = 0.9

// Context is the immutable input every rule condition and action sees.
// Roof and Report may be nil.
type Context struct {
	Estimate *model.EstimateRecord
	Roof     *model.RoofMeasurementRecord
	Report   *model.DiscrepancyReport
}

// Rule is one condition/action pair. Condition must be side-effect free;
// Action returns nil when the rule declines to recommend despite matching.
type Rule struct {
	ID        string
	Name      string
	Category  string
	Priority  model.RecommendationPriority
	Condition func(Context) bool
	Action    func(Context) *model.SupplementRecommendation
}

// Engine evaluates a rule table in registration order. No conflict
// resolution: each triggered rule contributes one recommendation.
type Engine struct {
	cfg   agent.Config
	rules []Rule
}

// NewEngine builds a rule engine over the default rule table.
func NewEngine(cfg agent.Config) *Engine {
	return NewEngineWithRules(cfg, DefaultRules())
}

// NewEngineWithRules builds a rule engine over an explicit table.
func NewEngineWithRules(cfg agent.Config, rules []Rule) *Engine {
	if cfg.Name == "" {
		cfg.Name = "recommendation_generation"
	}
	if len(cfg.Capabilities) == 0 {
		cfg.Capabilities = []string{"rule_evaluation"}
	}
	return &Engine{cfg: cfg, rules: rules}
}

func (e *Engine) Config() agent.Config { return e.cfg }

func (e *Engine) Plan(ctx context.Context, in Context, tc model.TaskContext) (agent.Plan, error) {
	p := agent.Plan{}
	for _, r := range e.rules {
		p.Subtasks = append(p.Subtasks, agent.Subtask{
			Name:              "rule:" + r.ID,
			EstimatedDuration: time.Millisecond,
			Confidence:        1,
		})
	}
	return p, nil
}

func (e *Engine) Act(ctx context.Context, in Context, tc model.TaskContext) (agent.Result[[]model.SupplementRecommendation], error) {
	start := time.Now()

	if !in.Estimate.HasData() {
		return agent.Result[[]model.SupplementRecommendation]{}, resilience.WithKind(
			eris.New("rules: no estimate data to evaluate"), resilience.KindOrchestration)
	}

	recs := Evaluate(e.rules, in)
	zap.L().Info("rules: evaluation complete",
		zap.String("job", tc.JobID),
		zap.Int("rules", len(e.rules)),
		zap.Int("recommendations", len(recs)),
	)

	return agent.Result[[]model.SupplementRecommendation]{
		Data:           recs,
		ProcessingTime: time.Since(start),
	}, nil
}

// Validate accepts any well-formed outcome; producing zero recommendations
// is a legitimate result for a complete estimate.
func (e *Engine) Validate(ctx context.Context, res agent.Result[[]model.SupplementRecommendation], tc model.TaskContext) model.ValidationResult {
	for _, rec := range res.Data {
		if rec.Confidence < 0 || rec.Confidence > 1 {
			return model.Invalid(0.5, "recommendation confidence out of range: "+rec.ID)
		}
		if rec.Quantity.OrZero() < 0 {
			return model.Invalid(0.5, "negative recommended quantity: "+rec.ID)
		}
	}
	return model.Valid(0.95)
}

// Evaluate runs the table in order over an immutable context.
func Evaluate(rules []Rule, in Context) []model.SupplementRecommendation {
	var recs []model.SupplementRecommendation
	for _, r := range rules {
		if r.Condition == nil || !r.Condition(in) {
			continue
		}
		rec := r.Action(in)
		if rec == nil {
			continue
		}
		if rec.ID == "" {
			rec.ID = r.ID
		}
		if rec.Category == "" {
			rec.Category = r.Category
		}
		if rec.Priority == "" {
			rec.Priority = r.Priority
		}
		rec.Confidence = model.Clamp01(rec.Confidence)
		recs = append(recs, *rec)
	}
	return recs
}
