package extract

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jglaspey/supplement-cli/internal/agent"
	"github.com/jglaspey/supplement-cli/internal/config"
	"github.com/jglaspey/supplement-cli/internal/model"
	"github.com/jglaspey/supplement-cli/internal/ocr"
	"github.com/jglaspey/supplement-cli/internal/prompts"
	"github.com/jglaspey/supplement-cli/internal/resilience"
	"github.com/jglaspey/supplement-cli/pkg/anthropic"
)

// maxFieldConcurrency bounds parallel per-field prompts within one stage.
// The rate limiter in front of the client is the real throttle; this keeps
// goroutine fan-out modest.
const maxFieldConcurrency = 4

// DocumentInput is the input to both extraction agents.
type DocumentInput struct {
	Path           string
	Strategy       Strategy
	TextQualityMin float64
}

func (in DocumentInput) strategy() Strategy {
	if in.Strategy == "" {
		return Fallback
	}
	return in.Strategy
}

func (in DocumentInput) qualityMin() float64 {
	if in.TextQualityMin <= 0 {
		return DefaultTextQualityMin
	}
	return in.TextQualityMin
}

// EstimateAgent extracts a structured EstimateRecord from a carrier damage
// estimate via the text and/or vision paths, fusing the two per field.
type EstimateAgent struct {
	cfg    agent.Config
	llm    *llmCaller
	text   ocr.TextExtractor
	images ocr.ImageConverter
	vision config.VisionConfig
}

// NewEstimateAgent wires the estimate-extraction stage.
func NewEstimateAgent(
	cfg agent.Config,
	client anthropic.Client,
	resolver *prompts.Resolver,
	models config.AnthropicConfig,
	text ocr.TextExtractor,
	images ocr.ImageConverter,
	vision config.VisionConfig,
) *EstimateAgent {
	if cfg.Name == "" {
		cfg.Name = "estimate_extraction"
	}
	if len(cfg.Capabilities) == 0 {
		cfg.Capabilities = []string{"text_extraction", "vision_extraction", "fusion"}
	}
	return &EstimateAgent{
		cfg:    cfg,
		llm:    newLLMCaller(client, resolver, models),
		text:   text,
		images: images,
		vision: vision,
	}
}

func (a *EstimateAgent) Config() agent.Config { return a.cfg }

// Plan enumerates intended sub-tasks for observability.
func (a *EstimateAgent) Plan(ctx context.Context, in DocumentInput, tc model.TaskContext) (agent.Plan, error) {
	p := agent.Plan{}
	if in.strategy() != VisionOnly {
		for _, key := range model.EstimateFieldKeys {
			p.Subtasks = append(p.Subtasks, agent.Subtask{
				Name:              "text_field:" + key,
				EstimatedDuration: 5 * time.Second,
				Confidence:        0.8,
			})
		}
		p.Subtasks = append(p.Subtasks, agent.Subtask{
			Name:              "text_line_items",
			EstimatedDuration: 20 * time.Second,
			Confidence:        0.7,
		})
	}
	if in.strategy() != TextOnly {
		p.Subtasks = append(p.Subtasks, agent.Subtask{
			Name:              "vision_record",
			EstimatedDuration: 30 * time.Second,
			Confidence:        0.7,
		})
	}
	return p, nil
}

// Act runs the configured extraction path(s) and fuses the results.
func (a *EstimateAgent) Act(ctx context.Context, in DocumentInput, tc model.TaskContext) (agent.Result[*model.EstimateRecord], error) {
	start := time.Now()
	log := zap.L().With(zap.String("stage", a.cfg.Name), zap.String("job", tc.JobID))

	var zero agent.Result[*model.EstimateRecord]
	var usage model.TokenUsage
	strategy := in.strategy()

	var textRec *model.EstimateRecord
	textTrusted := false

	if strategy != VisionOnly {
		docText, err := a.text.ExtractText(ctx, in.Path)
		if err != nil {
			if strategy == TextOnly {
				return zero, resilience.WithKind(eris.Wrap(err, "extract: estimate text path"), resilience.KindExtraction)
			}
			log.Warn("extract: text extraction failed, continuing to vision", zap.Error(err))
		} else if q := EstimateTextQuality(docText); q < in.qualityMin() {
			log.Info("extract: skipping text path, quality below minimum",
				zap.Float64("quality", q),
				zap.Float64("minimum", in.qualityMin()),
			)
		} else {
			textTrusted = true
			rec, u, textErr := a.textPath(ctx, docText)
			usage.Add(u)
			if textErr != nil {
				if strategy == TextOnly {
					return zero, textErr
				}
				log.Warn("extract: estimate text path failed", zap.Error(textErr))
			} else {
				textRec = rec
			}
		}
	}

	runVision := false
	switch strategy {
	case VisionOnly, Hybrid:
		runVision = true
	case Fallback:
		runVision = textRec == nil || textRec.AggregateConfidence() < a.cfg.ConfidenceThreshold
	}

	var visionRec *model.EstimateRecord
	if runVision {
		rec, u, visErr := a.visionPath(ctx, in.Path)
		usage.Add(u)
		if visErr != nil {
			if textRec == nil {
				return zero, visErr
			}
			log.Warn("extract: estimate vision path failed, keeping text result", zap.Error(visErr))
		} else {
			visionRec = rec
		}
	}

	fused := fuseEstimate(textRec, visionRec, textTrusted)
	if fused == nil {
		return zero, resilience.WithKind(eris.New("extract: no estimate path produced data"), resilience.KindExtraction)
	}

	modelUsed := a.llm.resolveModel("haiku")
	if visionRec != nil {
		modelUsed = a.llm.resolveModel("sonnet")
	}

	return agent.Result[*model.EstimateRecord]{
		Data:           fused,
		ProcessingTime: time.Since(start),
		ModelUsed:      modelUsed,
		Usage:          usage,
	}, nil
}

// Validate independently scores the fused record. Missing identity AND
// missing totals AND no line items means the extraction is unusable.
func (a *EstimateAgent) Validate(ctx context.Context, res agent.Result[*model.EstimateRecord], tc model.TaskContext) model.ValidationResult {
	rec := res.Data
	if rec == nil || !rec.HasData() {
		return model.Invalid(0, "no usable estimate data extracted")
	}

	var warnings []string
	if rec.ClaimNumber.IsNull() {
		warnings = append(warnings, "claim number missing")
	}
	if rec.TotalReplacementCost.IsNull() {
		warnings = append(warnings, "total replacement cost missing")
	}
	items, _ := rec.LineItems.Get()
	if len(items) == 0 {
		warnings = append(warnings, "no line items extracted")
	}

	if rec.ClaimNumber.IsNull() && rec.TotalReplacementCost.IsNull() && len(items) == 0 {
		return model.Invalid(rec.AggregateConfidence(),
			"extraction missing claim number, totals, and line items")
	}

	v := model.Valid(rec.AggregateConfidence())
	v.Warnings = warnings
	return v
}

// textPath runs per-field prompts concurrently over the document text.
func (a *EstimateAgent) textPath(ctx context.Context, docText string) (*model.EstimateRecord, model.TokenUsage, error) {
	rec := &model.EstimateRecord{}
	var mu sync.Mutex
	var usage model.TokenUsage
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFieldConcurrency)

	for _, key := range model.EstimateFieldKeys {
		g.Go(func() error {
			comp, err := a.llm.completeText(gctx, "estimate."+key, docText)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				zap.L().Warn("extract: estimate field call failed",
					zap.String("field", key), zap.Error(err))
				setEstimateField(rec, key, fallbackEstimateField(key, docText), model.SourceFallback)
				return nil
			}
			usage.Add(comp.Usage)

			ans, perr := parseFieldAnswer(comp.Text)
			if perr != nil {
				// Degraded parse within the same attempt; no retry consumed.
				setEstimateField(rec, key, fallbackEstimateField(key, docText), model.SourceFallback)
				return nil
			}
			setEstimateField(rec, key, ans, model.SourceText)
			return nil
		})
	}

	g.Go(func() error {
		comp, err := a.llm.completeText(gctx, "estimate.line_items", docText)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures++
			rec.LineItems = lineItemsField(fallbackLineItems(docText), model.SourceFallback, 0)
			return nil
		}
		usage.Add(comp.Usage)

		items, perr := parseLineItemsJSON(comp.Text)
		if perr != nil {
			rec.LineItems = lineItemsField(fallbackLineItems(docText), model.SourceFallback, 0)
			return nil
		}
		rec.LineItems = lineItemsField(items, model.SourceText, 0.85)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, usage, resilience.WithKind(err, resilience.KindExtraction)
	}
	if failures == len(model.EstimateFieldKeys)+1 && !rec.HasData() {
		return nil, usage, resilience.WithKind(
			eris.New("extract: every estimate field call failed"), resilience.KindExtraction)
	}
	return rec, usage, nil
}

// visionPath renders the document and extracts the whole record in one call.
func (a *EstimateAgent) visionPath(ctx context.Context, path string) (*model.EstimateRecord, model.TokenUsage, error) {
	var usage model.TokenUsage

	pages, err := a.images.ConvertToImages(ctx, path, ocr.ImageOptions{
		Resolution: a.vision.Resolution,
		Format:     a.vision.Format,
		Quality:    a.vision.Quality,
		MaxPages:   a.vision.MaxPages,
	})
	if err != nil {
		return nil, usage, resilience.WithKind(eris.Wrap(err, "extract: estimate page render"), resilience.KindExtraction)
	}

	comp, err := a.llm.completeVision(ctx, "estimate.vision", pages)
	if err != nil {
		return nil, usage, err
	}
	usage.Add(comp.Usage)

	answers, err := parseVisionAnswers(comp.Text)
	if err != nil {
		return nil, usage, err
	}

	rec := &model.EstimateRecord{}
	for _, key := range model.EstimateFieldKeys {
		setEstimateField(rec, key, answers.answer(key), model.SourceVision)
	}
	rec.LineItems = lineItemsField(answers.lineItems, model.SourceVision, answers.itemsConf)
	return rec, usage, nil
}

// setEstimateField routes one field answer into the record.
func setEstimateField(rec *model.EstimateRecord, key string, ans fieldAnswer, source model.FieldSource) {
	switch key {
	case "property_address":
		rec.PropertyAddress = stringField(ans, source)
	case "claim_number":
		rec.ClaimNumber = stringField(ans, source)
	case "carrier":
		rec.Carrier = stringField(ans, source)
	case "date_of_loss":
		rec.DateOfLoss = stringField(ans, source)
	case "total_replacement_cost":
		rec.TotalReplacementCost = floatField(ans, source)
	case "total_actual_cash_value":
		rec.TotalActualCashValue = floatField(ans, source)
	case "deductible":
		rec.Deductible = floatField(ans, source)
	}
}

// lineItemsField wraps a parsed item list. Empty lists carry zero
// confidence regardless of the requested level.
func lineItemsField(items []model.LineItem, source model.FieldSource, confidence float64) model.ExtractedField[[]model.LineItem] {
	if len(items) == 0 {
		f := model.NewField([]model.LineItem{}, 0, source, "no line items found")
		f.Confidence = 0
		return f
	}
	if confidence <= 0 {
		confidence = fallbackHitConfidence
	}
	return model.NewField(items, confidence, source, "parsed line item list")
}

// fuseEstimate combines the two path records per the fusion policy. Either
// input may be nil; nil in both directions yields nil.
func fuseEstimate(text, vision *model.EstimateRecord, textTrusted bool) *model.EstimateRecord {
	switch {
	case text == nil && vision == nil:
		return nil
	case vision == nil:
		return text
	case text == nil:
		return vision
	}

	fused := &model.EstimateRecord{
		PropertyAddress:      FuseFields(text.PropertyAddress, vision.PropertyAddress, NonEmptyString),
		ClaimNumber:          FuseFields(text.ClaimNumber, vision.ClaimNumber, NonEmptyString),
		Carrier:              FuseFields(text.Carrier, vision.Carrier, NonEmptyString),
		DateOfLoss:           FuseFields(text.DateOfLoss, vision.DateOfLoss, NonEmptyString),
		TotalReplacementCost: FuseFields(text.TotalReplacementCost, vision.TotalReplacementCost, PositiveNumber),
		TotalActualCashValue: FuseFields(text.TotalActualCashValue, vision.TotalActualCashValue, PositiveNumber),
		Deductible:           FuseFields(text.Deductible, vision.Deductible, nil),
		LineItems:            FuseLineItems(text.LineItems, vision.LineItems, textTrusted),
	}
	return fused
}
