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

// RoofAgent extracts a RoofMeasurementRecord from a roof measurement
// report. Same dual-path shape as the estimate agent; the report layouts
// are more tabular so vision tends to matter more here.
type RoofAgent struct {
	cfg    agent.Config
	llm    *llmCaller
	text   ocr.TextExtractor
	images ocr.ImageConverter
	vision config.VisionConfig
}

// NewRoofAgent wires the roof-extraction stage.
func NewRoofAgent(
	cfg agent.Config,
	client anthropic.Client,
	resolver *prompts.Resolver,
	models config.AnthropicConfig,
	text ocr.TextExtractor,
	images ocr.ImageConverter,
	vision config.VisionConfig,
) *RoofAgent {
	if cfg.Name == "" {
		cfg.Name = "roof_extraction"
	}
	if len(cfg.Capabilities) == 0 {
		cfg.Capabilities = []string{"text_extraction", "vision_extraction", "fusion"}
	}
	return &RoofAgent{
		cfg:    cfg,
		llm:    newLLMCaller(client, resolver, models),
		text:   text,
		images: images,
		vision: vision,
	}
}

func (a *RoofAgent) Config() agent.Config { return a.cfg }

func (a *RoofAgent) Plan(ctx context.Context, in DocumentInput, tc model.TaskContext) (agent.Plan, error) {
	p := agent.Plan{}
	if in.strategy() != VisionOnly {
		for _, key := range model.RoofFieldKeys {
			p.Subtasks = append(p.Subtasks, agent.Subtask{
				Name:              "text_field:" + key,
				EstimatedDuration: 5 * time.Second,
				Confidence:        0.8,
			})
		}
	}
	if in.strategy() != TextOnly {
		p.Subtasks = append(p.Subtasks, agent.Subtask{
			Name:              "vision_record",
			EstimatedDuration: 30 * time.Second,
			Confidence:        0.75,
		})
	}
	return p, nil
}

func (a *RoofAgent) Act(ctx context.Context, in DocumentInput, tc model.TaskContext) (agent.Result[*model.RoofMeasurementRecord], error) {
	start := time.Now()
	log := zap.L().With(zap.String("stage", a.cfg.Name), zap.String("job", tc.JobID))

	var zero agent.Result[*model.RoofMeasurementRecord]
	var usage model.TokenUsage
	strategy := in.strategy()

	var textRec *model.RoofMeasurementRecord

	if strategy != VisionOnly {
		docText, err := a.text.ExtractText(ctx, in.Path)
		if err != nil {
			if strategy == TextOnly {
				return zero, resilience.WithKind(eris.Wrap(err, "extract: roof text path"), resilience.KindExtraction)
			}
			log.Warn("extract: text extraction failed, continuing to vision", zap.Error(err))
		} else if q := RoofTextQuality(docText); q < in.qualityMin() {
			log.Info("extract: skipping text path, quality below minimum",
				zap.Float64("quality", q),
				zap.Float64("minimum", in.qualityMin()),
			)
		} else {
			rec, u, textErr := a.textPath(ctx, docText)
			usage.Add(u)
			if textErr != nil {
				if strategy == TextOnly {
					return zero, textErr
				}
				log.Warn("extract: roof text path failed", zap.Error(textErr))
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

	var visionRec *model.RoofMeasurementRecord
	if runVision {
		rec, u, visErr := a.visionPath(ctx, in.Path)
		usage.Add(u)
		if visErr != nil {
			if textRec == nil {
				return zero, visErr
			}
			log.Warn("extract: roof vision path failed, keeping text result", zap.Error(visErr))
		} else {
			visionRec = rec
		}
	}

	fused := fuseRoof(textRec, visionRec)
	if fused == nil {
		return zero, resilience.WithKind(eris.New("extract: no roof path produced data"), resilience.KindExtraction)
	}

	modelUsed := a.llm.resolveModel("haiku")
	if visionRec != nil {
		modelUsed = a.llm.resolveModel("sonnet")
	}

	return agent.Result[*model.RoofMeasurementRecord]{
		Data:           fused,
		ProcessingTime: time.Since(start),
		ModelUsed:      modelUsed,
		Usage:          usage,
	}, nil
}

// Validate requires a usable total area: without it neither the squares
// conversion nor the area cross-checks downstream can run.
func (a *RoofAgent) Validate(ctx context.Context, res agent.Result[*model.RoofMeasurementRecord], tc model.TaskContext) model.ValidationResult {
	rec := res.Data
	if rec == nil || !rec.HasData() {
		return model.Invalid(0, "no usable roof measurement data extracted")
	}

	var warnings []string
	if rec.TotalArea.IsNull() {
		return model.Invalid(rec.AggregateConfidence(), "total roof area missing")
	}
	if area := rec.TotalArea.OrZero(); area <= 0 || area > 50000 {
		return model.Invalid(rec.AggregateConfidence(), "total roof area outside plausible range")
	}
	if rec.EaveLength.IsNull() {
		warnings = append(warnings, "eave length missing")
	}
	if rec.Pitch.IsNull() {
		warnings = append(warnings, "predominant pitch missing")
	}

	v := model.Valid(rec.AggregateConfidence())
	v.Warnings = warnings
	return v
}

func (a *RoofAgent) textPath(ctx context.Context, docText string) (*model.RoofMeasurementRecord, model.TokenUsage, error) {
	rec := &model.RoofMeasurementRecord{}
	var mu sync.Mutex
	var usage model.TokenUsage
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFieldConcurrency)

	for _, key := range model.RoofFieldKeys {
		g.Go(func() error {
			comp, err := a.llm.completeText(gctx, "roof."+key, docText)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				zap.L().Warn("extract: roof field call failed",
					zap.String("field", key), zap.Error(err))
				setRoofField(rec, key, fallbackRoofField(key, docText), model.SourceFallback)
				return nil
			}
			usage.Add(comp.Usage)

			ans, perr := parseFieldAnswer(comp.Text)
			if perr != nil {
				setRoofField(rec, key, fallbackRoofField(key, docText), model.SourceFallback)
				return nil
			}
			setRoofField(rec, key, ans, model.SourceText)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, usage, resilience.WithKind(err, resilience.KindExtraction)
	}
	if failures == len(model.RoofFieldKeys) && !rec.HasData() {
		return nil, usage, resilience.WithKind(
			eris.New("extract: every roof field call failed"), resilience.KindExtraction)
	}
	return rec, usage, nil
}

func (a *RoofAgent) visionPath(ctx context.Context, path string) (*model.RoofMeasurementRecord, model.TokenUsage, error) {
	var usage model.TokenUsage

	pages, err := a.images.ConvertToImages(ctx, path, ocr.ImageOptions{
		Resolution: a.vision.Resolution,
		Format:     a.vision.Format,
		Quality:    a.vision.Quality,
		MaxPages:   a.vision.MaxPages,
	})
	if err != nil {
		return nil, usage, resilience.WithKind(eris.Wrap(err, "extract: roof page render"), resilience.KindExtraction)
	}

	comp, err := a.llm.completeVision(ctx, "roof.vision", pages)
	if err != nil {
		return nil, usage, err
	}
	usage.Add(comp.Usage)

	answers, err := parseVisionAnswers(comp.Text)
	if err != nil {
		return nil, usage, err
	}

	rec := &model.RoofMeasurementRecord{}
	for _, key := range model.RoofFieldKeys {
		setRoofField(rec, key, answers.answer(key), model.SourceVision)
	}
	return rec, usage, nil
}

func setRoofField(rec *model.RoofMeasurementRecord, key string, ans fieldAnswer, source model.FieldSource) {
	switch key {
	case "total_area":
		rec.TotalArea = floatField(ans, source)
	case "eave_length":
		rec.EaveLength = floatField(ans, source)
	case "rake_length":
		rec.RakeLength = floatField(ans, source)
	case "ridge_hip_length":
		rec.RidgeHipLength = floatField(ans, source)
	case "valley_length":
		rec.ValleyLength = floatField(ans, source)
	case "story_count":
		rec.StoryCount = intField(ans, source)
	case "pitch":
		rec.Pitch = stringField(ans, source)
	case "facet_count":
		rec.FacetCount = intField(ans, source)
	}
}

func fuseRoof(text, vision *model.RoofMeasurementRecord) *model.RoofMeasurementRecord {
	switch {
	case text == nil && vision == nil:
		return nil
	case vision == nil:
		return text
	case text == nil:
		return vision
	}

	return &model.RoofMeasurementRecord{
		TotalArea:      FuseFields(text.TotalArea, vision.TotalArea, PositiveNumber),
		EaveLength:     FuseFields(text.EaveLength, vision.EaveLength, PositiveNumber),
		RakeLength:     FuseFields(text.RakeLength, vision.RakeLength, PositiveNumber),
		RidgeHipLength: FuseFields(text.RidgeHipLength, vision.RidgeHipLength, PositiveNumber),
		ValleyLength:   FuseFields(text.ValleyLength, vision.ValleyLength, nil),
		StoryCount:     FuseFields(text.StoryCount, vision.StoryCount, PositiveCount),
		Pitch:          FuseFields(text.Pitch, vision.Pitch, NonEmptyString),
		FacetCount:     FuseFields(text.FacetCount, vision.FacetCount, PositiveCount),
	}
}
