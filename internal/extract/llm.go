package extract

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/jglaspey/supplement-cli/internal/config"
	"github.com/jglaspey/supplement-cli/internal/model"
	"github.com/jglaspey/supplement-cli/internal/ocr"
	"github.com/jglaspey/supplement-cli/internal/prompts"
	"github.com/jglaspey/supplement-cli/internal/resilience"
	"github.com/jglaspey/supplement-cli/pkg/anthropic"
)

// llmCaller issues prompt-config-driven completions for both agents,
// translating tier aliases to concrete model IDs and accounting usage.
type llmCaller struct {
	client   anthropic.Client
	resolver *prompts.Resolver
	models   config.AnthropicConfig
	retry    resilience.RetryConfig
}

func newLLMCaller(client anthropic.Client, resolver *prompts.Resolver, models config.AnthropicConfig) *llmCaller {
	return &llmCaller{
		client:   client,
		resolver: resolver,
		models:   models,
		retry:    resilience.DefaultRetryConfig(),
	}
}

// resolveModel maps a tier alias to the configured model ID. Unrecognized
// values are treated as explicit model IDs and passed through.
func (c *llmCaller) resolveModel(alias string) string {
	switch alias {
	case "haiku", "":
		return c.models.HaikuModel
	case "sonnet":
		return c.models.SonnetModel
	default:
		return alias
	}
}

// completion is the common return of both call paths.
type completion struct {
	Text  string
	Model string
	Usage model.TokenUsage
}

// completeText resolves the step's prompt config, substitutes args into the
// prompt template, and issues a text-only completion with transient retry.
func (c *llmCaller) completeText(ctx context.Context, step string, args ...any) (completion, error) {
	cfg, err := c.resolver.Get(ctx, step)
	if err != nil {
		return completion{}, err
	}

	prompt := cfg.Prompt
	if len(args) > 0 {
		prompt = fmt.Sprintf(cfg.Prompt, args...)
	}

	return c.send(ctx, step, cfg, []anthropic.Message{anthropic.Text("user", prompt)})
}

// completeVision issues a completion with the step's prompt plus one image
// part per document page.
func (c *llmCaller) completeVision(ctx context.Context, step string, pages []ocr.PageImage) (completion, error) {
	cfg, err := c.resolver.Get(ctx, step)
	if err != nil {
		return completion{}, err
	}

	parts := make([]anthropic.ContentPart, 0, len(pages)+1)
	parts = append(parts, anthropic.ContentPart{Type: anthropic.PartText, Text: cfg.Prompt})
	for _, p := range pages {
		parts = append(parts, anthropic.ContentPart{
			Type:      anthropic.PartImage,
			MediaType: p.MediaType,
			Data:      base64.StdEncoding.EncodeToString(p.Data),
		})
	}

	return c.send(ctx, step, cfg, []anthropic.Message{{Role: "user", Parts: parts}})
}

func (c *llmCaller) send(ctx context.Context, step string, cfg model.PromptConfig, msgs []anthropic.Message) (completion, error) {
	modelID := c.resolveModel(cfg.Model)
	req := anthropic.MessageRequest{
		Model:       modelID,
		MaxTokens:   cfg.MaxTokens,
		Messages:    msgs,
		Temperature: cfg.Temperature,
	}

	retryCfg := c.retry
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", step)

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return completion{}, resilience.WithKind(err, resilience.KindExtraction)
	}

	return completion{
		Text:  resp.FirstText(),
		Model: modelID,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			Cost:         resp.Usage.EstimateCost(modelID),
		},
	}, nil
}
