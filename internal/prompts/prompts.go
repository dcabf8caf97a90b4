// Package prompts resolves per-step prompt configuration. Stored overrides
// win; compiled-in defaults back every step so a missing or unreachable
// config store never blocks the pipeline.
package prompts

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jglaspey/supplement-cli/internal/model"
)

// OverrideSource is the persistence surface the resolver reads overrides
// from. A nil result means no override exists for the step.
type OverrideSource interface {
	GetPromptConfig(ctx context.Context, step string) (*model.PromptConfig, error)
}

// Resolver returns the effective prompt config for a step.
type Resolver struct {
	overrides OverrideSource // may be nil (defaults only)
}

// NewResolver creates a Resolver. overrides may be nil.
func NewResolver(overrides OverrideSource) *Resolver {
	return &Resolver{overrides: overrides}
}

// Get returns the effective config for a step: the stored override merged
// over the compiled-in default. Lookup failures degrade to the default with
// a warning rather than failing the caller.
func (r *Resolver) Get(ctx context.Context, step string) (model.PromptConfig, error) {
	def, ok := defaults[step]
	if !ok {
		return model.PromptConfig{}, eris.Errorf("prompts: unknown step %q", step)
	}

	if r.overrides == nil {
		return def, nil
	}

	override, err := r.overrides.GetPromptConfig(ctx, step)
	if err != nil {
		zap.L().Warn("prompts: override lookup failed, using default",
			zap.String("step", step),
			zap.Error(err),
		)
		return def, nil
	}
	if override == nil {
		return def, nil
	}
	return merge(def, *override), nil
}

// Steps lists all known step names in stable order.
func Steps() []string {
	return append([]string(nil), stepOrder...)
}

// merge overlays non-zero override fields on the default.
func merge(def, override model.PromptConfig) model.PromptConfig {
	out := def
	if override.Prompt != "" {
		out.Prompt = override.Prompt
	}
	if override.Provider != "" {
		out.Provider = override.Provider
	}
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.MaxTokens > 0 {
		out.MaxTokens = override.MaxTokens
	}
	return out
}

// ParseSeedFile decodes a yaml seed file of prompt overrides for the
// `prompts seed` command.
func ParseSeedFile(data []byte) ([]model.PromptConfig, error) {
	var doc struct {
		Prompts []model.PromptConfig `yaml:"prompts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "prompts: parse seed file")
	}
	for _, p := range doc.Prompts {
		if p.Step == "" {
			return nil, eris.New("prompts: seed entry missing step")
		}
		if _, ok := defaults[p.Step]; !ok {
			return nil, eris.Errorf("prompts: seed entry for unknown step %q", p.Step)
		}
	}
	return doc.Prompts, nil
}
