package model

// PromptConfig is the stored configuration for one LLM-calling step.
// Model holds a tier alias ("haiku", "sonnet") resolved against the
// application config at call time, so model upgrades don't require
// touching stored prompts.
type PromptConfig struct {
	Step        string   `json:"step" yaml:"step"`
	Prompt      string   `json:"prompt" yaml:"prompt"`
	Provider    string   `json:"provider" yaml:"provider"`
	Model       string   `json:"model" yaml:"model"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int64    `json:"max_tokens" yaml:"max_tokens"`
}
