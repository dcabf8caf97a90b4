package prompts

import (
	"fmt"

	"github.com/jglaspey/supplement-cli/internal/model"
)

// Default model tiers: field prompts run on the cheap tier, whole-document
// vision prompts and the supervisor review on the stronger tier.
const (
	tierHaiku  = "haiku"
	tierSonnet = "sonnet"
)

// fieldPromptTemplate is the shared single-field extraction prompt. The
// first %s is the field description, the second the expected format, the
// third the document text.
const fieldPromptTemplate = `You are an insurance claims analyst extracting one field from a document.

Field: %s
Expected format: %s

Document text:
%%s

Extract the field value from the document. Return a valid JSON object:
{"value": <extracted value or null>, "confidence": <0.0-1.0>, "rationale": "<brief explanation>"}`

const lineItemsPrompt = `You are an insurance claims analyst extracting the full line-item scope from a carrier damage estimate.

Document text:
%s

List every scope line item. Return a valid JSON array, one object per line item:
[{"description": "<text>", "quantity": <number>, "unit": "<SQ|LF|SF|EA|HR>", "unit_price": <number or 0>, "total_price": <number or 0>}]

Return only the JSON array.`

const estimateVisionPrompt = `You are an insurance claims analyst reading a carrier damage estimate from page images.

Extract these fields from the attached pages:
- property_address, claim_number, carrier, date_of_loss (strings)
- total_replacement_cost, total_actual_cash_value, deductible (numbers, USD)
- line_items: array of {description, quantity, unit, unit_price, total_price}

Return a valid JSON object keyed by field name. Each scalar field must be:
{"value": <value or null>, "confidence": <0.0-1.0>, "rationale": "<brief explanation>"}
line_items is the plain array with a sibling "line_items_confidence" number.`

const roofVisionPrompt = `You are a roofing analyst reading a roof measurement report from page images.

Extract these measurements from the attached pages:
- total_area (sq ft), eave_length, rake_length, ridge_hip_length, valley_length (ft)
- story_count, facet_count (integers), pitch (e.g. "6/12")

Return a valid JSON object keyed by field name, each field as:
{"value": <value or null>, "confidence": <0.0-1.0>, "rationale": "<brief explanation>"}`

const supervisorReviewPrompt = `You are a senior insurance supplement reviewer performing a final quality check.

Analysis summary:
%s

Review the extraction and recommendation results above. Point out anything an
adjuster should double-check before submitting the supplement. Respond with a
short narrative (3-5 sentences), no JSON.`

// fieldSpec describes one extractable field for prompt generation.
type fieldSpec struct {
	key         string
	description string
	format      string
}

var estimateFields = []fieldSpec{
	{"property_address", "the full street address of the insured property", "street, city, state, zip as one string"},
	{"claim_number", "the carrier claim number", "string, keep hyphens and leading zeros"},
	{"carrier", "the insurance carrier name", "string"},
	{"date_of_loss", "the date of loss", "YYYY-MM-DD"},
	{"total_replacement_cost", "the total replacement cost value (RCV)", "number, USD, no symbols"},
	{"total_actual_cash_value", "the total actual cash value (ACV)", "number, USD, no symbols"},
	{"deductible", "the policyholder deductible", "number, USD, no symbols"},
}

var roofFields = []fieldSpec{
	{"total_area", "the total roof area", "number, square feet"},
	{"eave_length", "the total eave length", "number, linear feet"},
	{"rake_length", "the total rake length", "number, linear feet"},
	{"ridge_hip_length", "the combined ridge and hip length", "number, linear feet"},
	{"valley_length", "the total valley length", "number, linear feet"},
	{"story_count", "the number of stories", "integer"},
	{"pitch", "the predominant roof pitch", "rise/run, e.g. 6/12"},
	{"facet_count", "the number of roof facets", "integer"},
}

var (
	defaults  = map[string]model.PromptConfig{}
	stepOrder []string
)

func register(cfg model.PromptConfig) {
	defaults[cfg.Step] = cfg
	stepOrder = append(stepOrder, cfg.Step)
}

func init() {
	for _, f := range estimateFields {
		register(model.PromptConfig{
			Step:      "estimate." + f.key,
			Prompt:    fmt.Sprintf(fieldPromptTemplate, f.description, f.format),
			Provider:  "anthropic",
			Model:     tierHaiku,
			MaxTokens: 512,
		})
	}
	register(model.PromptConfig{
		Step:      "estimate.line_items",
		Prompt:    lineItemsPrompt,
		Provider:  "anthropic",
		Model:     tierSonnet,
		MaxTokens: 4096,
	})
	register(model.PromptConfig{
		Step:      "estimate.vision",
		Prompt:    estimateVisionPrompt,
		Provider:  "anthropic",
		Model:     tierSonnet,
		MaxTokens: 4096,
	})

	for _, f := range roofFields {
		register(model.PromptConfig{
			Step:      "roof." + f.key,
			Prompt:    fmt.Sprintf(fieldPromptTemplate, f.description, f.format),
			Provider:  "anthropic",
			Model:     tierHaiku,
			MaxTokens: 512,
		})
	}
	register(model.PromptConfig{
		Step:      "roof.vision",
		Prompt:    roofVisionPrompt,
		Provider:  "anthropic",
		Model:     tierSonnet,
		MaxTokens: 2048,
	})

	register(model.PromptConfig{
		Step:      "supervisor.review",
		Prompt:    supervisorReviewPrompt,
		Provider:  "anthropic",
		Model:     tierSonnet,
		MaxTokens: 1024,
	})
}
