package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextQuality(t *testing.T) {
	t.Parallel()

	estimateDoc := strings.Repeat(
		"Claim estimate for insured property. Carrier policy coverage with deductible, RCV and ACV totals per line item. ", 10)

	tests := []struct {
		name     string
		text     string
		keywords []string
		min      float64
		max      float64
	}{
		{
			name: "empty text scores zero",
			text: "", keywords: estimateKeywords,
			min: 0, max: 0,
		},
		{
			name: "whitespace only scores zero",
			text: "  \n\t  ", keywords: estimateKeywords,
			min: 0, max: 0,
		},
		{
			name: "rich estimate text scores high",
			text: estimateDoc, keywords: estimateKeywords,
			min: 0.9, max: 1,
		},
		{
			name: "plain prose without keywords lands mid-range",
			text: strings.Repeat("the quick brown fox jumps over the lazy dog ", 20),
			keywords: estimateKeywords,
			min: 0.5, max: 0.75,
		},
		{
			name: "scanned garbage scores below any usable gate",
			text: strings.Repeat("\x01\x02\x03\x04", 100),
			keywords: roofKeywords,
			min: 0, max: 0.05,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q := TextQuality(tc.text, tc.keywords)
			assert.GreaterOrEqual(t, q, tc.min)
			assert.LessOrEqual(t, q, tc.max)
		})
	}
}

func TestTextQualityGateSkipsGarbage(t *testing.T) {
	t.Parallel()

	// A failed OCR pass over a scanned page produces mostly control bytes.
	// That must land under the default gate so no LLM calls are spent on it.
	garbage := strings.Repeat("\xef\xbf\xbd\x00\x01", 200)
	assert.Less(t, EstimateTextQuality(garbage), DefaultTextQualityMin)
	assert.Less(t, RoofTextQuality(garbage), DefaultTextQualityMin)
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "TEXT_ONLY", want: TextOnly},
		{in: "vision_only", want: VisionOnly},
		{in: " Hybrid ", want: Hybrid},
		{in: "fallback", want: Fallback},
		{in: "", want: Fallback},
		{in: "ocr", wantErr: true},
	}

	for _, tc := range tests {
		t.Run("input_"+tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseStrategy(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
