package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/jglaspey/supplement-cli/internal/model"
	"github.com/jglaspey/supplement-cli/internal/resilience"
)

// fieldAnswer is the JSON shape every single-field prompt returns.
type fieldAnswer struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// cleanJSON extracts a JSON document from text that may contain markdown
// code fences or other wrapping. opener/closer select object vs array framing.
func cleanJSON(text, opener, closer string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, opener)
	end := strings.LastIndex(text, closer)
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// parseFieldAnswer decodes a {"value":..., "confidence":..., "rationale":...}
// response. A decode failure is a parse-kind error; callers degrade to a
// fallback parse within the same attempt instead of consuming a retry.
func parseFieldAnswer(text string) (fieldAnswer, error) {
	var ans fieldAnswer
	if err := json.Unmarshal([]byte(cleanJSON(text, "{", "}")), &ans); err != nil {
		return ans, resilience.WithKind(eris.Wrap(err, "extract: parse field answer"), resilience.KindParse)
	}
	ans.Confidence = model.Clamp01(ans.Confidence)
	return ans, nil
}

// stringField converts a field answer to a string ExtractedField.
func stringField(ans fieldAnswer, source model.FieldSource) model.ExtractedField[string] {
	if ans.Value == nil {
		return model.AbsentField[string](ans.Confidence, source, ans.Rationale, false)
	}
	s := strings.TrimSpace(asString(ans.Value))
	if s == "" || strings.EqualFold(s, "null") {
		return model.AbsentField[string](ans.Confidence, source, ans.Rationale, false)
	}
	return model.NewField(s, ans.Confidence, source, ans.Rationale)
}

// floatField converts a field answer to a float ExtractedField, tolerating
// string-wrapped numbers with currency formatting.
func floatField(ans fieldAnswer, source model.FieldSource) model.ExtractedField[float64] {
	f, ok := asFloat(ans.Value)
	if !ok {
		return model.AbsentField[float64](ans.Confidence, source, ans.Rationale, false)
	}
	return model.NewField(f, ans.Confidence, source, ans.Rationale)
}

// intField converts a field answer to an int ExtractedField.
func intField(ans fieldAnswer, source model.FieldSource) model.ExtractedField[int] {
	f, ok := asFloat(ans.Value)
	if !ok {
		return model.AbsentField[int](ans.Confidence, source, ans.Rationale, false)
	}
	return model.NewField(int(f+0.5), ans.Confidence, source, ans.Rationale)
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(n)
		f, err := strconv.ParseFloat(cleaned, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// parseLineItemsJSON decodes the line-items prompt response (a JSON array).
func parseLineItemsJSON(text string) ([]model.LineItem, error) {
	var items []model.LineItem
	if err := json.Unmarshal([]byte(cleanJSON(text, "[", "]")), &items); err != nil {
		return nil, resilience.WithKind(eris.Wrap(err, "extract: parse line items"), resilience.KindParse)
	}
	return items, nil
}

// lineItemRow matches estimate-style rows: description, quantity, unit, and
// optionally prices. Used as the degraded fallback when the structured
// response cannot be parsed.
var lineItemRow = regexp.MustCompile(`(?i)^\s*\d*\.?\s*(.+?)\s{2,}([\d,]+\.?\d*)\s+(SQ|LF|SF|EA|HR)\b`)

// fallbackLineItems line-splits raw text and keeps rows that look like
// scope lines. Quantities keep their parsed values; prices are dropped.
func fallbackLineItems(text string) []model.LineItem {
	var items []model.LineItem
	for _, line := range strings.Split(text, "\n") {
		m := lineItemRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		qty, ok := asFloat(m[2])
		if !ok {
			continue
		}
		items = append(items, model.LineItem{
			Description: strings.TrimSpace(m[1]),
			Quantity:    qty,
			Unit:        strings.ToUpper(m[3]),
		})
	}
	return items
}

// visionAnswers is the decoded shape of a whole-record vision response:
// field name to answer, plus optional line items.
type visionAnswers struct {
	fields    map[string]fieldAnswer
	lineItems []model.LineItem
	itemsConf float64
}

// parseVisionAnswers decodes the vision prompt's object-per-field response.
func parseVisionAnswers(text string) (visionAnswers, error) {
	out := visionAnswers{fields: map[string]fieldAnswer{}}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleanJSON(text, "{", "}")), &raw); err != nil {
		return out, resilience.WithKind(eris.Wrap(err, "extract: parse vision answer"), resilience.KindParse)
	}

	for key, msg := range raw {
		switch key {
		case "line_items":
			var items []model.LineItem
			if err := json.Unmarshal(msg, &items); err == nil {
				out.lineItems = items
			}
		case "line_items_confidence":
			var c float64
			if err := json.Unmarshal(msg, &c); err == nil {
				out.itemsConf = model.Clamp01(c)
			}
		default:
			var ans fieldAnswer
			if err := json.Unmarshal(msg, &ans); err != nil {
				continue
			}
			ans.Confidence = model.Clamp01(ans.Confidence)
			out.fields[key] = ans
		}
	}
	return out, nil
}

// answer returns the vision answer for a field, or a null answer.
func (v visionAnswers) answer(key string) fieldAnswer {
	if ans, ok := v.fields[key]; ok {
		return ans
	}
	return fieldAnswer{Confidence: 0, Rationale: "field not present in vision response"}
}
