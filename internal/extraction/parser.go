// internal/extraction/parser.go
package extraction

import (
	"encoding/json"
	"strings"

	"orderbot-workers/internal/models"
)

const fallbackReply = "Disculpa, no entendí bien tu mensaje. ¿Podrías repetirlo con otras palabras?"

type rawProduct struct {
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity"`
	OriginalRequest string  `json:"originalRequest"`
	Price           float64 `json:"price"`
}

type rawExtraction struct {
	Intent      string       `json:"intent"`
	Products    []rawProduct `json:"products"`
	Uncertainty []string     `json:"uncertainty"`
	Confidence  float64      `json:"confidence"`
	Reply       string       `json:"reply"`
	Total       float64      `json:"total"`
}

// Parse turns a raw model completion into an ExtractionResult. It never
// returns an error: completions are untrusted, so anything unparsable
// degrades to a low-confidence fallback result instead of failing the
// pipeline.
func Parse(completion string) *models.ExtractionResult {
	jsonText := extractJSON(completion)
	if jsonText == "" {
		return fallbackResult()
	}

	var raw rawExtraction
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return fallbackResult()
	}
	// Valid JSON that carries neither an intent nor a reply is as
	// useless as no JSON at all.
	if strings.TrimSpace(raw.Intent) == "" && strings.TrimSpace(raw.Reply) == "" {
		return fallbackResult()
	}

	result := &models.ExtractionResult{
		Intent:      models.ParseIntent(raw.Intent),
		Uncertainty: raw.Uncertainty,
		Confidence:  clampConfidence(raw.Confidence),
		Reply:       strings.TrimSpace(raw.Reply),
		Total:       raw.Total,
	}

	for _, p := range raw.Products {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		qty := p.Quantity
		if qty <= 0 {
			qty = 1
			result.Uncertainty = append(result.Uncertainty, "cantidad no especificada para "+name)
		}
		result.Products = append(result.Products, models.ExtractedProduct{
			RequestedName:   name,
			Quantity:        qty,
			UnitPrice:       p.Price,
			OriginalRequest: p.OriginalRequest,
		})
	}

	return result
}

// extractJSON strips markdown fences and prose around the completion's
// JSON object by slicing from the first '{' to the last '}'.
func extractJSON(completion string) string {
	start := strings.Index(completion, "{")
	end := strings.LastIndex(completion, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return completion[start : end+1]
}

func clampConfidence(c float64) float64 {
	if c < 0.0 {
		return 0.0
	}
	if c > 1.0 {
		return 1.0
	}
	return c
}

func fallbackResult() *models.ExtractionResult {
	return &models.ExtractionResult{
		Intent:     models.IntentUnknown,
		Confidence: 0.1,
		Reply:      fallbackReply,
		Fallback:   true,
	}
}
