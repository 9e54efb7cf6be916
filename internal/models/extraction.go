// internal/models/extraction.go
package models

// Intent is the classifier's categorical judgment of what the customer wants.
type Intent string

const (
	IntentOrder     Intent = "order"
	IntentInquiry   Intent = "inquiry"
	IntentComplaint Intent = "complaint"
	IntentGreeting  Intent = "greeting"
	IntentUnknown   Intent = "unknown"
)

// ParseIntent normalizes a classifier-provided intent label. Anything
// outside the known set collapses to IntentUnknown.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentOrder, IntentInquiry, IntentComplaint, IntentGreeting:
		return Intent(s)
	default:
		return IntentUnknown
	}
}

// ExtractedProduct links a free-text product mention to a concrete catalog
// entry. MatchedName is always the catalog spelling, never the model's.
type ExtractedProduct struct {
	RequestedName     string  `json:"requestedName"`
	MatchedName       string  `json:"matchedName"`
	ProductID         string  `json:"productId"`
	Quantity          int     `json:"quantity"`
	UnitPrice         float64 `json:"unitPrice"`
	StockAvailable    int     `json:"stockAvailable"`
	InsufficientStock bool    `json:"insufficientStock"`
	OriginalRequest   string  `json:"originalRequestText"`
}

// ExtractionResult is the classifier output after defensive parsing and,
// for order intents, catalog validation. It is ephemeral: only a summary
// is persisted as NLP metadata on the inbound message.
type ExtractionResult struct {
	Intent      Intent             `json:"intent"`
	Products    []ExtractedProduct `json:"products,omitempty"`
	Unresolved  []string           `json:"unresolved,omitempty"`
	Total       float64            `json:"total"`
	Uncertainty []string           `json:"uncertainty,omitempty"`
	Confidence  float64            `json:"confidence"`
	Reply       string             `json:"reply"`
	Fallback    bool               `json:"fallback,omitempty"`
}

// ReadyForOrder reports whether the order branch may proceed: an order
// intent with at least one fully resolved product and no stock shortage.
func (r *ExtractionResult) ReadyForOrder() bool {
	if r.Intent != IntentOrder || len(r.Products) == 0 {
		return false
	}
	for _, p := range r.Products {
		if p.ProductID == "" || p.InsufficientStock {
			return false
		}
	}
	return len(r.Unresolved) == 0
}

// HasStockShortage reports whether any resolved entity cannot be fulfilled.
func (r *ExtractionResult) HasStockShortage() bool {
	for _, p := range r.Products {
		if p.InsufficientStock {
			return true
		}
	}
	return false
}
