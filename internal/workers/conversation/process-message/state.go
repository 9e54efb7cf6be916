// internal/workers/conversation/process-message/state.go
package processmessage

import "orderbot-workers/internal/models"

// State is the terminal branch of the pipeline for one message.
type State string

const (
	StateReceived          State = "RECEIVED"
	StateQueued            State = "QUEUED"
	StateClassifying       State = "CLASSIFYING"
	StateParseFailed       State = "PARSE_FAILED"
	StateOrderReady        State = "ORDER_READY"
	StateOrderPartial      State = "ORDER_PARTIAL"
	StateClarificationNeed State = "CLARIFICATION_NEEDED"
	StateInformational     State = "INFORMATIONAL"
	StateEscalated         State = "ESCALATED"
	StateReplied           State = "REPLIED"
)

// Decide maps a validated extraction onto a terminal branch. Escalation
// is orthogonal and handled separately: a low-confidence greeting still
// lands on INFORMATIONAL here, but staff get pinged anyway.
func Decide(result *models.ExtractionResult, orderConfidence float64) State {
	if result.Fallback {
		return StateParseFailed
	}

	switch result.Intent {
	case models.IntentOrder:
		if result.Confidence < orderConfidence {
			return StateClarificationNeed
		}
		if result.ReadyForOrder() {
			return StateOrderReady
		}
		if len(result.Products) > 0 || len(result.Unresolved) > 0 {
			if result.HasStockShortage() || len(result.Unresolved) > 0 {
				return StateOrderPartial
			}
		}
		return StateClarificationNeed
	case models.IntentInquiry, models.IntentGreeting, models.IntentComplaint, models.IntentUnknown:
		// A parsed unknown still carries the model's composed reply;
		// only the fallback path above means we have nothing to say.
		return StateInformational
	default:
		return StateClarificationNeed
	}
}
