// internal/reply/composer_test.go
package reply

import (
	"testing"

	"orderbot-workers/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestConfirmation_ListsItemsTotalAndPaymentQuestion(t *testing.T) {
	order := &models.Order{
		Items: []models.OrderItem{
			{Name: "Pizza Margherita", Quantity: 2, UnitPrice: 8.5},
			{Name: "Limonada", Quantity: 1, UnitPrice: 2.0},
		},
		Total: 19.0,
	}

	text := Confirmation(order)
	assert.Contains(t, text, "2x Pizza Margherita - $17.00")
	assert.Contains(t, text, "1x Limonada - $2.00")
	assert.Contains(t, text, "Total: $19.00")
	assert.Contains(t, text, "¿Cómo deseas pagar?")
}

func TestPartial_ExplainsShortagesAndOffersRest(t *testing.T) {
	result := &models.ExtractionResult{
		Intent: models.IntentOrder,
		Products: []models.ExtractedProduct{
			{MatchedName: "Pizza Margherita", Quantity: 1, UnitPrice: 8.5},
			{MatchedName: "Pizza Pepperoni", Quantity: 5, StockAvailable: 1, InsufficientStock: true},
		},
		Unresolved: []string{"sushi"},
		Total:      8.5,
	}

	text := Partial(result)
	assert.Contains(t, text, "Pizza Pepperoni: solo nos quedan 1 unidades")
	assert.Contains(t, text, "sushi: no lo tenemos en el catálogo")
	assert.Contains(t, text, "1x Pizza Margherita - $8.50")
	assert.Contains(t, text, "Total: $8.50")
	assert.Contains(t, text, "¿Deseas que lo confirme así?")
}

func TestPartial_NothingAvailable(t *testing.T) {
	result := &models.ExtractionResult{
		Intent: models.IntentOrder,
		Products: []models.ExtractedProduct{
			{MatchedName: "Pizza Pepperoni", Quantity: 5, StockAvailable: 0, InsufficientStock: true},
		},
	}

	text := Partial(result)
	assert.Contains(t, text, "¿Te gustaría pedir otra cosa")
	assert.NotContains(t, text, "confirme así")
}

func TestClarification_EchoesUncertainties(t *testing.T) {
	result := &models.ExtractionResult{
		Uncertainty: []string{"cantidad no especificada para Lasagna"},
		Unresolved:  []string{"pan de ajo"},
	}

	text := Clarification(result)
	assert.Contains(t, text, "cantidad no especificada para Lasagna")
	assert.Contains(t, text, `No encontré "pan de ajo"`)
	assert.Contains(t, text, "¿Me ayudas con esos detalles?")
}

func TestClarification_FallsBackToModelReply(t *testing.T) {
	result := &models.ExtractionResult{Reply: "¿Cuántas pizzas quieres?"}
	assert.Equal(t, "¿Cuántas pizzas quieres?", Clarification(result))
}

func TestClarification_GenericFallback(t *testing.T) {
	text := Clarification(&models.ExtractionResult{})
	assert.Contains(t, text, "no entendí bien tu mensaje")
}

func TestInformational_PrefersModelReply(t *testing.T) {
	result := &models.ExtractionResult{Intent: models.IntentGreeting, Reply: "¡Hola! ¿En qué te puedo ayudar?"}
	assert.Equal(t, "¡Hola! ¿En qué te puedo ayudar?", Informational(result))
}

func TestInformational_EmptyReplyFallsBack(t *testing.T) {
	text := Informational(&models.ExtractionResult{Intent: models.IntentInquiry, Reply: "  "})
	assert.Contains(t, text, "no entendí bien tu mensaje")
}
