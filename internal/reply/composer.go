// internal/reply/composer.go
package reply

import (
	"fmt"
	"strings"

	"orderbot-workers/internal/models"
)

const (
	// TechnicalDifficulties is sent when the pipeline itself fails and a
	// human will pick up the conversation.
	TechnicalDifficulties = "Estamos presentando dificultades técnicas. Un miembro de nuestro equipo te contactará en breve. 🙏"

	fallbackClarification = "Disculpa, no entendí bien tu mensaje. ¿Podrías repetirlo con otras palabras?"
)

// Confirmation renders the reply for a created order: the item list,
// the total, and the payment question.
func Confirmation(order *models.Order) string {
	var b strings.Builder
	b.WriteString("✅ ¡Pedido confirmado!\n\n")
	for _, item := range order.Items {
		b.WriteString(fmt.Sprintf("• %dx %s - $%.2f\n", item.Quantity, item.Name, item.UnitPrice*float64(item.Quantity)))
	}
	b.WriteString(fmt.Sprintf("\nTotal: $%.2f\n\n", order.Total))
	b.WriteString("¿Cómo deseas pagar? (efectivo / transferencia)")
	return b.String()
}

// Partial explains which items could not be fulfilled and proposes the
// order for the rest. Each dropped item carries its reason.
func Partial(result *models.ExtractionResult) string {
	var b strings.Builder
	b.WriteString("Revisé tu pedido y tengo algunas novedades:\n\n")

	for _, p := range result.Products {
		if p.InsufficientStock {
			b.WriteString(fmt.Sprintf("• %s: solo nos quedan %d unidades\n", p.MatchedName, p.StockAvailable))
		}
	}
	for _, name := range result.Unresolved {
		b.WriteString(fmt.Sprintf("• %s: no lo tenemos en el catálogo\n", name))
	}

	var available []models.ExtractedProduct
	for _, p := range result.Products {
		if !p.InsufficientStock {
			available = append(available, p)
		}
	}

	if len(available) > 0 {
		b.WriteString("\nPuedo confirmarte lo siguiente:\n")
		for _, p := range available {
			b.WriteString(fmt.Sprintf("• %dx %s - $%.2f\n", p.Quantity, p.MatchedName, p.UnitPrice*float64(p.Quantity)))
		}
		b.WriteString(fmt.Sprintf("\nTotal: $%.2f\n\n¿Deseas que lo confirme así?", result.Total))
	} else {
		b.WriteString("\n¿Te gustaría pedir otra cosa de nuestro catálogo?")
	}

	return b.String()
}

// Clarification asks the customer to resolve the open doubts from the
// extraction. Falls back to a generic re-ask when there is nothing
// concrete to echo.
func Clarification(result *models.ExtractionResult) string {
	if len(result.Uncertainty) == 0 && len(result.Unresolved) == 0 {
		if result.Reply != "" {
			return result.Reply
		}
		return fallbackClarification
	}

	var b strings.Builder
	b.WriteString("Para completar tu pedido necesito aclarar algo:\n\n")
	for _, u := range result.Uncertainty {
		b.WriteString(fmt.Sprintf("• %s\n", u))
	}
	for _, name := range result.Unresolved {
		b.WriteString(fmt.Sprintf("• No encontré \"%s\" en nuestro catálogo\n", name))
	}
	b.WriteString("\n¿Me ayudas con esos detalles?")
	return b.String()
}

// Informational returns the model's suggested reply for inquiries,
// greetings and complaints, with a safe fallback when the model gave
// none.
func Informational(result *models.ExtractionResult) string {
	if reply := strings.TrimSpace(result.Reply); reply != "" {
		return reply
	}
	return fallbackClarification
}
