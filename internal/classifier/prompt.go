// internal/classifier/prompt.go
package classifier

import (
	"fmt"
	"strings"

	"orderbot-workers/internal/models"
)

// businessTypes maps product-name keywords to a business label used in
// the prompt. Matching is substring, case-insensitive, first hit wins.
var businessTypes = []struct {
	keywords []string
	label    string
}{
	{[]string{"pizza", "hamburguesa", "burger", "empanada", "taco", "arepa", "sushi", "pollo"}, "restaurante de comida"},
	{[]string{"cafe", "café", "capuchino", "latte", "croissant", "torta", "pastel"}, "cafetería"},
	{[]string{"pan", "baguette", "galleta", "bizcocho"}, "panadería"},
	{[]string{"medicamento", "acetaminofen", "ibuprofeno", "jarabe", "vitamina"}, "farmacia"},
	{[]string{"arroz", "aceite", "leche", "huevo", "azucar", "azúcar", "frijol"}, "tienda de abarrotes"},
	{[]string{"camisa", "pantalon", "pantalón", "vestido", "zapato", "gorra"}, "tienda de ropa"},
	{[]string{"flor", "rosa", "ramo", "orquidea", "orquídea"}, "floristería"},
}

// InferBusinessType derives a business label from the catalog so the
// prompt reads naturally for each tenant. Falls back to a generic label
// when nothing matches.
func InferBusinessType(products []models.Product) string {
	for _, bt := range businessTypes {
		for _, p := range products {
			name := strings.ToLower(p.Name)
			for _, kw := range bt.keywords {
				if strings.Contains(name, kw) {
					return bt.label
				}
			}
		}
	}
	return "comercio"
}

// BuildSystemPrompt renders the classification instructions with the
// tenant's live catalog embedded, including price and stock state.
func BuildSystemPrompt(products []models.Product) string {
	var parts []string

	businessType := InferBusinessType(products)
	parts = append(parts, fmt.Sprintf("Eres el asistente virtual de un %s. Atiendes clientes por chat en español.", businessType))
	parts = append(parts, "\nCatálogo actual:")

	for _, p := range products {
		line := fmt.Sprintf("- %s: $%.2f", p.Name, p.Price)
		if !p.Available {
			line += " (no disponible)"
		} else if p.TrackStock && p.Stock <= 0 {
			line += " (agotado)"
		}
		if p.Description != "" {
			line += " - " + p.Description
		}
		parts = append(parts, line)
	}

	parts = append(parts, "\nAnaliza el último mensaje del cliente y responde ÚNICAMENTE con un objeto JSON con esta forma:")
	parts = append(parts, `{`)
	parts = append(parts, `  "intent": "order" | "inquiry" | "complaint" | "greeting" | "unknown",`)
	parts = append(parts, `  "products": [{"name": "<nombre del catálogo>", "quantity": <entero>, "originalRequest": "<texto del cliente>"}],`)
	parts = append(parts, `  "uncertainty": ["<dudas o ambigüedades>"],`)
	parts = append(parts, `  "confidence": <número entre 0.0 y 1.0>,`)
	parts = append(parts, `  "reply": "<respuesta sugerida en español>"`)
	parts = append(parts, `}`)

	parts = append(parts, "\nReglas:")
	parts = append(parts, "- Usa los nombres exactos del catálogo cuando reconozcas un producto")
	parts = append(parts, "- Si el cliente pide algo que no está en el catálogo, inclúyelo igual y bájale la confianza")
	parts = append(parts, "- Si falta la cantidad, asume 1 y anótalo en uncertainty")
	parts = append(parts, "- No inventes productos ni precios")

	return strings.Join(parts, "\n")
}
