// internal/extraction/validator.go
package extraction

import (
	"fmt"
	"strings"

	"orderbot-workers/internal/models"
)

// Validate reconciles an extraction against the tenant's live catalog.
// The catalog is the source of truth for names, prices and stock: any
// claim the model made about those is replaced here.
//
// Resolution per product, in order:
//  1. exact name match, case-insensitive
//  2. substring match in either direction against catalog names
//
// A substring match with more than one candidate is not guessable, so
// the product is demoted to an uncertainty instead of picking one.
// Unmatched products are dropped into Unresolved.
func Validate(result *models.ExtractionResult, catalog []models.Product) {
	var resolved []models.ExtractedProduct
	var unresolved []string

	for _, p := range result.Products {
		match, candidates := resolve(p.RequestedName, catalog)
		switch {
		case match != nil:
			p.MatchedName = match.Name
			p.ProductID = match.ID
			p.UnitPrice = match.Price
			p.StockAvailable = match.Stock
			if match.TrackStock && !match.InStock(p.Quantity) {
				p.InsufficientStock = true
			}
			resolved = append(resolved, p)
		case len(candidates) > 1:
			result.Uncertainty = append(result.Uncertainty, fmt.Sprintf(
				"\"%s\" coincide con varios productos: %s", p.RequestedName, strings.Join(candidates, ", ")))
		default:
			unresolved = append(unresolved, p.RequestedName)
		}
	}

	result.Products = resolved
	result.Unresolved = unresolved

	// Recompute from catalog prices; the model's total is never trusted.
	var total float64
	for _, p := range result.Products {
		if !p.InsufficientStock {
			total += p.UnitPrice * float64(p.Quantity)
		}
	}
	result.Total = total
}

// resolve finds at most one catalog product for the requested name.
// Returns the match, or the candidate names when ambiguous.
func resolve(requested string, catalog []models.Product) (*models.Product, []string) {
	needle := strings.ToLower(strings.TrimSpace(requested))
	if needle == "" {
		return nil, nil
	}

	for i := range catalog {
		if !catalog[i].Available {
			continue
		}
		if strings.ToLower(catalog[i].Name) == needle {
			return &catalog[i], nil
		}
	}

	var candidates []*models.Product
	for i := range catalog {
		if !catalog[i].Available {
			continue
		}
		name := strings.ToLower(catalog[i].Name)
		if strings.Contains(name, needle) || strings.Contains(needle, name) {
			candidates = append(candidates, &catalog[i])
		}
	}

	if len(candidates) == 1 {
		return candidates[0], nil
	}
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	return nil, names
}
