package service

import (
	"fmt"

	"github.com/fedotovn/placeorder/internal/apperror"
	cartdomain "github.com/fedotovn/placeorder/internal/cart/domain"
	catalogdomain "github.com/fedotovn/placeorder/internal/catalog/domain"
)

// validateLines checks every cart line against the catalog and collects every
// violation before deciding the outcome; it never fails fast. The whole
// failure is classified by the most severe violation present:
// stock insufficiency > product not found > generic validation.
func validateLines(cart *cartdomain.Cart, products map[string]catalogdomain.Product) error {
	var violations []apperror.Violation
	kind := apperror.KindValidation

	for _, line := range cart.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			violations = append(violations, apperror.Violation{
				ProductID: line.ProductID,
				Code:      "product_not_found",
				Message:   fmt.Sprintf("product %s does not exist", line.ProductID),
			})
			if kind == apperror.KindValidation {
				kind = apperror.KindNotFound
			}
			continue
		}
		if !product.Sellable() {
			violations = append(violations, apperror.Violation{
				ProductID: line.ProductID,
				Code:      "product_unavailable",
				Message:   fmt.Sprintf("product %s is not available for sale", line.ProductID),
			})
			continue
		}
		if product.Stock < line.Quantity {
			violations = append(violations, apperror.Violation{
				ProductID: line.ProductID,
				Code:      "insufficient_stock",
				Message:   fmt.Sprintf("product %s has %d in stock, %d requested", line.ProductID, product.Stock, line.Quantity),
			})
			// Stock reflects contention on a resource that moves
			// independently of this request, so it outranks the rest.
			kind = apperror.KindConflict
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return apperror.WithViolations(kind, "cart failed validation", violations)
}
