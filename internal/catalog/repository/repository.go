package repository

import (
	"context"
	"errors"

	"github.com/fedotovn/placeorder/internal/catalog/domain"
)

var ErrProductNotFound = errors.New("product not found")

// ProductReader is the catalog surface the cart and order services consume.
type ProductReader interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)

	// GetProducts resolves the given ids in one round trip. Missing products
	// are simply absent from the result, not an error; callers decide what an
	// absence means.
	GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}
