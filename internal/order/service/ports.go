package service

import (
	"context"

	cartdomain "github.com/fedotovn/placeorder/internal/cart/domain"
	catalogdomain "github.com/fedotovn/placeorder/internal/catalog/domain"
)

// Consumers define these interfaces, not the implementations.

type CartReader interface {
	GetCart(ctx context.Context, userID string) (*cartdomain.Cart, error)
}

type CatalogReader interface {
	GetProducts(ctx context.Context, productIDs []string) (map[string]catalogdomain.Product, error)
}

type IdempotencyChecker interface {
	Check(ctx context.Context, userID, key string) (string, error)
}

// CartInvalidator drops a cached cart after the placement commit deleted the
// stored one. Optional; a nil invalidator is a no-op.
type CartInvalidator interface {
	Delete(ctx context.Context, userID string) error
}
