package repository

import (
	"context"
	"errors"

	"github.com/fedotovn/placeorder/internal/cart/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	// ErrVersionConflict means the stored cart version no longer matches the
	// version the caller observed; the mutation must be rebuilt and retried.
	ErrVersionConflict = errors.New("cart version conflict")
)

// CartRepository defines the interface for cart persistence.
// Consumers define this interface, not the Postgres implementation.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)

	// SaveCart persists cart only if the stored version equals expectedVersion
	// (expectedVersion 0 requires the record to be absent). On success the
	// returned cart carries version expectedVersion+1.
	SaveCart(ctx context.Context, cart *domain.Cart, expectedVersion int64) (*domain.Cart, error)

	DeleteCart(ctx context.Context, userID string) error
}
