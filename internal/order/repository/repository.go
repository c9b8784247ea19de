package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fedotovn/placeorder/internal/order/domain"
	"github.com/google/uuid"
)

var ErrOrderNotFound = errors.New("order not found")

// ErrStatusConflict means the conditional status update matched no row: the
// order advanced concurrently or does not exist.
var ErrStatusConflict = errors.New("order status changed concurrently")

// OpRole tags each operation of the placement commit by its logical role, so
// a rejected commit is classified by role rather than by position.
type OpRole string

const (
	RoleOrderCreate        OpRole = "order-create"
	RoleStockDecrement     OpRole = "stock-decrement"
	RoleCartDelete         OpRole = "cart-delete"
	RoleIdempotencyReserve OpRole = "idempotency-reserve"
)

// CommitError reports which operation of an all-or-nothing placement commit
// was rejected. ProductID is set only for RoleStockDecrement.
type CommitError struct {
	Role      OpRole
	ProductID string
	Err       error
}

func (e *CommitError) Error() string {
	if e.ProductID != "" {
		return fmt.Sprintf("placement commit rejected at %s[%s]: %v", e.Role, e.ProductID, e.Err)
	}
	return fmt.Sprintf("placement commit rejected at %s: %v", e.Role, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// StockDecrement is one conditional decrement of the placement commit. It
// only succeeds while remaining stock covers Quantity and the product is
// still sellable.
type StockDecrement struct {
	ProductID string
	Quantity  int
}

// KeyReservation is the conditional idempotency insert composed into the
// commit when the caller supplied a token.
type KeyReservation struct {
	Key    string
	UserID string
}

// Placement is the full role-tagged operation set of one order placement.
// All operations are observed as all-or-nothing.
type Placement struct {
	Order       *domain.Order
	Decrements  []StockDecrement
	CartUserID  string
	Reservation *KeyReservation // nil when no idempotency key was supplied
	Event       *OutboxEvent
}

// OutboxEvent rides inside the placement commit and is relayed to the broker
// by the outbox publisher.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type OrderRepository interface {
	// PlaceOrder submits the placement as a single atomic commit. A rejected
	// precondition is reported as a *CommitError; infrastructure failures
	// propagate unclassified.
	PlaceOrder(ctx context.Context, p Placement) error

	GetOrder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error)
	GetOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)

	// UpdateStatus persists the transition from -> to, conditioned on the
	// stored status still being from. ErrStatusConflict on a lost race.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to domain.Status) error

	UnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventPublished(ctx context.Context, eventID int64) error
}
