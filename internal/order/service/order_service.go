package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fedotovn/placeorder/internal/apperror"
	cartdomain "github.com/fedotovn/placeorder/internal/cart/domain"
	cartrepo "github.com/fedotovn/placeorder/internal/cart/repository"
	catalogdomain "github.com/fedotovn/placeorder/internal/catalog/domain"
	"github.com/fedotovn/placeorder/internal/idempotency"
	"github.com/fedotovn/placeorder/internal/order/domain"
	"github.com/fedotovn/placeorder/internal/order/repository"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const eventOrderCreated = "order.created"

type PlaceOrderInput struct {
	UserID          string
	ShippingAddress domain.Address
	PaymentMethod   string
	IdempotencyKey  string
}

// OrderService converts a user's cart into an immutable order under one
// atomic multi-record commit: order create, per-line stock decrements, cart
// delete and the optional idempotency reserve all succeed or fail together.
type OrderService struct {
	carts   CartReader
	catalog CatalogReader
	ledger  IdempotencyChecker
	orders  repository.OrderRepository
	cache   CartInvalidator
}

func NewOrderService(carts CartReader, catalog CatalogReader, ledger IdempotencyChecker, orders repository.OrderRepository, cache CartInvalidator) *OrderService {
	return &OrderService{
		carts:   carts,
		catalog: catalog,
		ledger:  ledger,
		orders:  orders,
		cache:   cache,
	}
}

// PlaceOrder implements the placement flow end to end. The returned bool
// distinguishes a freshly created order (false) from one replayed through the
// idempotency ledger (true).
func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*domain.Order, bool, error) {
	if in.IdempotencyKey != "" {
		order, err := s.checkIdempotency(ctx, in.UserID, in.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if order != nil {
			return order, true, nil
		}
	}

	cart, err := s.carts.GetCart(ctx, in.UserID)
	if errors.Is(err, cartrepo.ErrCartNotFound) {
		return nil, false, apperror.New(apperror.KindValidation, "cart is empty")
	}
	if err != nil {
		return nil, false, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, false, apperror.New(apperror.KindValidation, "cart is empty")
	}

	products, err := s.catalog.GetProducts(ctx, distinctProductIDs(cart))
	if err != nil {
		return nil, false, fmt.Errorf("resolve cart products: %w", err)
	}

	if err := validateLines(cart, products); err != nil {
		return nil, false, err
	}

	order := buildOrder(cart, products, in)

	payload, err := orderCreatedPayload(order)
	if err != nil {
		return nil, false, err
	}

	placement := repository.Placement{
		Order:      order,
		Decrements: make([]repository.StockDecrement, 0, len(order.Lines)),
		CartUserID: in.UserID,
		Event: &repository.OutboxEvent{
			AggregateID: order.ID.String(),
			EventType:   eventOrderCreated,
			Payload:     payload,
		},
	}
	for _, line := range order.Lines {
		placement.Decrements = append(placement.Decrements, repository.StockDecrement{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}
	if in.IdempotencyKey != "" {
		placement.Reservation = &repository.KeyReservation{Key: in.IdempotencyKey, UserID: in.UserID}
	}

	if err := s.orders.PlaceOrder(ctx, placement); err != nil {
		return s.classifyCommitFailure(ctx, in, err)
	}

	s.invalidateCart(ctx, in.UserID)

	log.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"total":    order.TotalAmount,
	}).Info("order placed")
	return order, false, nil
}

func (s *OrderService) checkIdempotency(ctx context.Context, userID, key string) (*domain.Order, error) {
	orderID, err := s.ledger.Check(ctx, userID, key)
	if errors.Is(err, idempotency.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check idempotency: %w", err)
	}

	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, fmt.Errorf("idempotency record holds malformed order id %q: %w", orderID, err)
	}
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load order from idempotency hit: %w", err)
	}
	return order, nil
}

// classifyCommitFailure inspects a rejected placement commit by the failed
// operation's role. An unclassified infrastructure failure propagates
// unchanged.
func (s *OrderService) classifyCommitFailure(ctx context.Context, in PlaceOrderInput, err error) (*domain.Order, bool, error) {
	var commitErr *repository.CommitError
	if !errors.As(err, &commitErr) {
		return nil, false, err
	}

	switch commitErr.Role {
	case repository.RoleIdempotencyReserve:
		// A concurrent duplicate submission holds the reservation. If it has
		// already committed its order, return that order idempotently.
		order, checkErr := s.checkIdempotency(ctx, in.UserID, in.IdempotencyKey)
		if checkErr != nil {
			return nil, false, checkErr
		}
		if order != nil {
			return order, true, nil
		}
		return nil, false, apperror.Wrap(apperror.KindConflict,
			"a duplicate submission is in progress, retry shortly", err)

	case repository.RoleStockDecrement:
		return nil, false, apperror.WithViolations(apperror.KindConflict,
			"order could not be placed",
			[]apperror.Violation{{
				ProductID: commitErr.ProductID,
				Code:      "insufficient_stock",
				Message:   fmt.Sprintf("product %s is no longer available or has insufficient stock", commitErr.ProductID),
			}})

	case repository.RoleCartDelete:
		return nil, false, apperror.Wrap(apperror.KindConflict, "cart changed concurrently", err)

	default:
		return nil, false, apperror.Wrap(apperror.KindConflict, "order placement conflicted, retry", err)
	}
}

func (s *OrderService) invalidateCart(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		log.WithField("user_id", userID).WithError(err).Warn("failed to invalidate cart cache")
	}
}

func distinctProductIDs(cart *cartdomain.Cart) []string {
	seen := make(map[string]struct{}, len(cart.Lines))
	ids := make([]string, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}

func orderCreatedPayload(order *domain.Order) ([]byte, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":     order.ID,
		"user_id":      order.UserID,
		"lines":        order.Lines,
		"total_amount": order.TotalAmount,
		"currency":     order.Currency,
		"created_at":   order.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order created payload: %w", err)
	}
	return payload, nil
}

func buildOrder(cart *cartdomain.Cart, products map[string]catalogdomain.Product, in PlaceOrderInput) *domain.Order {
	now := time.Now().UTC()
	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          in.UserID,
		OrderDate:       now,
		Lines:           make([]domain.Line, 0, len(cart.Lines)),
		Currency:        cart.Currency,
		Status:          domain.StatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var total float64
	for _, line := range cart.Lines {
		// Snapshot the current catalog price, not the price captured when the
		// item entered the cart.
		product := products[line.ProductID]
		subtotal := product.Price * float64(line.Quantity)
		order.Lines = append(order.Lines, domain.Line{
			ID:          line.ID,
			ProductID:   line.ProductID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    line.Quantity,
			Subtotal:    subtotal,
		})
		total += subtotal
	}
	order.TotalAmount = total
	return order
}
