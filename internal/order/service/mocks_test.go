package service

import (
	"context"
	"sync"

	cartdomain "github.com/fedotovn/placeorder/internal/cart/domain"
	catalogdomain "github.com/fedotovn/placeorder/internal/catalog/domain"
	"github.com/fedotovn/placeorder/internal/idempotency"
	"github.com/fedotovn/placeorder/internal/order/domain"
	"github.com/fedotovn/placeorder/internal/order/repository"
	"github.com/google/uuid"
)

type mockCartReader struct {
	cart *cartdomain.Cart
	err  error
}

func (m *mockCartReader) GetCart(context.Context, string) (*cartdomain.Cart, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.cart, nil
}

type mockCatalogReader struct {
	products map[string]catalogdomain.Product
	err      error
}

func (m *mockCatalogReader) GetProducts(_ context.Context, ids []string) (map[string]catalogdomain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	found := make(map[string]catalogdomain.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

// mockLedger answers Check from a queue so a test can script a miss followed
// by a hit, which is how a lost reservation race looks.
type mockLedger struct {
	m       sync.Mutex
	results []ledgerResult
	checks  int
}

type ledgerResult struct {
	orderID string
	err     error
}

func (m *mockLedger) Check(context.Context, string, string) (string, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.checks++
	if len(m.results) == 0 {
		return "", idempotency.ErrKeyNotFound
	}
	res := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return res.orderID, res.err
}

func (m *mockLedger) checkCount() int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.checks
}

type mockOrderRepo struct {
	m         sync.Mutex
	placeErr  error
	placement *repository.Placement
	orders    map[uuid.UUID]*domain.Order
	updateErr error
	events    []*repository.OutboxEvent
	published []int64
}

func (m *mockOrderRepo) PlaceOrder(_ context.Context, p repository.Placement) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.placement = &p
	if m.placeErr != nil {
		return m.placeErr
	}
	if m.orders == nil {
		m.orders = make(map[uuid.UUID]*domain.Order)
	}
	m.orders[p.Order.ID] = p.Order
	return nil
}

func (m *mockOrderRepo) GetOrder(_ context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	order, ok := m.orders[orderID]
	if !ok || order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *mockOrderRepo) GetOrderByID(_ context.Context, orderID uuid.UUID) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *mockOrderRepo) ListOrdersByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	var out []*domain.Order
	for _, order := range m.orders {
		if order.UserID == userID {
			cp := *order
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, orderID uuid.UUID, from, to domain.Status) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	order, ok := m.orders[orderID]
	if !ok || order.Status != from {
		return repository.ErrStatusConflict
	}
	order.Status = to
	return nil
}

func (m *mockOrderRepo) UnpublishedEvents(context.Context, int) ([]*repository.OutboxEvent, error) {
	m.m.Lock()
	defer m.m.Unlock()
	return m.events, nil
}

func (m *mockOrderRepo) MarkEventPublished(_ context.Context, eventID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.published = append(m.published, eventID)
	return nil
}

func (m *mockOrderRepo) lastPlacement() *repository.Placement {
	m.m.Lock()
	defer m.m.Unlock()
	return m.placement
}

type mockInvalidator struct {
	m       sync.Mutex
	deletes int
	err     error
}

func (m *mockInvalidator) Delete(context.Context, string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	return m.err
}

func (m *mockInvalidator) deleteCount() int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.deletes
}
