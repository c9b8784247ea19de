package service

import (
	"context"
	"sync"

	"github.com/fedotovn/placeorder/internal/cart/cache"
	"github.com/fedotovn/placeorder/internal/cart/domain"
	"github.com/fedotovn/placeorder/internal/cart/repository"
	catalogdomain "github.com/fedotovn/placeorder/internal/catalog/domain"
	catalogrepo "github.com/fedotovn/placeorder/internal/catalog/repository"
)

// mockCartRepo keeps a single cart in memory with the same conditional-save
// semantics as the real store: a save only lands when expectedVersion matches
// the stored version (0 meaning "no cart stored yet").
type mockCartRepo struct {
	m       sync.Mutex
	cart    *domain.Cart
	getErr  error
	saveErr error
	saves   int
}

func (m *mockCartRepo) GetCart(context.Context, string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.cart == nil {
		return nil, repository.ErrCartNotFound
	}
	return m.cart.Clone(), nil
}

func (m *mockCartRepo) SaveCart(_ context.Context, cart *domain.Cart, expectedVersion int64) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.saves++
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	var stored int64
	if m.cart != nil {
		stored = m.cart.Version
	}
	if expectedVersion != stored {
		return nil, repository.ErrVersionConflict
	}
	saved := cart.Clone()
	saved.Version = expectedVersion + 1
	m.cart = saved
	return saved.Clone(), nil
}

func (m *mockCartRepo) DeleteCart(context.Context, string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.cart == nil {
		return repository.ErrCartNotFound
	}
	m.cart = nil
	return nil
}

func (m *mockCartRepo) storedCart() *domain.Cart {
	m.m.Lock()
	defer m.m.Unlock()
	if m.cart == nil {
		return nil
	}
	return m.cart.Clone()
}

func (m *mockCartRepo) saveCount() int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.saves
}

type mockCache struct {
	m       sync.RWMutex
	cart    *domain.Cart
	err     error
	deletes int
}

func (m *mockCache) Get(context.Context, string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return nil, cache.ErrCacheMiss
	}
	return m.cart, nil
}

func (m *mockCache) Set(_ context.Context, _ string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = cart
	return m.err
}

func (m *mockCache) Delete(context.Context, string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = nil
	m.deletes++
	return m.err
}

func (m *mockCache) getCart() *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.cart
}

func (m *mockCache) deleteCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.deletes
}

type mockCatalog struct {
	m        sync.RWMutex
	products map[string]catalogdomain.Product
	err      error
}

func (m *mockCatalog) GetProduct(_ context.Context, productID string) (catalogdomain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return catalogdomain.Product{}, m.err
	}
	p, ok := m.products[productID]
	if !ok {
		return catalogdomain.Product{}, catalogrepo.ErrProductNotFound
	}
	return p, nil
}
