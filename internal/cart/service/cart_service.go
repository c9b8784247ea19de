package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fedotovn/placeorder/internal/apperror"
	"github.com/fedotovn/placeorder/internal/cart/cache"
	"github.com/fedotovn/placeorder/internal/cart/domain"
	"github.com/fedotovn/placeorder/internal/cart/repository"
	catalogdomain "github.com/fedotovn/placeorder/internal/catalog/domain"
	catalogrepo "github.com/fedotovn/placeorder/internal/catalog/repository"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ProductReader is the catalog surface the cart service consumes.
type ProductReader interface {
	GetProduct(ctx context.Context, productID string) (catalogdomain.Product, error)
}

type CartService struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	catalog  ProductReader
	retrier  *Retrier
	currency string
	sfg      singleflight.Group // prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cartCache cache.CartCache, catalog ProductReader, currency string) *CartService {
	return &CartService{
		repo:     repo,
		cache:    cartCache,
		catalog:  catalog,
		retrier:  NewRetrier(repo, defaultMaxAttempts),
		currency: currency,
	}
}

// GetCart is the cache-first read path. An absent cart reads as an empty one.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cached, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.WithError(err).Warn("cart cache get failed, falling back to store")
		}

		cart, err := s.repo.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return domain.NewCart(userID, s.currency), nil
		}
		if err != nil {
			return nil, err
		}

		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Set(fillCtx, userID, cart); err != nil {
				log.WithError(err).Warn("cart cache set failed")
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// AddItem adds qty of productID to the user's cart, creating the cart on the
// first add. Stock and sellability are checked against the catalog, and
// re-checked on every retry against the then-current cart contents.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, qty int) (*domain.Cart, error) {
	// Mutations read the authoritative store, never the cache: a stale
	// version would only burn a retry attempt for nothing.
	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		cart = domain.NewCart(userID, s.currency)
	} else if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	apply := func(ctx context.Context, base *domain.Cart) (*domain.Cart, error) {
		if base == nil {
			// The cart disappeared between attempts (cleared or consumed by a
			// placed order); the add starts a fresh one.
			base = domain.NewCart(userID, s.currency)
		}
		product, err := s.checkProduct(ctx, productID, base.QuantityOf(productID)+qty)
		if err != nil {
			return nil, err
		}
		return base.AddLine(product.ID, product.Name, product.Price, qty), nil
	}

	next, err := apply(ctx, cart)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, userID, next, apply)
}

// UpdateQuantity replaces the quantity of productID in the user's cart.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID string, qty int) (*domain.Cart, error) {
	cart, err := s.getExistingCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	apply := func(ctx context.Context, base *domain.Cart) (*domain.Cart, error) {
		if base == nil {
			return nil, apperror.New(apperror.KindNotFound, "cart no longer exists")
		}
		if _, err := s.checkProduct(ctx, productID, qty); err != nil {
			return nil, err
		}
		next, err := base.SetQuantity(productID, qty)
		if errors.Is(err, domain.ErrLineNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "item not found in cart")
		}
		return next, err
	}

	next, err := apply(ctx, cart)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, userID, next, apply)
}

// RemoveItem removes the line for productID from the user's cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	cart, err := s.getExistingCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	apply := func(_ context.Context, base *domain.Cart) (*domain.Cart, error) {
		if base == nil {
			return nil, apperror.New(apperror.KindNotFound, "cart no longer exists")
		}
		next, err := base.RemoveLine(productID)
		if errors.Is(err, domain.ErrLineNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "item not found in cart")
		}
		return next, err
	}

	next, err := apply(ctx, cart)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, userID, next, apply)
}

// ClearCart destroys the user's cart. Clearing an absent cart is a no-op.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return fmt.Errorf("delete cart: %w", err)
	}
	s.invalidateCache(userID)
	return nil
}

func (s *CartService) persist(ctx context.Context, userID string, next *domain.Cart, rebuild RebuildFunc) (*domain.Cart, error) {
	saved, err := s.retrier.Execute(ctx, next, rebuild)
	if err != nil {
		var exhausted *ExhaustedError
		if errors.As(err, &exhausted) {
			return nil, apperror.Wrap(apperror.KindConflict, err.Error(), err)
		}
		return nil, err
	}
	s.invalidateCache(userID)
	return saved, nil
}

func (s *CartService) getExistingCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, apperror.New(apperror.KindNotFound, "cart not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return cart, nil
}

// checkProduct validates that productID can supply wantQty units right now.
func (s *CartService) checkProduct(ctx context.Context, productID string, wantQty int) (catalogdomain.Product, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if errors.Is(err, catalogrepo.ErrProductNotFound) {
		return catalogdomain.Product{}, apperror.New(apperror.KindNotFound, fmt.Sprintf("product %s does not exist", productID))
	}
	if err != nil {
		return catalogdomain.Product{}, fmt.Errorf("load product %s: %w", productID, err)
	}
	if !product.Sellable() {
		return catalogdomain.Product{}, apperror.WithViolations(apperror.KindValidation,
			"product cannot be added to cart",
			[]apperror.Violation{{
				ProductID: productID,
				Code:      "product_unavailable",
				Message:   fmt.Sprintf("product %s is not available for sale", productID),
			}})
	}
	if product.Stock < wantQty {
		return catalogdomain.Product{}, apperror.WithViolations(apperror.KindConflict,
			"product cannot be added to cart",
			[]apperror.Violation{{
				ProductID: productID,
				Code:      "insufficient_stock",
				Message:   fmt.Sprintf("product %s has %d in stock, %d requested", productID, product.Stock, wantQty),
			}})
	}
	return product, nil
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		log.WithField("user_id", userID).WithError(err).Warn("cart cache invalidate failed")
	}
}
