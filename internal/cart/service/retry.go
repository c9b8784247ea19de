package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fedotovn/placeorder/internal/cart/domain"
	"github.com/fedotovn/placeorder/internal/cart/repository"
)

const (
	defaultMaxAttempts = 3
	baseBackoff        = 100 * time.Millisecond
)

// ExhaustedError reports a mutation that still conflicted after every
// attempt. Attempts is the number of saves tried.
type ExhaustedError struct {
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("cart modified concurrently, gave up after %d attempts", e.Attempts)
}

// RebuildFunc re-derives the caller's intended mutation against the freshest
// stored state. latest is nil when the cart was concurrently cleared; the
// rebuild must handle that distinctly from a mere version advance, and must
// re-check any external preconditions (stock, price) rather than replay a
// stale decision.
type RebuildFunc func(ctx context.Context, latest *domain.Cart) (*domain.Cart, error)

// Retrier persists cart mutations under optimistic concurrency. On a version
// conflict it backs off, re-reads the stored cart and reapplies the caller's
// intent through rebuild. Blind overwrites are structurally impossible.
type Retrier struct {
	repo        repository.CartRepository
	maxAttempts int
}

func NewRetrier(repo repository.CartRepository, maxAttempts int) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Retrier{repo: repo, maxAttempts: maxAttempts}
}

func (r *Retrier) Execute(ctx context.Context, initial *domain.Cart, rebuild RebuildFunc) (*domain.Cart, error) {
	cart := initial
	for attempt := 1; ; attempt++ {
		saved, err := r.repo.SaveCart(ctx, cart, cart.Version)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		if attempt >= r.maxAttempts {
			return nil, &ExhaustedError{Attempts: attempt}
		}

		if err := sleep(ctx, backoff(attempt)); err != nil {
			return nil, err
		}

		latest, err := r.repo.GetCart(ctx, cart.UserID)
		if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
			return nil, err
		}
		// latest stays nil on ErrCartNotFound: the entity disappeared, it did
		// not merely advance.
		cart, err = rebuild(ctx, latest)
		if err != nil {
			return nil, err
		}
	}
}

// backoff returns 100ms x 2^(attempt-1), doubling after each conflicted
// save. With three attempts only the 100ms and 200ms pauses occur.
func backoff(attempt int) time.Duration {
	return baseBackoff << (attempt - 1)
}

// sleep pauses cooperatively without blocking other concurrent work.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
