// Package idempotency maps client-supplied submission tokens to completed
// orders, giving at-most-once order creation inside a bounded window.
package idempotency

import (
	"context"
	"errors"
	"time"
)

var ErrKeyNotFound = errors.New("idempotency key not found")

// DefaultRetention is how long a reservation is consulted after creation.
// After the window the same token may legitimately produce a second order.
const DefaultRetention = 300 * time.Second

// Reservation binds a client token to the order a submission produced. The
// insert is composed into the order-placement commit, never executed
// standalone; uniqueness of Key is enforced by the store.
type Reservation struct {
	Key     string
	UserID  string
	OrderID string
}

type Record struct {
	Key       string
	UserID    string
	OrderID   string
	CreatedAt time.Time
}

// Ledger is the read side consumed by the order service.
type Ledger interface {
	// Check returns the order id previously bound to (userID, key), or
	// ErrKeyNotFound. A record bound to a different user is a miss, not an
	// error, as is a record older than the retention window.
	Check(ctx context.Context, userID, key string) (string, error)
}

// matchRecord decides whether rec satisfies a lookup by userID at time now.
// A cross-user match is reported separately so callers can log it.
func matchRecord(rec Record, userID string, now time.Time, retention time.Duration) (ok, crossUser bool) {
	if now.Sub(rec.CreatedAt) > retention {
		return false, false
	}
	if rec.UserID != userID {
		return false, true
	}
	return true, false
}
