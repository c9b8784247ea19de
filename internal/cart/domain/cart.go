package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrLineNotFound = errors.New("line not found in cart")

type Line struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	Subtotal    float64 `json:"subtotal"`
}

// Cart is the versioned per-user cart aggregate. There is at most one live
// cart per user; Version increases by exactly one on every persisted save.
type Cart struct {
	UserID      string    `json:"user_id"`
	Lines       []Line    `json:"lines"`
	TotalAmount float64   `json:"total_amount"`
	Currency    string    `json:"currency"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewCart(userID, currency string) *Cart {
	now := time.Now().UTC()
	return &Cart{
		UserID:    userID,
		Lines:     []Line{},
		Currency:  currency,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// QuantityOf returns the quantity of productID already in the cart, 0 if absent.
func (c *Cart) QuantityOf(productID string) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return c.Lines[i].Quantity
		}
	}
	return 0
}

func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Lines = make([]Line, len(c.Lines))
	copy(cp.Lines, c.Lines)
	return &cp
}

// AddLine returns a new cart with quantity of productID increased by qty.
// A line for a product already in the cart is merged; line order is preserved.
// The receiver is never modified: persisting the result is a separate,
// explicit step, which is what makes retry-with-reapply possible.
func (c *Cart) AddLine(productID, productName string, unitPrice float64, qty int) *Cart {
	next := c.Clone()
	for i := range next.Lines {
		if next.Lines[i].ProductID == productID {
			next.Lines[i].Quantity += qty
			next.Lines[i].ProductName = productName
			next.Lines[i].UnitPrice = unitPrice
			next.recompute()
			return next
		}
	}
	next.Lines = append(next.Lines, Line{
		ID:          uuid.NewString(),
		ProductID:   productID,
		ProductName: productName,
		UnitPrice:   unitPrice,
		Quantity:    qty,
	})
	next.recompute()
	return next
}

// SetQuantity returns a new cart with the quantity of productID replaced.
func (c *Cart) SetQuantity(productID string, qty int) (*Cart, error) {
	next := c.Clone()
	for i := range next.Lines {
		if next.Lines[i].ProductID == productID {
			next.Lines[i].Quantity = qty
			next.recompute()
			return next, nil
		}
	}
	return nil, ErrLineNotFound
}

// RemoveLine returns a new cart without the line for productID.
func (c *Cart) RemoveLine(productID string) (*Cart, error) {
	next := c.Clone()
	for i := range next.Lines {
		if next.Lines[i].ProductID == productID {
			next.Lines = append(next.Lines[:i], next.Lines[i+1:]...)
			next.recompute()
			return next, nil
		}
	}
	return nil, ErrLineNotFound
}

// recompute restores the aggregate invariants: every line subtotal is
// price x quantity and the total is the sum of subtotals.
func (c *Cart) recompute() {
	var total float64
	for i := range c.Lines {
		c.Lines[i].Subtotal = c.Lines[i].UnitPrice * float64(c.Lines[i].Quantity)
		total += c.Lines[i].Subtotal
	}
	c.TotalAmount = total
	c.UpdatedAt = time.Now().UTC()
}
