package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Line is a value snapshot taken at commit time. Prices are the catalog
// prices at the moment the order was placed, decoupled from the catalog and
// from whatever price was captured when the item entered the cart.
type Line struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	Subtotal    float64 `json:"subtotal"`
}

// Order is immutable once created: only Status, PaymentStatus and UpdatedAt
// may change afterwards, and status only through ValidateTransition.
type Order struct {
	ID              uuid.UUID     `json:"id"`
	UserID          string        `json:"user_id"`
	OrderDate       time.Time     `json:"order_date"`
	Lines           []Line        `json:"lines"`
	TotalAmount     float64       `json:"total_amount"`
	Currency        string        `json:"currency"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	ShippingAddress Address       `json:"shipping_address"`
	PaymentMethod   string        `json:"payment_method"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
