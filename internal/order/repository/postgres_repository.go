package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fedotovn/placeorder/internal/idempotency"
	"github.com/fedotovn/placeorder/internal/order/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "github.com/lib/pq"
)

// ReservationInserter is the write side of the idempotency ledger, composed
// into the placement transaction.
type ReservationInserter interface {
	InsertTx(ctx context.Context, tx *sql.Tx, res idempotency.Reservation) error
}

type postgresRepository struct {
	db     *sql.DB
	ledger ReservationInserter
}

func NewPostgresRepository(db *sql.DB, ledger ReservationInserter) OrderRepository {
	return &postgresRepository{db: db, ledger: ledger}
}

// PlaceOrder runs the five effect families in one transaction, checking each
// operation's precondition as it executes. The first rejected precondition
// aborts the transaction and is reported with its role; nothing partial is
// ever visible outside the transaction.
func (r *postgresRepository) PlaceOrder(ctx context.Context, p Placement) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin placement tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.insertOrderTx(ctx, tx, p.Order); err != nil {
		return err
	}

	for _, dec := range p.Decrements {
		query := `UPDATE products SET stock = stock - $2, updated_at = $3
		          WHERE id = $1 AND stock >= $2 AND status = 'active'`
		res, err := tx.ExecContext(ctx, query, dec.ProductID, dec.Quantity, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("decrement stock for %s: %w", dec.ProductID, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return &CommitError{
				Role:      RoleStockDecrement,
				ProductID: dec.ProductID,
				Err:       errors.New("stock precondition failed"),
			}
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, p.CartUserID)
	if err != nil {
		return fmt.Errorf("delete cart for %s: %w", p.CartUserID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &CommitError{Role: RoleCartDelete, Err: errors.New("cart no longer exists")}
	}

	if p.Reservation != nil {
		err := r.ledger.InsertTx(ctx, tx, idempotency.Reservation{
			Key:     p.Reservation.Key,
			UserID:  p.Reservation.UserID,
			OrderID: p.Order.ID.String(),
		})
		if errors.Is(err, idempotency.ErrKeyTaken) {
			return &CommitError{Role: RoleIdempotencyReserve, Err: err}
		}
		if err != nil {
			return err
		}
	}

	if p.Event != nil {
		query := `INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at)
		          VALUES ($1, $2, $3, $4)`
		// The outbox insert has no precondition, so any failure here is
		// infrastructural and propagates unclassified.
		if _, err := tx.ExecContext(ctx, query, p.Event.AggregateID, p.Event.EventType, p.Event.Payload, time.Now().UTC()); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit placement tx: %w", err)
	}
	return nil
}

func (r *postgresRepository) insertOrderTx(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	linesJSON, err := json.Marshal(order.Lines)
	if err != nil {
		return fmt.Errorf("marshal order lines: %w", err)
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	query := `INSERT INTO orders (id, user_id, order_date, lines, total_amount, currency, status,
	                              payment_status, shipping_address, payment_method, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

	_, insertErr := tx.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.OrderDate,
		linesJSON,
		order.TotalAmount,
		order.Currency,
		order.Status,
		order.PaymentStatus,
		addressJSON,
		order.PaymentMethod,
		order.CreatedAt,
	)
	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return &CommitError{Role: RoleOrderCreate, Err: insertErr}
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

const orderColumns = `id, user_id, order_date, lines, total_amount, currency, status,
	payment_status, shipping_address, payment_method, created_at, updated_at`

func (r *postgresRepository) GetOrder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`
	return r.scanOrder(r.db.QueryRowContext(ctx, query, orderID, userID))
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOrder(r.db.QueryRowContext(ctx, query, orderID))
}

func (r *postgresRepository) scanOrder(row *sql.Row) (*domain.Order, error) {
	var order domain.Order
	var linesJSON, addressJSON []byte
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.OrderDate,
		&linesJSON,
		&order.TotalAmount,
		&order.Currency,
		&order.Status,
		&order.PaymentStatus,
		&addressJSON,
		&order.PaymentMethod,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if err := json.Unmarshal(linesJSON, &order.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal order lines: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	return &order, nil
}

func (r *postgresRepository) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var order domain.Order
		var linesJSON, addressJSON []byte
		if err := rows.Scan(
			&order.ID,
			&order.UserID,
			&order.OrderDate,
			&linesJSON,
			&order.TotalAmount,
			&order.Currency,
			&order.Status,
			&order.PaymentStatus,
			&addressJSON,
			&order.PaymentMethod,
			&order.CreatedAt,
			&order.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		if err := json.Unmarshal(linesJSON, &order.Lines); err != nil {
			return nil, fmt.Errorf("unmarshal order lines: %w", err)
		}
		if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
		orders = append(orders, &order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to domain.Status) error {
	query := `UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, orderID, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *postgresRepository) UnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events WHERE published_at IS NULL ORDER BY id ASC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *postgresRepository) MarkEventPublished(ctx context.Context, eventID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET published_at = $2 WHERE id = $1`, eventID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}
	return nil
}
