package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fedotovn/placeorder/internal/cart/domain"
	"github.com/lib/pq"
	_ "github.com/lib/pq"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) CartRepository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	query := `SELECT user_id, lines, total_amount, currency, version, created_at, updated_at
	          FROM carts WHERE user_id = $1`

	var cart domain.Cart
	var linesJSON []byte
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&cart.UserID,
		&linesJSON,
		&cart.TotalAmount,
		&cart.Currency,
		&cart.Version,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}

	if err := json.Unmarshal(linesJSON, &cart.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart lines: %w", err)
	}
	return &cart, nil
}

func (r *postgresRepository) SaveCart(ctx context.Context, cart *domain.Cart, expectedVersion int64) (*domain.Cart, error) {
	linesJSON, err := json.Marshal(cart.Lines)
	if err != nil {
		return nil, fmt.Errorf("marshal cart lines: %w", err)
	}

	now := time.Now().UTC()
	saved := cart.Clone()
	saved.Version = expectedVersion + 1
	saved.UpdatedAt = now

	if expectedVersion == 0 {
		// No version was ever observed: the record must still be absent.
		query := `INSERT INTO carts (user_id, lines, total_amount, currency, version, created_at, updated_at)
		          VALUES ($1, $2, $3, $4, 1, $5, $5)
		          ON CONFLICT (user_id) DO NOTHING`
		res, err := r.db.ExecContext(ctx, query, cart.UserID, linesJSON, cart.TotalAmount, cart.Currency, now)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return nil, ErrVersionConflict
			}
			return nil, fmt.Errorf("insert cart: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil, ErrVersionConflict
		}
		saved.CreatedAt = now
		return saved, nil
	}

	query := `UPDATE carts
	          SET lines = $2, total_amount = $3, currency = $4, version = version + 1, updated_at = $5
	          WHERE user_id = $1 AND version = $6`
	res, err := r.db.ExecContext(ctx, query, cart.UserID, linesJSON, cart.TotalAmount, cart.Currency, now, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("update cart: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrVersionConflict
	}
	return saved, nil
}

func (r *postgresRepository) DeleteCart(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrCartNotFound
	}
	return nil
}
