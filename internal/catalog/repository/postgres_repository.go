package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fedotovn/placeorder/internal/catalog/domain"
	"github.com/lib/pq"
	_ "github.com/lib/pq"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) ProductReader {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	query := `SELECT id, name, price, stock, status FROM products WHERE id = $1`

	var p domain.Product
	err := r.db.QueryRowContext(ctx, query, productID).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (r *postgresRepository) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if len(productIDs) == 0 {
		return map[string]domain.Product{}, nil
	}

	query := `SELECT id, name, price, stock, status FROM products WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make(map[string]domain.Product, len(productIDs))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Status); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}
