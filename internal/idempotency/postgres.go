package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// ErrKeyTaken means a live reservation for the key already exists.
var ErrKeyTaken = errors.New("idempotency key already reserved")

type PostgresLedger struct {
	db        *sql.DB
	retention time.Duration
}

func NewPostgresLedger(db *sql.DB, retention time.Duration) *PostgresLedger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &PostgresLedger{db: db, retention: retention}
}

func (l *PostgresLedger) Check(ctx context.Context, userID, key string) (string, error) {
	query := `SELECT key, user_id, order_id, created_at FROM idempotency_keys WHERE key = $1`

	var rec Record
	err := l.db.QueryRowContext(ctx, query, key).Scan(&rec.Key, &rec.UserID, &rec.OrderID, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query idempotency key: %w", err)
	}

	ok, crossUser := matchRecord(rec, userID, time.Now().UTC(), l.retention)
	if crossUser {
		log.WithFields(log.Fields{
			"key":     key,
			"user_id": userID,
		}).Warn("idempotency key reserved by a different user, treating as miss")
	}
	if !ok {
		return "", ErrKeyNotFound
	}
	return rec.OrderID, nil
}

// InsertTx performs the conditional reservation insert inside tx. The caller
// owns the transaction. A live reservation surfaces as ErrKeyTaken so the
// order commit can tag the failing operation; a reservation older than the
// retention window is replaced, making the token reusable after expiry.
func (l *PostgresLedger) InsertTx(ctx context.Context, tx *sql.Tx, res Reservation) error {
	query := `INSERT INTO idempotency_keys (key, user_id, order_id, created_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (key) DO UPDATE
	          SET user_id = EXCLUDED.user_id, order_id = EXCLUDED.order_id, created_at = EXCLUDED.created_at
	          WHERE idempotency_keys.created_at < $5`

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, query, res.Key, res.UserID, res.OrderID, now, now.Add(-l.retention))
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrKeyTaken
	}
	return nil
}
