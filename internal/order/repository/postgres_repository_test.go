package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	cartdomain "github.com/fedotovn/placeorder/internal/cart/domain"
	cartrepo "github.com/fedotovn/placeorder/internal/cart/repository"
	"github.com/fedotovn/placeorder/internal/database"
	"github.com/fedotovn/placeorder/internal/idempotency"
	"github.com/fedotovn/placeorder/internal/order/domain"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &database.Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "../../../migrations",
	}

	db, err := database.Open(creds)
	require.NoError(t, err)

	err = database.RunMigrations(db, creds)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return db, cleanup
}

func seedProduct(t *testing.T, db *sql.DB, id string, price float64, stock int, status string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO products (id, name, price, stock, status) VALUES ($1, $2, $3, $4, $5)`,
		id, "Product "+id, price, stock, status)
	require.NoError(t, err)
}

func seedCart(t *testing.T, db *sql.DB, userID string) {
	t.Helper()
	cart := cartdomain.NewCart(userID, "USD").AddLine("p1", "Widget", 150.0, 2)
	_, err := cartrepo.NewPostgresRepository(db).SaveCart(context.Background(), cart, 0)
	require.NoError(t, err)
}

func productStock(t *testing.T, db *sql.DB, id string) int {
	t.Helper()
	var stock int
	require.NoError(t, db.QueryRow(`SELECT stock FROM products WHERE id = $1`, id).Scan(&stock))
	return stock
}

func rowCount(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func testOrder(userID string) *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID:        uuid.New(),
		UserID:    userID,
		OrderDate: now,
		Lines: []domain.Line{
			{ID: uuid.NewString(), ProductID: "p1", ProductName: "Widget", UnitPrice: 150.0, Quantity: 2, Subtotal: 300.0},
		},
		TotalAmount:   300.0,
		Currency:      "USD",
		Status:        domain.StatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		ShippingAddress: domain.Address{
			Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
		},
		PaymentMethod: "card",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func testPlacement(order *domain.Order, key string) Placement {
	p := Placement{
		Order:      order,
		Decrements: []StockDecrement{{ProductID: "p1", Quantity: 2}},
		CartUserID: order.UserID,
		Event: &OutboxEvent{
			AggregateID: order.ID.String(),
			EventType:   "order.created",
			Payload:     []byte(`{"order_id":"` + order.ID.String() + `"}`),
		},
	}
	if key != "" {
		p.Reservation = &KeyReservation{Key: key, UserID: order.UserID}
	}
	return p
}

func TestPlaceOrder_CommitsAllRecords(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedProduct(t, db, "p1", 150.0, 10, "active")
	seedCart(t, db, "user-1")

	ledger := idempotency.NewPostgresLedger(db, idempotency.DefaultRetention)
	repo := NewPostgresRepository(db, ledger)
	ctx := context.Background()

	order := testOrder("user-1")
	require.NoError(t, repo.PlaceOrder(ctx, testPlacement(order, "tok-1")))

	loaded, err := repo.GetOrder(ctx, "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, loaded.TotalAmount)
	assert.Equal(t, domain.StatusPending, loaded.Status)
	require.Len(t, loaded.Lines, 1)
	assert.Equal(t, 150.0, loaded.Lines[0].UnitPrice)
	assert.Equal(t, "1 Main St", loaded.ShippingAddress.Line1)

	assert.Equal(t, 8, productStock(t, db, "p1"))

	_, err = cartrepo.NewPostgresRepository(db).GetCart(ctx, "user-1")
	assert.ErrorIs(t, err, cartrepo.ErrCartNotFound)

	orderID, err := ledger.Check(ctx, "user-1", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, order.ID.String(), orderID)

	events, err := repo.UnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, order.ID.String(), events[0].AggregateID)
	assert.Equal(t, "order.created", events[0].EventType)
}

func TestPlaceOrder_InsufficientStockLeavesNothingVisible(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedProduct(t, db, "p1", 150.0, 1, "active")
	seedCart(t, db, "user-1")

	ledger := idempotency.NewPostgresLedger(db, idempotency.DefaultRetention)
	repo := NewPostgresRepository(db, ledger)
	ctx := context.Background()

	order := testOrder("user-1")
	err := repo.PlaceOrder(ctx, testPlacement(order, "tok-1"))

	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, RoleStockDecrement, commitErr.Role)
	assert.Equal(t, "p1", commitErr.ProductID)

	// The whole commit rolled back: no order, untouched stock, cart intact,
	// no reservation, no outbox event.
	_, err = repo.GetOrderByID(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, 1, productStock(t, db, "p1"))
	_, err = cartrepo.NewPostgresRepository(db).GetCart(ctx, "user-1")
	assert.NoError(t, err)
	assert.Equal(t, 0, rowCount(t, db, "idempotency_keys"))
	assert.Equal(t, 0, rowCount(t, db, "outbox_events"))
}

func TestPlaceOrder_InactiveProductFailsDecrement(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedProduct(t, db, "p1", 150.0, 10, "discontinued")
	seedCart(t, db, "user-1")

	repo := NewPostgresRepository(db, idempotency.NewPostgresLedger(db, 0))

	err := repo.PlaceOrder(context.Background(), testPlacement(testOrder("user-1"), ""))

	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, RoleStockDecrement, commitErr.Role)
	assert.Equal(t, 10, productStock(t, db, "p1"))
}

func TestPlaceOrder_MissingCartRejectsCommit(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedProduct(t, db, "p1", 150.0, 10, "active")

	repo := NewPostgresRepository(db, idempotency.NewPostgresLedger(db, 0))

	err := repo.PlaceOrder(context.Background(), testPlacement(testOrder("user-1"), ""))

	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, RoleCartDelete, commitErr.Role)
	assert.Equal(t, 10, productStock(t, db, "p1"), "stock decrement must roll back")
}

func TestPlaceOrder_DuplicateReservationRejectsCommit(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedProduct(t, db, "p1", 150.0, 10, "active")
	seedCart(t, db, "user-1")

	ledger := idempotency.NewPostgresLedger(db, idempotency.DefaultRetention)
	repo := NewPostgresRepository(db, ledger)
	ctx := context.Background()

	first := testOrder("user-1")
	require.NoError(t, repo.PlaceOrder(ctx, testPlacement(first, "tok-1")))

	// A duplicate submission with the same token arrives after the cart was
	// rebuilt.
	seedCart(t, db, "user-1")
	second := testOrder("user-1")
	err := repo.PlaceOrder(ctx, testPlacement(second, "tok-1"))

	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, RoleIdempotencyReserve, commitErr.Role)

	// Only the first order exists, and stock moved exactly once.
	_, err = repo.GetOrderByID(ctx, second.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, 8, productStock(t, db, "p1"))
}

func TestPlaceOrder_ExpiredReservationIsReplaced(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedProduct(t, db, "p1", 150.0, 10, "active")
	seedCart(t, db, "user-1")

	ledger := idempotency.NewPostgresLedger(db, idempotency.DefaultRetention)
	repo := NewPostgresRepository(db, ledger)
	ctx := context.Background()

	first := testOrder("user-1")
	require.NoError(t, repo.PlaceOrder(ctx, testPlacement(first, "tok-1")))

	// Age the reservation past the retention window.
	_, err := db.Exec(`UPDATE idempotency_keys SET created_at = $2 WHERE key = $1`,
		"tok-1", time.Now().UTC().Add(-idempotency.DefaultRetention-time.Minute))
	require.NoError(t, err)

	// Resubmitting the same token now produces a second order.
	seedCart(t, db, "user-1")
	second := testOrder("user-1")
	require.NoError(t, repo.PlaceOrder(ctx, testPlacement(second, "tok-1")))

	loaded, err := repo.GetOrderByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, loaded.ID)
	assert.Equal(t, 6, productStock(t, db, "p1"))

	// The ledger now points at the new order.
	orderID, err := ledger.Check(ctx, "user-1", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID.String(), orderID)
}

func TestPlaceOrder_OutboxFailurePropagatesUnclassified(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedProduct(t, db, "p1", 150.0, 10, "active")
	seedCart(t, db, "user-1")

	repo := NewPostgresRepository(db, idempotency.NewPostgresLedger(db, 0))
	ctx := context.Background()

	order := testOrder("user-1")
	p := testPlacement(order, "")
	p.Event.Payload = []byte(`not json`)

	err := repo.PlaceOrder(ctx, p)
	require.Error(t, err)
	var commitErr *CommitError
	assert.False(t, errors.As(err, &commitErr), "infrastructure failure must not be role-tagged")

	// The commit rolled back in full.
	_, err = repo.GetOrderByID(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, 10, productStock(t, db, "p1"))
	_, err = cartrepo.NewPostgresRepository(db).GetCart(ctx, "user-1")
	assert.NoError(t, err)
}

func TestUpdateStatus_ConditionalOnCurrentStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedProduct(t, db, "p1", 150.0, 10, "active")
	seedCart(t, db, "user-1")

	repo := NewPostgresRepository(db, idempotency.NewPostgresLedger(db, 0))
	ctx := context.Background()

	order := testOrder("user-1")
	require.NoError(t, repo.PlaceOrder(ctx, testPlacement(order, "")))

	require.NoError(t, repo.UpdateStatus(ctx, order.ID, domain.StatusPending, domain.StatusConfirmed))

	// The same transition replayed races against the already-applied one.
	err := repo.UpdateStatus(ctx, order.ID, domain.StatusPending, domain.StatusConfirmed)
	require.ErrorIs(t, err, ErrStatusConflict)

	loaded, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, loaded.Status)
}

func TestUpdateStatus_UnknownOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPostgresRepository(db, idempotency.NewPostgresLedger(db, 0))

	err := repo.UpdateStatus(context.Background(), uuid.New(), domain.StatusPending, domain.StatusConfirmed)
	require.ErrorIs(t, err, ErrStatusConflict)
}

func TestMarkEventPublished_RemovesFromPending(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedProduct(t, db, "p1", 150.0, 10, "active")
	seedCart(t, db, "user-1")

	repo := NewPostgresRepository(db, idempotency.NewPostgresLedger(db, 0))
	ctx := context.Background()

	require.NoError(t, repo.PlaceOrder(ctx, testPlacement(testOrder("user-1"), "")))

	events, err := repo.UnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.NoError(t, repo.MarkEventPublished(ctx, events[0].ID))

	events, err = repo.UnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestListOrdersByUserID_NewestFirst(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedProduct(t, db, "p1", 150.0, 100, "active")

	repo := NewPostgresRepository(db, idempotency.NewPostgresLedger(db, 0))
	ctx := context.Background()

	var placed []*domain.Order
	for i := 0; i < 3; i++ {
		seedCart(t, db, "user-1")
		order := testOrder("user-1")
		order.CreatedAt = order.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.PlaceOrder(ctx, testPlacement(order, "")))
		placed = append(placed, order)
	}

	orders, err := repo.ListOrdersByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, placed[2].ID, orders[0].ID)
	assert.Equal(t, placed[0].ID, orders[2].ID)

	none, err := repo.ListOrdersByUserID(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}
