package db_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/food-circles/internal/circle"
	"github.com/vasiliy-maslov/food-circles/internal/config"
	"github.com/vasiliy-maslov/food-circles/internal/db"
	"github.com/vasiliy-maslov/food-circles/internal/establishment"
	"github.com/vasiliy-maslov/food-circles/internal/order"
)

const testMaxConns = 4

var testPG *db.Postgres

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// TestMain connects to the database named by DB_HOST_TEST with a deliberately
// small pool. Without DB_HOST_TEST the Postgres tests skip.
func TestMain(m *testing.M) {
	if os.Getenv("DB_HOST_TEST") == "" {
		os.Exit(m.Run())
	}

	cfg := config.PostgresConfig{
		Host:            os.Getenv("DB_HOST_TEST"),
		Port:            envOr("DB_PORT_TEST", "5432"),
		User:            envOr("DB_USER_TEST", "postgres"),
		Password:        envOr("DB_PASSWORD_TEST", "123456"),
		DBName:          envOr("DB_NAME_TEST", "circles_test"),
		SSLMode:         envOr("DB_SSLMODE_TEST", "disable"),
		MaxConns:        testMaxConns,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MigrationsPath:  "../../migrations",
	}

	if err := db.ApplyMigrations(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate test database")
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pg, err := db.New(connectCtx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("db_host", cfg.Host).Msg("Failed to connect to test database")
	}
	testPG = pg

	exitCode := m.Run()

	pg.Close()
	os.Exit(exitCode)
}

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testPG == nil {
		t.Skip("DB_HOST_TEST not set")
	}

	ctx := context.Background()
	truncate := func() {
		_, err := testPG.Pool.Exec(ctx, "TRUNCATE TABLE orders, menu_items, establishments RESTART IDENTITY CASCADE")
		require.NoError(t, err)
	}
	truncate()
	t.Cleanup(truncate)

	_, err := testPG.Pool.Exec(ctx, `INSERT INTO establishments (id, city_id, name, lat, lon) VALUES
		('est-1', 'city-1', 'Luigi''s', 40.0, -75.0)`)
	require.NoError(t, err)
	_, err = testPG.Pool.Exec(ctx, `INSERT INTO menu_items (establishment_id, product_id, price) VALUES
		('est-1', 'pizza', 10.50)`)
	require.NoError(t, err)

	return testPG.Pool
}

func testStoreConfig() config.StoreConfig {
	return config.StoreConfig{
		QueryTimeout:    3 * time.Second,
		RetryInitial:    50 * time.Millisecond,
		RetryMax:        500 * time.Millisecond,
		RetryMaxElapsed: 5 * time.Second,
		LockTimeout:     20 * time.Second,
	}
}

// newReplica builds a circle service the way main does, with its own
// in-process locker, so several replicas contend only through Postgres.
func newReplica(pool *pgxpool.Pool, directory establishment.Directory, locker circle.Locker) circle.Service {
	policy := db.NewRetryPolicy(testStoreConfig())
	orders := order.NewRetryingRepository(order.NewRepository(pool), policy)
	return circle.NewService(orders, directory, locker, order.ScopeEstablishment, circle.SystemClock)
}

func submitConcurrently(t *testing.T, services []circle.Service, perService int) []*order.Order {
	t.Helper()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []*order.Order
		errs    []error
	)
	for _, svc := range services {
		svc := svc
		for i := 0; i < perService; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o, err := svc.SubmitOrder(context.Background(), circle.SubmitOrderInput{
					EstablishmentID: "est-1",
					CityID:          "city-1",
					UserID:          "user-1",
					Lat:             40.0,
					Lon:             -75.0,
					Items:           map[string]int{"pizza": 1},
				})

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				created = append(created, o)
			}()
		}
	}
	wg.Wait()

	require.Empty(t, errs)
	return created
}

func assertSingleAnchor(t *testing.T, pool *pgxpool.Pool, created []*order.Order, want int) {
	t.Helper()
	require.Len(t, created, want)

	var anchors, rows int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(DISTINCT anchor), COUNT(*) FROM orders WHERE establishment_id = 'est-1'`).Scan(&anchors, &rows)
	require.NoError(t, err)
	assert.Equal(t, want, rows)
	assert.Equal(t, 1, anchors, "every order at the same spot must join the first circle")
}

func TestAdvisoryLocker_ReplicasShareOneCircle(t *testing.T) {
	pool := setupPostgres(t)
	directory := establishment.NewRetryingDirectory(
		establishment.NewPostgresDirectory(testPG.SQLX()), db.NewRetryPolicy(testStoreConfig()))

	var services []circle.Service
	for i := 0; i < 3; i++ {
		advisory := db.NewAdvisoryLocker(pool, db.LockHolders(testMaxConns), testStoreConfig().LockTimeout)
		services = append(services, newReplica(pool, directory, circle.NewLayeredLocker(circle.NewKeyedLocker(), advisory)))
	}

	created := submitConcurrently(t, services, 8)
	assertSingleAnchor(t, pool, created, 24)
}

func TestAdvisoryLocker_MoreSubmittersThanConnections(t *testing.T) {
	pool := setupPostgres(t)
	directory := establishment.NewRetryingDirectory(
		establishment.NewPostgresDirectory(testPG.SQLX()), db.NewRetryPolicy(testStoreConfig()))

	// No in-process layer: every submitter goes straight to the advisory lock.
	advisory := db.NewAdvisoryLocker(pool, db.LockHolders(testMaxConns), testStoreConfig().LockTimeout)
	svc := newReplica(pool, directory, advisory)

	created := submitConcurrently(t, []circle.Service{svc}, 5*testMaxConns)
	assertSingleAnchor(t, pool, created, 5*testMaxConns)
}

func TestAdvisoryLocker_WaitTimeout(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	holder := db.NewAdvisoryLocker(pool, 1, time.Second)
	unlock, err := holder.Lock(ctx, "establishment:est-1")
	require.NoError(t, err)
	defer unlock()

	waiter := db.NewAdvisoryLocker(pool, 1, 100*time.Millisecond)
	start := time.Now()
	_, err = waiter.Lock(ctx, "establishment:est-1")
	assert.ErrorIs(t, err, db.ErrServiceUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)

	other, err := waiter.Lock(ctx, "establishment:est-2")
	require.NoError(t, err, "a timed-out wait must not leak its holder slot")
	other()
}

func TestAdvisoryLocker_CallerCancelIsNotUnavailable(t *testing.T) {
	pool := setupPostgres(t)

	holder := db.NewAdvisoryLocker(pool, 1, time.Second)
	unlock, err := holder.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	waiter := db.NewAdvisoryLocker(pool, 1, 10*time.Second)
	_, err = waiter.Lock(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, db.ErrServiceUnavailable)
}

func TestLockHolders(t *testing.T) {
	assert.Equal(t, int64(1), db.LockHolders(0))
	assert.Equal(t, int64(1), db.LockHolders(1))
	assert.Equal(t, int64(1), db.LockHolders(3))
	assert.Equal(t, int64(5), db.LockHolders(10))
}
