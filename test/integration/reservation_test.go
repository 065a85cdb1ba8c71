package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	listingapp "github.com/ardkyer/rion-reservation/internal/listing/application"
	listing "github.com/ardkyer/rion-reservation/internal/listing/domain"
	listingpg "github.com/ardkyer/rion-reservation/internal/listing/infrastructure/postgres"
	"github.com/ardkyer/rion-reservation/internal/reservation/application"
	"github.com/ardkyer/rion-reservation/internal/reservation/domain"
	reservationpg "github.com/ardkyer/rion-reservation/internal/reservation/infrastructure/postgres"
	storage "github.com/ardkyer/rion-reservation/internal/storage/postgres"
)

// TestReservationEngineAgainstPostgres drives the full reserve/cancel path
// against a real database. Requires docker; set INTEGRATION=1 to run.
func TestReservationEngineAgainstPostgres(t *testing.T) {
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run container-backed tests")
	}

	ctx := context.Background()
	env, err := SetupPostgres(ctx)
	require.NoError(t, err)
	defer env.Teardown(ctx)

	pool, err := pgxpool.New(ctx, env.PGURL)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, storage.Migrate(ctx, pool))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	listings := listingapp.NewService(log, listingpg.NewRepository(log, pool))
	reservations := application.NewService(log, reservationpg.NewRepository(log, pool))

	owner := uuid.New()
	l, err := listings.InitListing(ctx, owner, "kayak", "two-seater", "", 5)
	require.NoError(t, err)

	renter := uuid.New()
	res, available, err := reservations.Reserve(ctx, l.ID, renter, 3, domain.Options{Contact: "renter@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, available)
	assert.Equal(t, domain.StatusPending, res.Status)

	got, err := listings.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableCount)
	assert.Equal(t, listing.StatusReserved, got.Status)

	reserved, err := listings.ListUnitsByStatus(ctx, l.ID, listing.UnitReserved)
	require.NoError(t, err)
	assert.Len(t, reserved, 3)

	// oversell is refused with the remaining count
	_, _, err = reservations.Reserve(ctx, l.ID, uuid.New(), 3, domain.Options{})
	var insufficient *listing.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)

	// an outbox row was written in the same transaction
	var pending int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE status = 'pending'`).Scan(&pending))
	assert.Equal(t, 1, pending)

	_, err = reservations.Cancel(ctx, res.ID)
	require.NoError(t, err)
	got, err = listings.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.AvailableCount)
	assert.Equal(t, listing.StatusAvailable, got.Status)

	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE status = 'pending'`).Scan(&pending))
	assert.Equal(t, 2, pending)
}

// TestConcurrentReservePostgres checks the row-lock path under contention:
// distinct renters race for a pool of 4 and exactly four single-unit
// reservations may win.
func TestConcurrentReservePostgres(t *testing.T) {
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run container-backed tests")
	}

	ctx := context.Background()
	env, err := SetupPostgres(ctx)
	require.NoError(t, err)
	defer env.Teardown(ctx)

	pool, err := pgxpool.New(ctx, env.PGURL)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, storage.Migrate(ctx, pool))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	listings := listingapp.NewService(log, listingpg.NewRepository(log, pool))
	reservations := application.NewService(log, reservationpg.NewRepository(log, pool))

	l, err := listings.InitListing(ctx, uuid.New(), "bike", "", "", 4)
	require.NoError(t, err)

	const racers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := reservations.Reserve(ctx, l.ID, uuid.New(), 1, domain.Options{})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				var insufficient *listing.InsufficientStockError
				assert.ErrorAs(t, err, &insufficient)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, succeeded)
	got, err := listings.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCount)
	assert.Equal(t, listing.StatusOutOfStock, got.Status)
}
