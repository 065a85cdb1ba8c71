package application

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardkyer/rion-reservation/internal/listing/domain"
	resapp "github.com/ardkyer/rion-reservation/internal/reservation/application"
	resdomain "github.com/ardkyer/rion-reservation/internal/reservation/domain"
	"github.com/ardkyer/rion-reservation/internal/storage/memory"
)

func TestInitListingCreatesPool(t *testing.T) {
	store := memory.New()
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
	ctx := context.Background()
	owner := uuid.New()

	l, err := svc.InitListing(ctx, owner, "projector", "1080p", "", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, l.TotalQuantity)
	assert.Equal(t, 4, l.AvailableCount)
	assert.Equal(t, domain.StatusAvailable, l.Status)

	units, err := svc.ListUnits(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, units, 4)
	for i, u := range units {
		assert.Equal(t, i+1, u.UnitNumber)
		assert.Equal(t, domain.UnitAvailable, u.Status)
	}

	_, err = svc.InitListing(ctx, owner, "projector", "", "", 2)
	require.NoError(t, err) // a different listing is fine

	_, err = svc.InitListing(ctx, owner, "", "", "", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTotal)
}

func TestSetUnitStatusRecomputesAggregate(t *testing.T) {
	store := memory.New()
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
	ctx := context.Background()
	owner := uuid.New()

	l, err := svc.InitListing(ctx, owner, "drill", "", "", 2)
	require.NoError(t, err)
	units, err := svc.ListUnits(ctx, l.ID)
	require.NoError(t, err)

	u, err := svc.SetUnitStatus(ctx, units[0].ID, domain.UnitInUse, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.UnitInUse, u.Status)

	got, err := svc.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCount)
	assert.Equal(t, domain.StatusInUse, got.Status)

	inUse, err := svc.ListUnitsByStatus(ctx, l.ID, domain.UnitInUse)
	require.NoError(t, err)
	require.Len(t, inUse, 1)
	assert.Equal(t, units[0].ID, inUse[0].ID)
}

func TestSetUnitStatusErrors(t *testing.T) {
	store := memory.New()
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
	ctx := context.Background()
	owner := uuid.New()

	l, err := svc.InitListing(ctx, owner, "drill", "", "", 1)
	require.NoError(t, err)
	units, err := svc.ListUnits(ctx, l.ID)
	require.NoError(t, err)

	_, err = svc.SetUnitStatus(ctx, uuid.New(), domain.UnitInUse, owner)
	assert.ErrorIs(t, err, domain.ErrUnitNotFound)

	_, err = svc.SetUnitStatus(ctx, units[0].ID, domain.UnitInUse, uuid.New())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.SetUnitStatus(ctx, units[0].ID, domain.UnitStatus("broken"), owner)
	assert.ErrorIs(t, err, domain.ErrInvalidUnitStatus)
}

func TestSetAllUnitStatuses(t *testing.T) {
	store := memory.New()
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
	ctx := context.Background()
	owner := uuid.New()

	l, err := svc.InitListing(ctx, owner, "speaker", "", "", 3)
	require.NoError(t, err)

	_, err = svc.SetAllUnitStatuses(ctx, l.ID, domain.UnitInUse, uuid.New())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := svc.SetAllUnitStatuses(ctx, l.ID, domain.UnitInUse, owner)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCount)
	assert.Equal(t, domain.StatusOutOfStock, got.Status)

	got, err = svc.SetAllUnitStatuses(ctx, l.ID, domain.UnitAvailable, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableCount)
	assert.Equal(t, domain.StatusAvailable, got.Status)
}

func TestDeleteListing(t *testing.T) {
	store := memory.New()
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
	reservations := resapp.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
	ctx := context.Background()
	owner := uuid.New()

	l, err := svc.InitListing(ctx, owner, "tent", "", "", 2)
	require.NoError(t, err)

	err = svc.DeleteListing(ctx, l.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	res, _, err := reservations.Reserve(ctx, l.ID, uuid.New(), 1, resdomain.Options{})
	require.NoError(t, err)
	err = svc.DeleteListing(ctx, l.ID, owner)
	assert.ErrorIs(t, err, domain.ErrActiveReservations)

	_, err = reservations.Cancel(ctx, res.ID)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteListing(ctx, l.ID, owner))

	_, err = svc.GetListing(ctx, l.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
