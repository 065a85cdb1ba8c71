package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolWith(statuses ...UnitStatus) []Unit {
	units := NewUnits(uuid.New(), len(statuses))
	for i, s := range statuses {
		units[i].Status = s
	}
	return units
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name  string
		units []Unit
		want  ListingStatus
	}{
		{"empty pool", nil, StatusAvailable},
		{"all available", poolWith(UnitAvailable, UnitAvailable, UnitAvailable), StatusAvailable},
		{"none available", poolWith(UnitReserved, UnitReserved), StatusOutOfStock},
		{"none available with in_use", poolWith(UnitReserved, UnitInUse), StatusOutOfStock},
		{"mixed with in_use", poolWith(UnitAvailable, UnitInUse, UnitReserved), StatusInUse},
		{"some reserved none in_use", poolWith(UnitAvailable, UnitReserved), StatusReserved},
		{"single unit reserved", poolWith(UnitReserved), StatusOutOfStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.units))
			// recomputing without a mutation must not change the answer
			assert.Equal(t, tt.want, DeriveStatus(tt.units))
		})
	}
}

func TestNewUnitsNumbering(t *testing.T) {
	listingID := uuid.New()
	units := NewUnits(listingID, 4)
	require.Len(t, units, 4)
	for i, u := range units {
		assert.Equal(t, i+1, u.UnitNumber)
		assert.Equal(t, UnitAvailable, u.Status)
		assert.Equal(t, listingID, u.ListingID)
	}
}

func TestNewListingValidatesTotal(t *testing.T) {
	_, err := NewListing(uuid.New(), "bike", "", "", 0)
	assert.ErrorIs(t, err, ErrInvalidTotal)

	l, err := NewListing(uuid.New(), "bike", "", "", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, l.AvailableCount)
	assert.Equal(t, StatusAvailable, l.Status)
}

func TestMarkReservedLowestFirst(t *testing.T) {
	units := poolWith(UnitAvailable, UnitReserved, UnitAvailable, UnitAvailable)

	changed, err := MarkReserved(units, 2)
	require.NoError(t, err)
	require.Len(t, changed, 2)
	assert.Equal(t, []uuid.UUID{units[0].ID, units[2].ID}, changed)
	assert.Equal(t, UnitReserved, units[0].Status)
	assert.Equal(t, UnitReserved, units[2].Status)
	assert.Equal(t, UnitAvailable, units[3].Status)
}

func TestMarkReservedInsufficient(t *testing.T) {
	units := poolWith(UnitAvailable, UnitReserved)

	_, err := MarkReserved(units, 2)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Available)
	assert.Equal(t, 2, insufficient.Requested)
	// nothing mutated on failure
	assert.Equal(t, 1, CountAvailable(units))
}

func TestMarkAvailablePrefersReservedAndCaps(t *testing.T) {
	units := poolWith(UnitReserved, UnitInUse, UnitAvailable)

	changed := MarkAvailable(units, 1)
	require.Len(t, changed, 1)
	assert.Equal(t, UnitAvailable, units[0].Status)
	assert.Equal(t, UnitInUse, units[1].Status)

	// releasing more than is held caps at the pool size
	changed = MarkAvailable(units, 10)
	assert.Len(t, changed, 1)
	assert.Equal(t, 3, CountAvailable(units))
}

func TestRecomputeKeepsAggregateInSync(t *testing.T) {
	l, err := NewListing(uuid.New(), "tent", "", "", 3)
	require.NoError(t, err)
	units := NewUnits(l.ID, 3)

	_, err = MarkReserved(units, 2)
	require.NoError(t, err)
	l.Recompute(units)
	assert.Equal(t, 1, l.AvailableCount)
	assert.Equal(t, CountAvailable(units), l.AvailableCount)
	assert.Equal(t, StatusReserved, l.Status)

	_, err = MarkReserved(units, 1)
	require.NoError(t, err)
	l.Recompute(units)
	assert.Equal(t, 0, l.AvailableCount)
	assert.Equal(t, StatusOutOfStock, l.Status)
}

func TestApplySetUnitStatus(t *testing.T) {
	owner := uuid.New()
	l, err := NewListing(owner, "kayak", "", "", 2)
	require.NoError(t, err)
	units := NewUnits(l.ID, 2)

	_, err = ApplySetUnitStatus(&l, units, units[0].ID, UnitInUse, uuid.New())
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = ApplySetUnitStatus(&l, units, uuid.New(), UnitInUse, owner)
	assert.ErrorIs(t, err, ErrUnitNotFound)

	_, err = ApplySetUnitStatus(&l, units, units[0].ID, UnitStatus("lost"), owner)
	assert.True(t, errors.Is(err, ErrInvalidUnitStatus))

	u, err := ApplySetUnitStatus(&l, units, units[0].ID, UnitInUse, owner)
	require.NoError(t, err)
	assert.Equal(t, UnitInUse, u.Status)
	assert.Equal(t, 1, l.AvailableCount)
	assert.Equal(t, StatusInUse, l.Status)
}
