package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	listing "github.com/ardkyer/rion-reservation/internal/listing/domain"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusCanceled, StatusCompleted, StatusReturned}
	allowed := map[Status][]Status{
		StatusPending:   {StatusConfirmed, StatusCanceled},
		StatusConfirmed: {StatusCompleted, StatusReturned, StatusCanceled},
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransitionTerminalImmutability(t *testing.T) {
	for _, terminal := range []Status{StatusCanceled, StatusCompleted, StatusReturned} {
		r := Reservation{Status: terminal}
		for _, to := range []Status{StatusPending, StatusConfirmed, StatusCanceled, StatusCompleted, StatusReturned} {
			assert.ErrorIs(t, r.Transition(to), ErrInvalidTransition, "from %s to %s", terminal, to)
		}
		assert.True(t, r.IsTerminal())
		assert.False(t, r.IsCancelable())
	}
}

func TestNewValidation(t *testing.T) {
	listingID, userID := uuid.New(), uuid.New()

	_, err := New(listingID, userID, 0, Options{})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	start := time.Now().Add(24 * time.Hour)
	_, err = New(listingID, userID, 1, Options{RentalStart: &start})
	assert.ErrorIs(t, err, ErrInvalidRentalPeriod)

	end := start.Add(-time.Hour)
	_, err = New(listingID, userID, 1, Options{RentalStart: &start, RentalEnd: &end})
	assert.ErrorIs(t, err, ErrInvalidRentalPeriod)

	end = start.Add(48 * time.Hour)
	r, err := New(listingID, userID, 2, Options{RentalStart: &start, RentalEnd: &end, Contact: "010-1234"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
	assert.True(t, r.IsActive())
}

func TestRentalPeriodHelpers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(time.Hour)
	end := now.Add(73 * time.Hour)

	r := Reservation{Status: StatusConfirmed, RentalStart: &start, RentalEnd: &end}
	assert.True(t, r.ValidRentalPeriod(now))
	assert.Equal(t, 3, r.RemainingDays(now))

	past := now.Add(-time.Hour)
	r.RentalStart = &past
	assert.False(t, r.ValidRentalPeriod(now))

	r.Status = StatusPending
	assert.Equal(t, 0, r.RemainingDays(now))
}

func reserveFixture(t *testing.T, total int) (listing.Listing, []listing.Unit) {
	t.Helper()
	l, err := listing.NewListing(uuid.New(), "camera", "", "", total)
	require.NoError(t, err)
	return l, listing.NewUnits(l.ID, total)
}

func TestApplyReserve(t *testing.T) {
	l, units := reserveFixture(t, 5)

	r, err := New(l.ID, uuid.New(), 3, Options{})
	require.NoError(t, err)
	changed, err := ApplyReserve(&l, units, false, &r)
	require.NoError(t, err)
	assert.Len(t, changed, 3)
	assert.Equal(t, 2, l.AvailableCount)
	assert.Equal(t, listing.StatusReserved, l.Status)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, listing.CountAvailable(units), l.AvailableCount)
}

func TestApplyReserveSelfReservation(t *testing.T) {
	l, units := reserveFixture(t, 1)

	r, err := New(l.ID, l.OwnerID, 1, Options{})
	require.NoError(t, err)
	_, err = ApplyReserve(&l, units, false, &r)
	assert.ErrorIs(t, err, ErrSelfReservation)
	assert.Equal(t, 1, l.AvailableCount)
}

func TestApplyReserveDuplicate(t *testing.T) {
	l, units := reserveFixture(t, 3)

	r, err := New(l.ID, uuid.New(), 1, Options{})
	require.NoError(t, err)
	_, err = ApplyReserve(&l, units, true, &r)
	assert.ErrorIs(t, err, ErrDuplicateReservation)
}

func TestApplyReserveInsufficient(t *testing.T) {
	l, units := reserveFixture(t, 2)

	r, err := New(l.ID, uuid.New(), 3, Options{})
	require.NoError(t, err)
	_, err = ApplyReserve(&l, units, false, &r)
	var insufficient *listing.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 2, l.AvailableCount)
}

func TestApplyCancelRestoresExactly(t *testing.T) {
	l, units := reserveFixture(t, 5)

	r, err := New(l.ID, uuid.New(), 3, Options{})
	require.NoError(t, err)
	_, err = ApplyReserve(&l, units, false, &r)
	require.NoError(t, err)
	require.Equal(t, 2, l.AvailableCount)

	changed, err := ApplyCancel(&l, units, &r)
	require.NoError(t, err)
	assert.Len(t, changed, 3)
	assert.Equal(t, 5, l.AvailableCount)
	assert.Equal(t, listing.StatusAvailable, l.Status)
	assert.Equal(t, StatusCanceled, r.Status)

	// second cancel hits the terminal guard
	_, err = ApplyCancel(&l, units, &r)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 5, l.AvailableCount)
}
