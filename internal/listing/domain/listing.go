package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ListingStatus string

const (
	StatusAvailable  ListingStatus = "available"
	StatusReserved   ListingStatus = "reserved"
	StatusInUse      ListingStatus = "in_use"
	StatusOutOfStock ListingStatus = "out_of_stock"
)

var (
	ErrNotFound           = errors.New("listing not found")
	ErrUnitNotFound       = errors.New("unit not found")
	ErrForbidden          = errors.New("not the listing owner")
	ErrAlreadyInitialized = errors.New("units already initialized for listing")
	ErrActiveReservations = errors.New("listing has active reservations")
	ErrInvalidTotal       = errors.New("total quantity must be positive")
	ErrInvalidUnitStatus  = errors.New("invalid unit status")

	// ErrConflict is returned by stores when a concurrent modification of the
	// same listing aggregate is detected. Callers may retry the operation.
	ErrConflict = errors.New("concurrent modification of listing")
)

// InsufficientStockError carries the current availability so callers can make
// a retry/backoff decision.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %d, requested %d", e.Available, e.Requested)
}

// Listing is a rentable item pool. AvailableCount and Status are cached
// projections of the unit pool, recomputed on every mutation.
type Listing struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	Title          string
	Description    string
	ImageURL       string
	TotalQuantity  int
	AvailableCount int
	Status         ListingStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewListing(ownerID uuid.UUID, title, description, imageURL string, total int) (Listing, error) {
	if total < 1 {
		return Listing{}, ErrInvalidTotal
	}
	now := time.Now().UTC()
	return Listing{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Title:          title,
		Description:    description,
		ImageURL:       imageURL,
		TotalQuantity:  total,
		AvailableCount: total,
		Status:         StatusAvailable,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func CountAvailable(units []Unit) int {
	n := 0
	for _, u := range units {
		if u.Status == UnitAvailable {
			n++
		}
	}
	return n
}

// DeriveStatus computes the pool-level status from the unit multiset. First
// match wins: empty pool is available, no available units means out of stock,
// a fully available pool is available, any in-use unit makes the pool in use,
// otherwise the pool is reserved.
func DeriveStatus(units []Unit) ListingStatus {
	if len(units) == 0 {
		return StatusAvailable
	}
	avail := CountAvailable(units)
	switch {
	case avail == 0:
		return StatusOutOfStock
	case avail == len(units):
		return StatusAvailable
	}
	for _, u := range units {
		if u.Status == UnitInUse {
			return StatusInUse
		}
	}
	return StatusReserved
}

// Recompute refreshes the cached aggregate fields from the unit pool. Must be
// called inside the same mutation boundary as any unit change.
func (l *Listing) Recompute(units []Unit) {
	l.AvailableCount = CountAvailable(units)
	l.Status = DeriveStatus(units)
	l.UpdatedAt = time.Now().UTC()
}

// MarkReserved flips qty available units to reserved, lowest unit numbers
// first, and returns the ids of the units it changed.
func MarkReserved(units []Unit, qty int) ([]uuid.UUID, error) {
	avail := CountAvailable(units)
	if avail < qty {
		return nil, &InsufficientStockError{Available: avail, Requested: qty}
	}
	now := time.Now().UTC()
	changed := make([]uuid.UUID, 0, qty)
	for i := range units {
		if len(changed) == qty {
			break
		}
		if units[i].Status == UnitAvailable {
			units[i].Status = UnitReserved
			units[i].UpdatedAt = now
			changed = append(changed, units[i].ID)
		}
	}
	return changed, nil
}

// MarkAvailable releases qty units back to available, preferring reserved
// units over in-use ones. The release is capped by the number of non-available
// units so the pool can never report more availability than it has.
func MarkAvailable(units []Unit, qty int) []uuid.UUID {
	now := time.Now().UTC()
	changed := make([]uuid.UUID, 0, qty)
	for _, want := range []UnitStatus{UnitReserved, UnitInUse} {
		for i := range units {
			if len(changed) == qty {
				return changed
			}
			if units[i].Status == want {
				units[i].Status = UnitAvailable
				units[i].UpdatedAt = now
				changed = append(changed, units[i].ID)
			}
		}
	}
	return changed
}

// ApplySetUnitStatus validates ownership, applies the status change to the
// unit, and recomputes the listing aggregate. Pure; stores call it inside
// their per-listing mutation boundary.
func ApplySetUnitStatus(l *Listing, units []Unit, unitID uuid.UUID, status UnitStatus, requestedBy uuid.UUID) (Unit, error) {
	if !status.Valid() {
		return Unit{}, ErrInvalidUnitStatus
	}
	if l.OwnerID != requestedBy {
		return Unit{}, ErrForbidden
	}
	for i := range units {
		if units[i].ID == unitID {
			units[i].Status = status
			units[i].UpdatedAt = time.Now().UTC()
			l.Recompute(units)
			return units[i], nil
		}
	}
	return Unit{}, ErrUnitNotFound
}
