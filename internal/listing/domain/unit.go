package domain

import (
	"time"

	"github.com/google/uuid"
)

type UnitStatus string

const (
	UnitAvailable UnitStatus = "available"
	UnitReserved  UnitStatus = "reserved"
	UnitInUse     UnitStatus = "in_use"
)

func (s UnitStatus) Valid() bool {
	switch s {
	case UnitAvailable, UnitReserved, UnitInUse:
		return true
	}
	return false
}

// Unit is one physical instance within a listing's pool. Units are created in
// bulk when the listing is created and only ever change status afterwards.
type Unit struct {
	ID         uuid.UUID
	ListingID  uuid.UUID
	UnitNumber int
	Status     UnitStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewUnits builds the full pool for a listing, numbered 1..total, all
// available.
func NewUnits(listingID uuid.UUID, total int) []Unit {
	now := time.Now().UTC()
	units := make([]Unit, 0, total)
	for n := 1; n <= total; n++ {
		units = append(units, Unit{
			ID:         uuid.New(),
			ListingID:  listingID,
			UnitNumber: n,
			Status:     UnitAvailable,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return units
}
