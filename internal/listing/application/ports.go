package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/ardkyer/rion-reservation/internal/listing/domain"
)

// Store is the persistence boundary for the listing aggregate. Mutating
// methods are coarse on purpose: each one executes the whole
// read-check-write sequence under the store's per-listing mutation boundary.
type Store interface {
	CreateListing(ctx context.Context, l domain.Listing, units []domain.Unit) error
	GetListing(ctx context.Context, id uuid.UUID) (domain.Listing, error)
	ListUnits(ctx context.Context, listingID uuid.UUID) ([]domain.Unit, error)
	ListUnitsByStatus(ctx context.Context, listingID uuid.UUID, status domain.UnitStatus) ([]domain.Unit, error)
	SetUnitStatus(ctx context.Context, unitID uuid.UUID, status domain.UnitStatus, requestedBy uuid.UUID) (domain.Unit, error)
	SetAllUnitStatuses(ctx context.Context, listingID uuid.UUID, status domain.UnitStatus, requestedBy uuid.UUID) (domain.Listing, error)
	DeleteListing(ctx context.Context, listingID, requestedBy uuid.UUID) error
}
