package application

import (
	"context"

	"github.com/google/uuid"

	listing "github.com/ardkyer/rion-reservation/internal/listing/domain"
	"github.com/ardkyer/rion-reservation/internal/reservation/domain"
)

// Ledger is the persistence boundary for reservations. Reserve and Cancel are
// atomic: the unit mutation, the aggregate recompute, the ledger write and
// the outbox event land in one transaction or not at all. Implementations
// serialize mutations per listing and return listing.ErrConflict when a
// concurrent modification is detected.
type Ledger interface {
	// Reserve applies the candidate reservation against its listing and
	// returns the stored reservation plus the post-decrement listing state.
	Reserve(ctx context.Context, candidate domain.Reservation) (domain.Reservation, listing.Listing, error)
	Cancel(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, listing.Listing, error)
	UpdateStatus(ctx context.Context, reservationID uuid.UUID, to domain.Status) (domain.Reservation, error)

	Get(ctx context.Context, id uuid.UUID) (domain.Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error)
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]domain.Reservation, error)
	ActiveByListingAndUser(ctx context.Context, listingID, userID uuid.UUID) (*domain.Reservation, error)
	GetListing(ctx context.Context, listingID uuid.UUID) (listing.Listing, error)
}
