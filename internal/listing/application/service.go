package application

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ardkyer/rion-reservation/internal/listing/domain"
)

type Service struct {
	log   *slog.Logger
	store Store
}

func NewService(log *slog.Logger, store Store) *Service {
	return &Service{log: log, store: store}
}

// InitListing creates the listing together with its unit pool, numbered
// 1..total. Initialization happens exactly once per listing; the store
// rejects a second attempt with ErrAlreadyInitialized.
func (s *Service) InitListing(ctx context.Context, ownerID uuid.UUID, title, description, imageURL string, total int) (domain.Listing, error) {
	l, err := domain.NewListing(ownerID, title, description, imageURL, total)
	if err != nil {
		return domain.Listing{}, err
	}
	units := domain.NewUnits(l.ID, total)
	if err := s.store.CreateListing(ctx, l, units); err != nil {
		return domain.Listing{}, err
	}
	s.log.Info("listing initialized", "listing_id", l.ID, "owner_id", ownerID, "total_quantity", total)
	return l, nil
}

func (s *Service) GetListing(ctx context.Context, id uuid.UUID) (domain.Listing, error) {
	return s.store.GetListing(ctx, id)
}

func (s *Service) ListUnits(ctx context.Context, listingID uuid.UUID) ([]domain.Unit, error) {
	return s.store.ListUnits(ctx, listingID)
}

func (s *Service) ListUnitsByStatus(ctx context.Context, listingID uuid.UUID, status domain.UnitStatus) ([]domain.Unit, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidUnitStatus
	}
	return s.store.ListUnitsByStatus(ctx, listingID, status)
}

// SetUnitStatus is an owner-only operation; the listing aggregate is
// recomputed in the same transaction as the unit change.
func (s *Service) SetUnitStatus(ctx context.Context, unitID uuid.UUID, status domain.UnitStatus, requestedBy uuid.UUID) (domain.Unit, error) {
	if !status.Valid() {
		return domain.Unit{}, domain.ErrInvalidUnitStatus
	}
	u, err := s.store.SetUnitStatus(ctx, unitID, status, requestedBy)
	if err != nil {
		return domain.Unit{}, err
	}
	s.log.Info("unit status updated", "unit_id", unitID, "status", status, "requested_by", requestedBy)
	return u, nil
}

// SetAllUnitStatuses flips every unit of the listing at once, e.g. when an
// owner takes the whole pool out of circulation.
func (s *Service) SetAllUnitStatuses(ctx context.Context, listingID uuid.UUID, status domain.UnitStatus, requestedBy uuid.UUID) (domain.Listing, error) {
	if !status.Valid() {
		return domain.Listing{}, domain.ErrInvalidUnitStatus
	}
	l, err := s.store.SetAllUnitStatuses(ctx, listingID, status, requestedBy)
	if err != nil {
		return domain.Listing{}, err
	}
	s.log.Info("all unit statuses updated", "listing_id", listingID, "status", status)
	return l, nil
}

// DeleteListing cascades to the unit pool. Listings with active reservations
// cannot be deleted.
func (s *Service) DeleteListing(ctx context.Context, listingID, requestedBy uuid.UUID) error {
	if err := s.store.DeleteListing(ctx, listingID, requestedBy); err != nil {
		return err
	}
	s.log.Info("listing deleted", "listing_id", listingID, "requested_by", requestedBy)
	return nil
}
