package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	listing "github.com/ardkyer/rion-reservation/internal/listing/domain"
	"github.com/ardkyer/rion-reservation/internal/reservation/domain"
)

// conflictRetries bounds the internal retry of an atomic reserve/cancel when
// the store reports a concurrent-modification conflict.
const conflictRetries = 3

type Service struct {
	log    *slog.Logger
	ledger Ledger
	now    func() time.Time
}

func NewService(log *slog.Logger, ledger Ledger) *Service {
	return &Service{log: log, ledger: ledger, now: time.Now}
}

// Reserve claims quantity units of the listing for the user. The
// availability check and the decrement are one atomic step inside the
// ledger; on success the returned count is the post-decrement availability.
func (s *Service) Reserve(ctx context.Context, listingID, userID uuid.UUID, quantity int, opts domain.Options) (domain.Reservation, int, error) {
	candidate, err := domain.New(listingID, userID, quantity, opts)
	if err != nil {
		return domain.Reservation{}, 0, err
	}
	if candidate.RentalStart != nil && !candidate.ValidRentalPeriod(s.now().UTC()) {
		return domain.Reservation{}, 0, domain.ErrInvalidRentalPeriod
	}

	var (
		res domain.Reservation
		l   listing.Listing
	)
	err = s.withConflictRetry(func() error {
		var err error
		res, l, err = s.ledger.Reserve(ctx, candidate)
		return err
	})
	if err != nil {
		return domain.Reservation{}, 0, err
	}
	s.log.Info("reservation created",
		"reservation_id", res.ID,
		"listing_id", listingID,
		"user_id", userID,
		"quantity", quantity,
		"available_count", l.AvailableCount,
	)
	return res, l.AvailableCount, nil
}

// Cancel releases the reservation's quantity back into the pool. Only
// pending and confirmed reservations are cancelable.
func (s *Service) Cancel(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, error) {
	var (
		res domain.Reservation
		l   listing.Listing
	)
	err := s.withConflictRetry(func() error {
		var err error
		res, l, err = s.ledger.Cancel(ctx, reservationID)
		return err
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	s.log.Info("reservation canceled",
		"reservation_id", reservationID,
		"listing_id", res.ListingID,
		"available_count", l.AvailableCount,
	)
	return res, nil
}

// UpdateStatus advances the reservation state machine. Canceling through
// this path restores stock exactly like Cancel does.
func (s *Service) UpdateStatus(ctx context.Context, reservationID uuid.UUID, to domain.Status) (domain.Reservation, error) {
	if !to.Valid() {
		return domain.Reservation{}, domain.ErrInvalidTransition
	}
	if to == domain.StatusCanceled {
		res, err := s.Cancel(ctx, reservationID)
		if errors.Is(err, domain.ErrInvalidState) {
			// Cancel of a terminal reservation; report it as a transition error
			// since the caller asked for one.
			return domain.Reservation{}, domain.ErrInvalidTransition
		}
		return res, err
	}
	res, err := s.ledger.UpdateStatus(ctx, reservationID, to)
	if err != nil {
		return domain.Reservation{}, err
	}
	s.log.Info("reservation status updated", "reservation_id", reservationID, "status", to)
	return res, nil
}

// CanReserve is the read-only availability probe. It is advisory: the
// authoritative check happens inside Reserve's transaction.
func (s *Service) CanReserve(ctx context.Context, listingID uuid.UUID, quantity int) (bool, error) {
	if quantity < 1 {
		return false, nil
	}
	l, err := s.ledger.GetListing(ctx, listingID)
	if err != nil {
		return false, err
	}
	return l.Status != listing.StatusOutOfStock && l.AvailableCount >= quantity, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	return s.ledger.Get(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	return s.ledger.ListByUser(ctx, userID)
}

func (s *Service) ListByListing(ctx context.Context, listingID uuid.UUID) ([]domain.Reservation, error) {
	return s.ledger.ListByListing(ctx, listingID)
}

func (s *Service) ActiveByListingAndUser(ctx context.Context, listingID, userID uuid.UUID) (*domain.Reservation, error) {
	return s.ledger.ActiveByListingAndUser(ctx, listingID, userID)
}

func (s *Service) withConflictRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, listing.ErrConflict) {
			return err
		}
		s.log.Warn("storage conflict, retrying", "attempt", attempt+1)
	}
	return err
}
