// Package memory holds an in-process store for single-node deployments and
// tests. It implements both the listing Store and the reservation Ledger
// ports; every mutation runs under a per-listing mutex so the
// read-check-write sequence is atomic, mirroring the row lock the postgres
// store takes.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	listing "github.com/ardkyer/rion-reservation/internal/listing/domain"
	"github.com/ardkyer/rion-reservation/internal/reservation/domain"
)

type listingState struct {
	mu      sync.Mutex
	listing listing.Listing
	units   []listing.Unit
}

type Store struct {
	mu           sync.RWMutex
	listings     map[uuid.UUID]*listingState
	reservations map[uuid.UUID]*domain.Reservation
	events       []any
}

func New() *Store {
	return &Store{
		listings:     make(map[uuid.UUID]*listingState),
		reservations: make(map[uuid.UUID]*domain.Reservation),
	}
}

// Events returns the domain events recorded so far, oldest first. Stands in
// for the outbox in tests and single-node runs.
func (s *Store) Events() []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]any, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) CreateListing(ctx context.Context, l listing.Listing, units []listing.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[l.ID]; ok {
		return listing.ErrAlreadyInitialized
	}
	cp := make([]listing.Unit, len(units))
	copy(cp, units)
	s.listings[l.ID] = &listingState{listing: l, units: cp}
	return nil
}

func (s *Store) state(id uuid.UUID) (*listingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ls, ok := s.listings[id]
	if !ok {
		return nil, listing.ErrNotFound
	}
	return ls, nil
}

func (s *Store) GetListing(ctx context.Context, id uuid.UUID) (listing.Listing, error) {
	ls, err := s.state(id)
	if err != nil {
		return listing.Listing{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.listing, nil
}

func (s *Store) ListUnits(ctx context.Context, listingID uuid.UUID) ([]listing.Unit, error) {
	ls, err := s.state(listingID)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]listing.Unit, len(ls.units))
	copy(out, ls.units)
	return out, nil
}

func (s *Store) ListUnitsByStatus(ctx context.Context, listingID uuid.UUID, status listing.UnitStatus) ([]listing.Unit, error) {
	units, err := s.ListUnits(ctx, listingID)
	if err != nil {
		return nil, err
	}
	out := units[:0]
	for _, u := range units {
		if u.Status == status {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) SetUnitStatus(ctx context.Context, unitID uuid.UUID, status listing.UnitStatus, requestedBy uuid.UUID) (listing.Unit, error) {
	ls, err := s.stateByUnit(unitID)
	if err != nil {
		return listing.Unit{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	u, err := listing.ApplySetUnitStatus(&ls.listing, ls.units, unitID, status, requestedBy)
	if err != nil {
		return listing.Unit{}, err
	}
	return u, nil
}

func (s *Store) SetAllUnitStatuses(ctx context.Context, listingID uuid.UUID, status listing.UnitStatus, requestedBy uuid.UUID) (listing.Listing, error) {
	ls, err := s.state(listingID)
	if err != nil {
		return listing.Listing{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.listing.OwnerID != requestedBy {
		return listing.Listing{}, listing.ErrForbidden
	}
	for i := range ls.units {
		if _, err := listing.ApplySetUnitStatus(&ls.listing, ls.units, ls.units[i].ID, status, requestedBy); err != nil {
			return listing.Listing{}, err
		}
	}
	return ls.listing, nil
}

func (s *Store) DeleteListing(ctx context.Context, listingID, requestedBy uuid.UUID) error {
	ls, err := s.state(listingID)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.listing.OwnerID != requestedBy {
		return listing.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.ListingID == listingID && r.IsActive() {
			return listing.ErrActiveReservations
		}
	}
	for id, r := range s.reservations {
		if r.ListingID == listingID {
			delete(s.reservations, id)
		}
	}
	delete(s.listings, listingID)
	return nil
}

func (s *Store) Reserve(ctx context.Context, candidate domain.Reservation) (domain.Reservation, listing.Listing, error) {
	ls, err := s.state(candidate.ListingID)
	if err != nil {
		return domain.Reservation{}, listing.Listing{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	hasActive := s.hasActive(candidate.ListingID, candidate.UserID)
	res := candidate
	if _, err := domain.ApplyReserve(&ls.listing, ls.units, hasActive, &res); err != nil {
		return domain.Reservation{}, listing.Listing{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := res
	s.reservations[res.ID] = &stored
	s.events = append(s.events, domain.NewCreatedEvent(res, ls.listing.OwnerID))
	return res, ls.listing, nil
}

func (s *Store) Cancel(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, listing.Listing, error) {
	s.mu.RLock()
	r, ok := s.reservations[reservationID]
	s.mu.RUnlock()
	if !ok {
		return domain.Reservation{}, listing.Listing{}, domain.ErrNotFound
	}

	ls, err := s.state(r.ListingID)
	if err != nil {
		return domain.Reservation{}, listing.Listing{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := domain.ApplyCancel(&ls.listing, ls.units, r); err != nil {
		return domain.Reservation{}, listing.Listing{}, err
	}
	s.events = append(s.events, domain.NewCanceledEvent(*r))
	return *r, ls.listing, nil
}

func (s *Store) UpdateStatus(ctx context.Context, reservationID uuid.UUID, to domain.Status) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[reservationID]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	if err := r.Transition(to); err != nil {
		return domain.Reservation{}, err
	}
	return *r, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return *r, nil
}

func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	return s.list(func(r *domain.Reservation) bool { return r.UserID == userID })
}

func (s *Store) ListByListing(ctx context.Context, listingID uuid.UUID) ([]domain.Reservation, error) {
	return s.list(func(r *domain.Reservation) bool { return r.ListingID == listingID })
}

func (s *Store) ActiveByListingAndUser(ctx context.Context, listingID, userID uuid.UUID) (*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reservations {
		if r.ListingID == listingID && r.UserID == userID && r.IsActive() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) list(match func(*domain.Reservation) bool) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if match(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// hasActive is called with the listing's mutex held; it takes s.mu itself.
func (s *Store) hasActive(listingID, userID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reservations {
		if r.ListingID == listingID && r.UserID == userID && r.IsActive() {
			return true
		}
	}
	return false
}

func (s *Store) stateByUnit(unitID uuid.UUID) (*listingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ls := range s.listings {
		for i := range ls.units {
			if ls.units[i].ID == unitID {
				return ls, nil
			}
		}
	}
	return nil, listing.ErrUnitNotFound
}
