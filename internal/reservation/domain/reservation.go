package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"

	listing "github.com/ardkyer/rion-reservation/internal/listing/domain"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
	StatusReturned  Status = "returned"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCanceled, StatusCompleted, StatusReturned:
		return true
	}
	return false
}

var (
	ErrNotFound             = errors.New("reservation not found")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrDuplicateReservation = errors.New("user already holds an active reservation for this listing")
	ErrSelfReservation      = errors.New("cannot reserve your own listing")
	ErrInvalidTransition    = errors.New("illegal reservation status transition")
	ErrInvalidState         = errors.New("reservation is not cancelable")
	ErrInvalidRentalPeriod  = errors.New("invalid rental period")
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCanceled},
	StatusConfirmed: {StatusCompleted, StatusReturned, StatusCanceled},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Options carries the optional rental details a reserver may attach.
type Options struct {
	Contact     string
	Note        string
	RentalStart *time.Time
	RentalEnd   *time.Time
}

// Reservation is a claim by a user on some quantity of a listing's pool.
// Canceled, completed and returned reservations are terminal and immutable.
type Reservation struct {
	ID          uuid.UUID
	ListingID   uuid.UUID
	UserID      uuid.UUID
	Quantity    int
	Status      Status
	Contact     string
	Note        string
	RentalStart *time.Time
	RentalEnd   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(listingID, userID uuid.UUID, quantity int, opts Options) (Reservation, error) {
	if quantity < 1 {
		return Reservation{}, ErrInvalidQuantity
	}
	if (opts.RentalStart == nil) != (opts.RentalEnd == nil) {
		return Reservation{}, ErrInvalidRentalPeriod
	}
	if opts.RentalStart != nil && opts.RentalStart.After(*opts.RentalEnd) {
		return Reservation{}, ErrInvalidRentalPeriod
	}
	now := time.Now().UTC()
	return Reservation{
		ID:          uuid.New(),
		ListingID:   listingID,
		UserID:      userID,
		Quantity:    quantity,
		Status:      StatusPending,
		Contact:     opts.Contact,
		Note:        opts.Note,
		RentalStart: opts.RentalStart,
		RentalEnd:   opts.RentalEnd,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *Reservation) IsActive() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}

func (r *Reservation) IsCancelable() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}

func (r *Reservation) IsTerminal() bool {
	return r.Status == StatusCanceled || r.Status == StatusCompleted || r.Status == StatusReturned
}

// Transition advances the reservation, rejecting anything the state machine
// does not allow.
func (r *Reservation) Transition(to Status) error {
	if !to.Valid() {
		return ErrInvalidTransition
	}
	if !CanTransition(r.Status, to) {
		return ErrInvalidTransition
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// ValidRentalPeriod reports whether the rental bounds are set, ordered, and
// do not start in the past.
func (r *Reservation) ValidRentalPeriod(now time.Time) bool {
	if r.RentalStart == nil || r.RentalEnd == nil {
		return false
	}
	return !r.RentalStart.After(*r.RentalEnd) && !r.RentalStart.Before(now)
}

// RemainingDays returns the whole days left until the rental ends, zero
// unless the reservation is confirmed.
func (r *Reservation) RemainingDays(now time.Time) int {
	if r.RentalEnd == nil || r.Status != StatusConfirmed {
		return 0
	}
	d := r.RentalEnd.Sub(now)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// ApplyReserve runs the full reserve decision against a loaded listing
// aggregate: policy checks, unit marking, aggregate recompute, and activation
// of the candidate reservation. It must execute inside the store's
// per-listing mutation boundary; hasActive is the store's answer to whether
// the user already holds a pending or confirmed reservation on this listing.
// It returns the ids of the units it flipped to reserved.
func ApplyReserve(l *listing.Listing, units []listing.Unit, hasActive bool, r *Reservation) ([]uuid.UUID, error) {
	if r.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if l.OwnerID == r.UserID {
		return nil, ErrSelfReservation
	}
	if hasActive {
		return nil, ErrDuplicateReservation
	}
	changed, err := listing.MarkReserved(units, r.Quantity)
	if err != nil {
		return nil, err
	}
	l.Recompute(units)
	r.Status = StatusPending
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	return changed, nil
}

// ApplyCancel releases the reservation's quantity back into the pool and
// marks it canceled. Same mutation-boundary rules as ApplyReserve.
func ApplyCancel(l *listing.Listing, units []listing.Unit, r *Reservation) ([]uuid.UUID, error) {
	if !r.IsCancelable() {
		return nil, ErrInvalidState
	}
	changed := listing.MarkAvailable(units, r.Quantity)
	l.Recompute(units)
	r.Status = StatusCanceled
	r.UpdatedAt = time.Now().UTC()
	return changed, nil
}
