package domain

import "github.com/google/uuid"

const (
	EventReservationCreated  = "ReservationCreated"
	EventReservationCanceled = "ReservationCanceled"
)

// ReservationCreated is emitted for the notification sink: the listing owner
// gets told someone reserved their listing.
type ReservationCreated struct {
	ReservationID uuid.UUID
	ListingID     uuid.UUID
	ReserverID    uuid.UUID
	OwnerID       uuid.UUID
	Quantity      int
}

type ReservationCanceled struct {
	ReservationID uuid.UUID
	ListingID     uuid.UUID
	Quantity      int
}

func NewCreatedEvent(r Reservation, ownerID uuid.UUID) ReservationCreated {
	return ReservationCreated{
		ReservationID: r.ID,
		ListingID:     r.ListingID,
		ReserverID:    r.UserID,
		OwnerID:       ownerID,
		Quantity:      r.Quantity,
	}
}

func NewCanceledEvent(r Reservation) ReservationCanceled {
	return ReservationCanceled{
		ReservationID: r.ID,
		ListingID:     r.ListingID,
		Quantity:      r.Quantity,
	}
}
