package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	listing "github.com/ardkyer/rion-reservation/internal/listing/domain"
	listingpg "github.com/ardkyer/rion-reservation/internal/listing/infrastructure/postgres"
	"github.com/ardkyer/rion-reservation/internal/reservation/domain"
	storage "github.com/ardkyer/rion-reservation/internal/storage/postgres"
	"github.com/ardkyer/rion-reservation/pkg/tracing"
)

// Repository is the reservation ledger. Reserve and Cancel take the listing
// row lock, run the domain decision against the loaded unit pool, and write
// the unit updates, the aggregate projection, the ledger row and the outbox
// event in one transaction.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Reserve(ctx context.Context, candidate domain.Reservation) (domain.Reservation, listing.Listing, error) {
	var (
		res domain.Reservation
		l   listing.Listing
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		locked, units, err := listingpg.LockListing(ctx, tx, candidate.ListingID)
		if err != nil {
			return err
		}

		var hasActive bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM reservations
				WHERE listing_id=$1 AND user_id=$2 AND status IN ('pending','confirmed')
			)
		`, candidate.ListingID, candidate.UserID).Scan(&hasActive)
		if err != nil {
			return err
		}

		res = candidate
		changed, err := domain.ApplyReserve(&locked, units, hasActive, &res)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE units SET status=$2, updated_at=now() WHERE id = ANY($1)
		`, changed, listing.UnitReserved); err != nil {
			return err
		}
		if err := listingpg.UpdateAggregate(ctx, tx, locked); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations (id, listing_id, user_id, quantity, status, contact, note, rental_start, rental_end, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, res.ID, res.ListingID, res.UserID, res.Quantity, res.Status, res.Contact, res.Note, res.RentalStart, res.RentalEnd, res.CreatedAt, res.UpdatedAt); err != nil {
			return err
		}

		payload, err := json.Marshal(domain.NewCreatedEvent(res, locked.OwnerID))
		if err != nil {
			return err
		}
		if err := r.insertOutbox(ctx, tx, res.ListingID, domain.EventReservationCreated, payload); err != nil {
			return err
		}
		l = locked
		return nil
	})
	if err != nil {
		return domain.Reservation{}, listing.Listing{}, err
	}
	return res, l, nil
}

func (r *Repository) Cancel(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, listing.Listing, error) {
	var (
		res domain.Reservation
		l   listing.Listing
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		stored, err := scanReservation(tx.QueryRow(ctx, selectReservation+` WHERE id=$1 FOR UPDATE`, reservationID))
		if err != nil {
			return err
		}
		locked, units, err := listingpg.LockListing(ctx, tx, stored.ListingID)
		if err != nil {
			return err
		}

		changed, err := domain.ApplyCancel(&locked, units, &stored)
		if err != nil {
			return err
		}
		if len(changed) > 0 {
			if _, err := tx.Exec(ctx, `
				UPDATE units SET status=$2, updated_at=now() WHERE id = ANY($1)
			`, changed, listing.UnitAvailable); err != nil {
				return err
			}
		}
		if err := listingpg.UpdateAggregate(ctx, tx, locked); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE reservations SET status=$2, updated_at=$3 WHERE id=$1
		`, stored.ID, stored.Status, stored.UpdatedAt); err != nil {
			return err
		}

		payload, err := json.Marshal(domain.NewCanceledEvent(stored))
		if err != nil {
			return err
		}
		if err := r.insertOutbox(ctx, tx, stored.ListingID, domain.EventReservationCanceled, payload); err != nil {
			return err
		}
		res = stored
		l = locked
		return nil
	})
	if err != nil {
		return domain.Reservation{}, listing.Listing{}, err
	}
	return res, l, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, reservationID uuid.UUID, to domain.Status) (domain.Reservation, error) {
	var res domain.Reservation
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		stored, err := scanReservation(tx.QueryRow(ctx, selectReservation+` WHERE id=$1 FOR UPDATE`, reservationID))
		if err != nil {
			return err
		}
		if err := stored.Transition(to); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE reservations SET status=$2, updated_at=$3 WHERE id=$1
		`, stored.ID, stored.Status, stored.UpdatedAt); err != nil {
			return err
		}
		res = stored
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, selectReservation+` WHERE id=$1`, id))
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, selectReservation+` WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

func (r *Repository) ListByListing(ctx context.Context, listingID uuid.UUID) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, selectReservation+` WHERE listing_id=$1 ORDER BY created_at DESC`, listingID)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

func (r *Repository) ActiveByListingAndUser(ctx context.Context, listingID, userID uuid.UUID) (*domain.Reservation, error) {
	res, err := scanReservation(r.pool.QueryRow(ctx, selectReservation+`
		WHERE listing_id=$1 AND user_id=$2 AND status IN ('pending','confirmed')
		ORDER BY created_at DESC LIMIT 1
	`, listingID, userID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Repository) GetListing(ctx context.Context, listingID uuid.UUID) (listing.Listing, error) {
	return listingpg.NewRepository(r.log, r.pool).GetListing(ctx, listingID)
}

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return storage.MapTxError(err)
	}
	return storage.MapTxError(tx.Commit(ctx))
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, listingID uuid.UUID, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ('reservation', $1, $2, $3, $4, 'pending')
	`, listingID.String(), eventType, payload, tracing.TraceparentFromContext(ctx))
	return err
}

const selectReservation = `
	SELECT id, listing_id, user_id, quantity, status, contact, note, rental_start, rental_end, created_at, updated_at
	FROM reservations`

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(&res.ID, &res.ListingID, &res.UserID, &res.Quantity, &res.Status, &res.Contact, &res.Note, &res.RentalStart, &res.RentalEnd, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

func scanReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	defer rows.Close()
	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.ListingID, &res.UserID, &res.Quantity, &res.Status, &res.Contact, &res.Note, &res.RentalStart, &res.RentalEnd, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
