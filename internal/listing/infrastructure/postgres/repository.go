package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ardkyer/rion-reservation/internal/listing/domain"
	storage "github.com/ardkyer/rion-reservation/internal/storage/postgres"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) CreateListing(ctx context.Context, l domain.Listing, units []domain.Unit) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO listings (id, owner_id, title, description, image_url, total_quantity, available_count, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, l.ID, l.OwnerID, l.Title, l.Description, l.ImageURL, l.TotalQuantity, l.AvailableCount, l.Status, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return domain.ErrAlreadyInitialized
		}
		return err
	}

	batch := &pgx.Batch{}
	for _, u := range units {
		batch.Queue(`
			INSERT INTO units (id, listing_id, unit_number, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, u.ID, u.ListingID, u.UnitNumber, u.Status, u.CreatedAt, u.UpdatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if storage.IsUniqueViolation(err) {
			return domain.ErrAlreadyInitialized
		}
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetListing(ctx context.Context, id uuid.UUID) (domain.Listing, error) {
	return scanListing(r.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, description, image_url, total_quantity, available_count, status, created_at, updated_at
		FROM listings WHERE id=$1
	`, id))
}

func (r *Repository) ListUnits(ctx context.Context, listingID uuid.UUID) ([]domain.Unit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, listing_id, unit_number, status, created_at, updated_at
		FROM units WHERE listing_id=$1 ORDER BY unit_number
	`, listingID)
	if err != nil {
		return nil, err
	}
	return scanUnits(rows)
}

func (r *Repository) ListUnitsByStatus(ctx context.Context, listingID uuid.UUID, status domain.UnitStatus) ([]domain.Unit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, listing_id, unit_number, status, created_at, updated_at
		FROM units WHERE listing_id=$1 AND status=$2 ORDER BY unit_number
	`, listingID, status)
	if err != nil {
		return nil, err
	}
	return scanUnits(rows)
}

// SetUnitStatus locks the owning listing row for the duration of the change
// so the cached aggregate can never drift from the unit pool.
func (r *Repository) SetUnitStatus(ctx context.Context, unitID uuid.UUID, status domain.UnitStatus, requestedBy uuid.UUID) (domain.Unit, error) {
	var updated domain.Unit
	err := r.withListingLockByUnit(ctx, unitID, func(tx pgx.Tx, l *domain.Listing, units []domain.Unit) error {
		u, err := domain.ApplySetUnitStatus(l, units, unitID, status, requestedBy)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE units SET status=$2, updated_at=$3 WHERE id=$1`, u.ID, u.Status, u.UpdatedAt); err != nil {
			return err
		}
		updated = u
		return UpdateAggregate(ctx, tx, *l)
	})
	if err != nil {
		return domain.Unit{}, err
	}
	return updated, nil
}

func (r *Repository) SetAllUnitStatuses(ctx context.Context, listingID uuid.UUID, status domain.UnitStatus, requestedBy uuid.UUID) (domain.Listing, error) {
	var out domain.Listing
	err := r.withListingLock(ctx, listingID, func(tx pgx.Tx, l *domain.Listing, units []domain.Unit) error {
		if l.OwnerID != requestedBy {
			return domain.ErrForbidden
		}
		for i := range units {
			if _, err := domain.ApplySetUnitStatus(l, units, units[i].ID, status, requestedBy); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `UPDATE units SET status=$2, updated_at=now() WHERE listing_id=$1`, listingID, status); err != nil {
			return err
		}
		if err := UpdateAggregate(ctx, tx, *l); err != nil {
			return err
		}
		out = *l
		return nil
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return out, nil
}

func (r *Repository) DeleteListing(ctx context.Context, listingID, requestedBy uuid.UUID) error {
	return r.withListingLock(ctx, listingID, func(tx pgx.Tx, l *domain.Listing, units []domain.Unit) error {
		if l.OwnerID != requestedBy {
			return domain.ErrForbidden
		}
		var active int
		err := tx.QueryRow(ctx, `
			SELECT count(*) FROM reservations
			WHERE listing_id=$1 AND status IN ('pending','confirmed')
		`, listingID).Scan(&active)
		if err != nil {
			return err
		}
		if active > 0 {
			return domain.ErrActiveReservations
		}
		// units and reservations cascade
		_, err = tx.Exec(ctx, `DELETE FROM listings WHERE id=$1`, listingID)
		return err
	})
}

func (r *Repository) withListingLock(ctx context.Context, listingID uuid.UUID, fn func(pgx.Tx, *domain.Listing, []domain.Unit) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	l, units, err := LockListing(ctx, tx, listingID)
	if err != nil {
		return err
	}
	if err := fn(tx, &l, units); err != nil {
		return storage.MapTxError(err)
	}
	return storage.MapTxError(tx.Commit(ctx))
}

func (r *Repository) withListingLockByUnit(ctx context.Context, unitID uuid.UUID, fn func(pgx.Tx, *domain.Listing, []domain.Unit) error) error {
	var listingID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT listing_id FROM units WHERE id=$1`, unitID).Scan(&listingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrUnitNotFound
	}
	if err != nil {
		return err
	}
	return r.withListingLock(ctx, listingID, fn)
}

// LockListing takes the per-listing row lock and loads the unit pool, the
// mutation boundary every write goes through.
func LockListing(ctx context.Context, tx pgx.Tx, listingID uuid.UUID) (domain.Listing, []domain.Unit, error) {
	l, err := scanListing(tx.QueryRow(ctx, `
		SELECT id, owner_id, title, description, image_url, total_quantity, available_count, status, created_at, updated_at
		FROM listings WHERE id=$1
		FOR UPDATE
	`, listingID))
	if err != nil {
		return domain.Listing{}, nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT id, listing_id, unit_number, status, created_at, updated_at
		FROM units WHERE listing_id=$1 ORDER BY unit_number
	`, listingID)
	if err != nil {
		return domain.Listing{}, nil, err
	}
	units, err := scanUnits(rows)
	if err != nil {
		return domain.Listing{}, nil, err
	}
	return l, units, nil
}

func UpdateAggregate(ctx context.Context, tx pgx.Tx, l domain.Listing) error {
	_, err := tx.Exec(ctx, `
		UPDATE listings SET available_count=$2, status=$3, updated_at=$4 WHERE id=$1
	`, l.ID, l.AvailableCount, l.Status, l.UpdatedAt)
	return err
}

func scanListing(row pgx.Row) (domain.Listing, error) {
	var l domain.Listing
	err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.ImageURL, &l.TotalQuantity, &l.AvailableCount, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Listing{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Listing{}, err
	}
	return l, nil
}

func scanUnits(rows pgx.Rows) ([]domain.Unit, error) {
	defer rows.Close()
	var units []domain.Unit
	for rows.Next() {
		var u domain.Unit
		if err := rows.Scan(&u.ID, &u.ListingID, &u.UnitNumber, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
