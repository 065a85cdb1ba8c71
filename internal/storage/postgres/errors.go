package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	listing "github.com/ardkyer/rion-reservation/internal/listing/domain"
)

// MapTxError translates storage-level failures into the domain taxonomy:
// serialization failures and deadlocks become listing.ErrConflict so the
// application layer can retry the atomic operation.
func MapTxError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return listing.ErrConflict
		}
	}
	return err
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
