package pgstore

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrFailedToConnect     = errors.New("failed to open postgres connection")
	ErrFailedToParseConfig = errors.New("failed to parse postgres config")
	ErrHealthcheckFailed   = errors.New("postgres healthcheck failed")
	ErrFailedToMigrate     = errors.New("failed to apply migrations")
)

// isNoRows detects pgx.ErrNoRows for consistent "not found" mapping.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey detects unique constraint violations (SQLSTATE 23505),
// which on the records table means two writers raced an insert.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
