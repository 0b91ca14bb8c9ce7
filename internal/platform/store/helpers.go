package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// isNoRows reports whether err is the driver's empty-result sentinel
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
