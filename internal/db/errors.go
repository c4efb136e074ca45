package db

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrNoRows is returned when a guild has no stored row of the requested kind
	ErrNoRows = errors.New("no rows in result set")

	// ErrEmptyGuildID is returned by every write that is missing its guild ID
	ErrEmptyGuildID = errors.New("guild id is required")
)

// IsNoRows returns true if the error indicates no rows were found.
// Works with pgx, database/sql, and the package's own ErrNoRows.
func IsNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNoRows) ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, pgx.ErrNoRows)
}

// CheckGuildID guards repository writes.
func CheckGuildID(guildID string) error {
	if guildID == "" {
		return ErrEmptyGuildID
	}
	return nil
}
