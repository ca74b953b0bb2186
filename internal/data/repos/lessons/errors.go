package lessons

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrLeaseLost is returned by fenced writes when the caller's token no
// longer owns the record, or the record has already reached a terminal status.
var ErrLeaseLost = errors.New("lesson lease lost")

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("lesson store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// isMissingColumn matches Postgres undefined_column and SQLite's equivalent.
func isMissingColumn(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42703" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "has no column named") ||
		(strings.Contains(msg, "column") && strings.Contains(msg, "does not exist"))
}
