package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrCassetteNotFound indicates no cassette row exists for the given ID.
var ErrCassetteNotFound = errors.New("cassette not found")

// ErrShipRecvNotFound indicates no ship/recv row exists for the given ID.
var ErrShipRecvNotFound = errors.New("ship/recv record not found")

// CodeDatabase is used when the driver does not report a SQLSTATE.
const CodeDatabase = "DATABASE_ERROR"

// Error is a classified persistence failure.
type Error struct {
	Op      string
	Code    string
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s [%s]", e.Op, e.Message, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapErr classifies err as a *Error for operation op. Sentinel errors and
// nil pass through untouched.
func wrapErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrCassetteNotFound) || errors.Is(err, ErrShipRecvNotFound) {
		return err
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{
			Op:      op,
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
			Err:     err,
		}
	}
	return &Error{
		Op:      op,
		Code:    CodeDatabase,
		Message: "database error",
		Detail:  err.Error(),
		Err:     err,
	}
}

// IsPersistence reports whether err came from the persistence layer.
func IsPersistence(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
