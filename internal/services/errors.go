package services

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Domain errors. Callers match them with errors.Is; the text after the
// sentinel prefix is safe to show to users.
var (
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnauthenticated  = errors.New("authentication required")
)

var sentinels = []error{
	ErrValidation, ErrPermissionDenied, ErrNotFound,
	ErrConflict, ErrInvalidArgument, ErrUnauthenticated,
}

// IsDomainError reports whether err wraps one of the sentinels above.
func IsDomainError(err error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// Message returns the user-facing part of a domain error:
// "validation failed: text is required" -> "text is required".
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, s := range sentinels {
		if errors.Is(err, s) {
			if rest, ok := strings.CutPrefix(msg, s.Error()+": "); ok {
				return rest
			}
			return msg
		}
	}
	return msg
}

// isUniqueViolation recognises duplicate-key errors from postgres (23505),
// gorm's translated error and sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
