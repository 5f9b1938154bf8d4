package repo

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// IsNotFound reports whether err means the requested row is absent.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// ErrDuplicate indicates that an insert hit a unique constraint.
var ErrDuplicate = errors.New("duplicate")

// IsDuplicate reports whether err is a unique-constraint violation.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations, and
// the postgres driver only translates them when TranslateError is enabled.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key") ||
		strings.Contains(low, "sqlstate 23505")
}

// IsForeignKey reports whether err is a foreign-key violation, which here
// always means the owning conversation does not exist.
func IsForeignKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "foreign key constraint failed") ||
		strings.Contains(low, "violates foreign key constraint") ||
		strings.Contains(low, "sqlstate 23503")
}

// IsValueTooLong reports whether err is postgres rejecting a value wider
// than its column (SQLSTATE 22001). SQLite does not enforce varchar widths.
func IsValueTooLong(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22001"
	}
	return strings.Contains(strings.ToLower(err.Error()), "sqlstate 22001")
}
