package repository

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
	"gorm.io/gorm"
)

// Repository errors are the application sentinels, so the API maps them
// without translation.
var (
	ErrNotFound       = apperrors.ErrNotFound
	ErrDuplicateEntry = apperrors.ErrDuplicateEntry
)

// isDuplicateKeyError recognizes unique violations from sqlite and postgres
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "23505")
}

// lookupError maps gorm's not-found to ErrNotFound and wraps everything else
func lookupError(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
