package store

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

var (
	// ErrUnavailable marks a persistent-store failure that the gateway masks with the
	// transient backend.
	ErrUnavailable = errors.New("persistent store unavailable")
	// ErrNotFound is a definitive answer and never triggers a fallback.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidInput is returned for malformed input before any write happens.
	ErrInvalidInput = errors.New("invalid input")
)

// IsUniqueConflict reports whether err is a unique-constraint violation. Conflicts are
// an expected signal on concurrent first writes and are converted into updates.
func IsUniqueConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	// 其他驱动未翻译错误时的兜底判断
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// isDefinitive reports whether err is an answer rather than a backend failure.
func isDefinitive(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput)
}
