package db

import (
	"errors"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

func IsUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	if sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}

	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// DuplicateField names the users-table column behind a unique constraint
// violation so concurrent registration races can still report whether the
// email or the username lost.
func DuplicateField(err error) string {
	if !IsUniqueConstraintError(err) {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		return "email"
	case strings.Contains(msg, "users.username"):
		return "username"
	default:
		return ""
	}
}
