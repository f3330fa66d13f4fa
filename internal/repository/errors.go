// Package repository holds the SQL data access of the chat.  Failures that
// handlers map to a response are reported with the sentinel errors below;
// the *NotFound values also cover rows the caller may not see.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrEmailExists     = errors.New("email already exists")
	ErrNameExists      = errors.New("name already exists")
	ErrGroupNameExists = errors.New("group name already exists")
	ErrInvalidRefresh  = errors.New("invalid refresh token")
)

// isDuplicate reports whether err is a unique-key violation from MySQL
// (1062) or SQLite.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
