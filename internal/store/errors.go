package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/canvaspipe/internal/ir"
)

// classify wraps a database error with op context, mapping lock contention
// to ir.CodeTransientStore. sql.ErrNoRows is left to callers, which know
// what was missing.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isBusy(err) {
		return ir.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
