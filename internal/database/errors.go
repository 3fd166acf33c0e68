package database

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"ecorpus-go/internal/errs"
)

// translateError classifies constraint violations reported by the driver.
// Anything else is returned unchanged.
func translateError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return err
	}

	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return errs.Wrap(errs.KindConflict, err, "")
	case sqlite3.ErrConstraintForeignKey:
		return errs.Wrap(errs.KindNotFound, err, "")
	case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
		return errs.Wrap(errs.KindBadRequest, err, "")
	}
	return err
}

// isUniqueViolation reports whether err is a uniqueness failure on column,
// given as "table.column".
func isUniqueViolation(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return strings.Contains(sqliteErr.Error(), column)
	}
	return false
}
