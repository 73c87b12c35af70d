package sqlxrepos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// withTx runs fn in a transaction, committed when fn succeeds and rolled back otherwise.
// fn's error is returned as is.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "committing transaction")
	}()
	return fn(tx)
}

// forUpdate locks the selected rows on postgres.
// sqlite3 connections begin write transactions with BEGIN IMMEDIATE instead (see database.SQLiteDSN).
func forUpdate(db *sqlx.DB) string {
	if db.DriverName() == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

// validID filters out ids that cannot exist, which postgres would reject as invalid uuid input.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// uniqueViolation reports whether err breaks a unique constraint, and which one.
// The name is the constraint name on postgres and the "table.column" list on sqlite3.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return strings.TrimPrefix(liteErr.Error(), "UNIQUE constraint failed: "), true
	}
	return "", false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern is a LIKE pattern matching s anywhere, s lower-cased.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}
