package pg

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// ExecuteInTx runs fn inside a transaction at the requested isolation level.
// The transaction commits when fn returns nil and rolls back otherwise.
func ExecuteInTx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	if isolation == sql.LevelDefault {
		isolation = sql.LevelReadCommitted
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return errors.Wrap(err, "error starting transaction")
	}

	if err := fn(tx); err != nil {
		// Rollback releases the connection back to the pool
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Wrapf(rollbackErr, "error rolling back after %v", err)
		}
		return err
	}

	return tx.Commit()
}
