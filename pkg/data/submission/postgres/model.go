package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	pgutil "github.com/berzslv/hackedsolanaatm-sub002/pkg/database/postgres"
	q "github.com/berzslv/hackedsolanaatm-sub002/pkg/database/query"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/pointer"
)

const (
	tableName = "staking__core_submission"

	allColumns = `id, signature, wallet, operation, amount, strategy, last_valid_block_height, state, reconcile_state, error, version, created_at, updated_at`
)

type model struct {
	Id                   sql.NullInt64  `db:"id"`
	Signature            string         `db:"signature"`
	Wallet               string         `db:"wallet"`
	Operation            string         `db:"operation"`
	Amount               uint64         `db:"amount"`
	Strategy             string         `db:"strategy"`
	LastValidBlockHeight uint64         `db:"last_valid_block_height"`
	State                uint8          `db:"state"`
	ReconcileState       uint8          `db:"reconcile_state"`
	Error                sql.NullString `db:"error"`
	Version              uint64         `db:"version"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func toModel(obj *submission.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	return &model{
		Signature:            obj.Signature,
		Wallet:               obj.Wallet,
		Operation:            string(obj.Operation),
		Amount:               obj.Amount,
		Strategy:             obj.Strategy,
		LastValidBlockHeight: obj.LastValidBlockHeight,
		State:                uint8(obj.State),
		ReconcileState:       uint8(obj.ReconcileState),
		Error:                sql.NullString{String: *pointer.StringOrDefault(obj.Error, ""), Valid: obj.Error != nil},
		CreatedAt:            obj.CreatedAt,
		UpdatedAt:            obj.CreatedAt,
	}, nil
}

func fromModel(m *model) *submission.Record {
	return &submission.Record{
		Id:                   uint64(m.Id.Int64),
		Signature:            m.Signature,
		Wallet:               m.Wallet,
		Operation:            submission.Operation(m.Operation),
		Amount:               m.Amount,
		Strategy:             m.Strategy,
		LastValidBlockHeight: m.LastValidBlockHeight,
		State:                submission.State(m.State),
		ReconcileState:       submission.ReconcileState(m.ReconcileState),
		Error:                pointer.StringIfValid(m.Error.Valid, m.Error.String),
		Version:              m.Version,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func (m *model) dbPut(ctx context.Context, db *sqlx.DB) error {
	query := `INSERT INTO ` + tableName + `
		(signature, wallet, operation, amount, strategy, last_valid_block_height, state, reconcile_state, error, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11)
		RETURNING ` + allColumns

	err := db.QueryRowxContext(
		ctx,
		query,
		m.Signature,
		m.Wallet,
		m.Operation,
		m.Amount,
		m.Strategy,
		m.LastValidBlockHeight,
		m.State,
		m.ReconcileState,
		m.Error,
		m.CreatedAt,
		m.UpdatedAt,
	).StructScan(m)
	return pgutil.CheckUniqueViolation(err, submission.ErrAlreadyExists)
}

func dbGet(ctx context.Context, db *sqlx.DB, signature string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE signature = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, signature)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, submission.ErrNotFound)
	}
	return res, nil
}

func dbUpdateState(ctx context.Context, db *sqlx.DB, signature string, from, to submission.State, errMsg *string) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `UPDATE ` + tableName + `
			SET state = $3, error = $4, version = version + 1, updated_at = $5
			WHERE signature = $1 AND state = $2`

		var errValue sql.NullString
		if to == submission.StateFailed && errMsg != nil {
			errValue = sql.NullString{String: *errMsg, Valid: true}
		}

		res, err := tx.ExecContext(ctx, query, signature, from, to, errValue, time.Now().UTC())
		if err != nil {
			return err
		}
		return checkCompareAndSet(ctx, tx, res, signature)
	})
}

func dbUpdateReconcileState(ctx context.Context, db *sqlx.DB, signature string, from, to submission.ReconcileState) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `UPDATE ` + tableName + `
			SET reconcile_state = $3, version = version + 1, updated_at = $5
			WHERE signature = $1 AND reconcile_state = $2 AND state = $4`

		res, err := tx.ExecContext(ctx, query, signature, from, to, submission.StateConfirmed, time.Now().UTC())
		if err != nil {
			return err
		}
		return checkCompareAndSet(ctx, tx, res, signature)
	})
}

// checkCompareAndSet distinguishes a lost compare-and-set from a missing
// record when an update affected no rows.
func checkCompareAndSet(ctx context.Context, tx *sqlx.Tx, res sql.Result, signature string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var id int64
	err = tx.GetContext(ctx, &id, `SELECT id FROM `+tableName+` WHERE signature = $1`, signature)
	if err != nil {
		return pgutil.CheckNoRows(err, submission.ErrNotFound)
	}
	return submission.ErrStaleState
}

func dbGetAllByState(ctx context.Context, db *sqlx.DB, state submission.State, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE (state = $1)`

	opts := []interface{}{state}
	query, opts, err := q.PaginateQuery(query, opts, cursor, limit, direction)
	if err != nil {
		return nil, err
	}

	err = db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, submission.ErrNotFound)
	}

	if len(res) == 0 {
		return nil, submission.ErrNotFound
	}
	return res, nil
}

func dbGetAllUnreconciled(ctx context.Context, db *sqlx.DB, limit uint64) ([]*model, error) {
	res := []*model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE (state = $1 AND reconcile_state != $2)`

	opts := []interface{}{submission.StateConfirmed, submission.ReconcileDone}
	query, opts, err := q.PaginateQuery(query, opts, q.EmptyCursor, limit, q.Ascending)
	if err != nil {
		return nil, err
	}

	err = db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, submission.ErrNotFound)
	}

	if len(res) == 0 {
		return nil, submission.ErrNotFound
	}
	return res, nil
}

func dbCountByState(ctx context.Context, db *sqlx.DB, state submission.State) (uint64, error) {
	var res uint64

	query := `SELECT COUNT(*) FROM ` + tableName + ` WHERE state = $1`

	err := db.GetContext(ctx, &res, query, state)
	if err != nil {
		return 0, err
	}
	return res, nil
}
