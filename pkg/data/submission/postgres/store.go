package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/database/query"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres backed submission.Store
func New(db *sql.DB) submission.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Put(ctx context.Context, record *submission.Record) error {
	obj, err := toModel(record)
	if err != nil {
		return err
	}

	if err := obj.dbPut(ctx, s.db); err != nil {
		return err
	}

	res := fromModel(obj)
	res.CopyTo(record)

	return nil
}

func (s *store) Get(ctx context.Context, signature string) (*submission.Record, error) {
	obj, err := dbGet(ctx, s.db, signature)
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

func (s *store) UpdateState(ctx context.Context, signature string, from, to submission.State, errMsg *string) error {
	if !submission.ValidStateTransition(from, to) {
		return submission.ErrInvalidTransition
	}
	return dbUpdateState(ctx, s.db, signature, from, to, errMsg)
}

func (s *store) UpdateReconcileState(ctx context.Context, signature string, from, to submission.ReconcileState) error {
	if !submission.ValidReconcileTransition(from, to) {
		return submission.ErrInvalidTransition
	}
	return dbUpdateReconcileState(ctx, s.db, signature, from, to)
}

func (s *store) GetAllByState(ctx context.Context, state submission.State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*submission.Record, error) {
	models, err := dbGetAllByState(ctx, s.db, state, cursor, limit, direction)
	if err != nil {
		return nil, err
	}
	return fromModels(models), nil
}

func (s *store) GetAllUnreconciled(ctx context.Context, limit uint64) ([]*submission.Record, error) {
	models, err := dbGetAllUnreconciled(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}
	return fromModels(models), nil
}

func (s *store) CountByState(ctx context.Context, state submission.State) (uint64, error) {
	return dbCountByState(ctx, s.db, state)
}

func fromModels(models []*model) []*submission.Record {
	res := make([]*submission.Record, len(models))
	for i, m := range models {
		res[i] = fromModel(m)
	}
	return res
}
