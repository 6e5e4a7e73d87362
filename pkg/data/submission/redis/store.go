package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/database/query"
)

const (
	maxTxAttempts = 8
)

type store struct {
	client *redis.Client
}

// New returns a redis backed submission.Store.
//
// Records live in hashes keyed by signature. Each state has a sorted set of
// signatures scored by id, which backs paging, and confirmed records awaiting
// the ledger sit in a separate sorted set. Compare-and-set updates run in
// WATCH transactions.
func New(client *redis.Client) submission.Store {
	return &store{
		client: client,
	}
}

func (s *store) Put(ctx context.Context, record *submission.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	key := recordKey(record.Signature)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	} else if exists > 0 {
		return submission.ErrAlreadyExists
	}

	id, err := s.client.Incr(ctx, sequenceKey()).Uint64()
	if err != nil {
		return errors.Wrap(err, "failed to allocate id")
	}

	cloned := record.Clone()
	cloned.Id = id
	cloned.Version = 1
	if cloned.CreatedAt.IsZero() {
		cloned.CreatedAt = time.Now()
	}
	cloned.UpdatedAt = cloned.CreatedAt

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		} else if exists > 0 {
			return submission.ErrAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, toHash(&cloned))
			pipe.ZAdd(ctx, stateKey(cloned.State), redis.Z{Score: float64(cloned.Id), Member: cloned.Signature})
			if cloned.State == submission.StateConfirmed && cloned.ReconcileState != submission.ReconcileDone {
				pipe.ZAdd(ctx, unreconciledKey(), redis.Z{Score: float64(cloned.Id), Member: cloned.Signature})
			}
			return nil
		})
		return err
	}, key)
	if err == redis.TxFailedErr {
		return submission.ErrAlreadyExists
	} else if err != nil {
		return err
	}

	cloned.CopyTo(record)
	return nil
}

func (s *store) Get(ctx context.Context, signature string) (*submission.Record, error) {
	values, err := s.client.HGetAll(ctx, recordKey(signature)).Result()
	if err != nil {
		return nil, err
	}
	return fromHash(values)
}

func (s *store) UpdateState(ctx context.Context, signature string, from, to submission.State, errMsg *string) error {
	if !submission.ValidStateTransition(from, to) {
		return submission.ErrInvalidTransition
	}

	return s.compareAndSet(ctx, signature, func(record *submission.Record, pipe redis.Pipeliner) error {
		if record.State != from {
			return submission.ErrStaleState
		}

		fields := map[string]interface{}{
			fieldState: uint8(to),
		}
		if to == submission.StateFailed && errMsg != nil {
			fields[fieldError] = *errMsg
		}
		pipe.HSet(ctx, recordKey(signature), fields)

		pipe.ZRem(ctx, stateKey(from), signature)
		pipe.ZAdd(ctx, stateKey(to), redis.Z{Score: float64(record.Id), Member: signature})
		if to == submission.StateConfirmed {
			pipe.ZAdd(ctx, unreconciledKey(), redis.Z{Score: float64(record.Id), Member: signature})
		}
		return nil
	})
}

func (s *store) UpdateReconcileState(ctx context.Context, signature string, from, to submission.ReconcileState) error {
	if !submission.ValidReconcileTransition(from, to) {
		return submission.ErrInvalidTransition
	}

	return s.compareAndSet(ctx, signature, func(record *submission.Record, pipe redis.Pipeliner) error {
		if record.State != submission.StateConfirmed || record.ReconcileState != from {
			return submission.ErrStaleState
		}

		pipe.HSet(ctx, recordKey(signature), fieldReconcileState, uint8(to))
		if to == submission.ReconcileDone {
			pipe.ZRem(ctx, unreconciledKey(), signature)
		}
		return nil
	})
}

// compareAndSet reads a record under WATCH and applies the queued writes
// only if no other client touched the record in between. Losing a race is
// retried so the check function sees the winner's state.
func (s *store) compareAndSet(ctx context.Context, signature string, fn func(*submission.Record, redis.Pipeliner) error) error {
	key := recordKey(signature)

	txf := func(tx *redis.Tx) error {
		values, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		record, err := fromHash(values)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := fn(record, pipe); err != nil {
				return err
			}

			pipe.HIncrBy(ctx, key, fieldVersion, 1)
			pipe.HSet(ctx, key, fieldUpdatedAt, time.Now().UnixNano())
			return nil
		})
		return err
	}

	for i := 0; i < maxTxAttempts; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return submission.ErrStaleState
}

func (s *store) GetAllByState(ctx context.Context, state submission.State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*submission.Record, error) {
	by := &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: int64(limit),
	}

	after, err := cursor.ToUint64()
	if err != nil {
		return nil, err
	}

	var signatures []string
	if direction == query.Ascending {
		if len(cursor) > 0 {
			by.Min = "(" + strconv.FormatUint(after, 10)
		}
		signatures, err = s.client.ZRangeByScore(ctx, stateKey(state), by).Result()
	} else {
		if len(cursor) > 0 {
			by.Max = "(" + strconv.FormatUint(after, 10)
		}
		signatures, err = s.client.ZRevRangeByScore(ctx, stateKey(state), by).Result()
	}
	if err != nil {
		return nil, err
	}

	return s.getAll(ctx, signatures)
}

func (s *store) GetAllUnreconciled(ctx context.Context, limit uint64) ([]*submission.Record, error) {
	signatures, err := s.client.ZRangeByScore(ctx, unreconciledKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	return s.getAll(ctx, signatures)
}

func (s *store) CountByState(ctx context.Context, state submission.State) (uint64, error) {
	count, err := s.client.ZCard(ctx, stateKey(state)).Uint64()
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *store) getAll(ctx context.Context, signatures []string) ([]*submission.Record, error) {
	if len(signatures) == 0 {
		return nil, submission.ErrNotFound
	}

	cmds := make([]*redis.MapStringStringCmd, len(signatures))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, signature := range signatures {
			cmds[i] = pipe.HGetAll(ctx, recordKey(signature))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := make([]*submission.Record, 0, len(cmds))
	for _, cmd := range cmds {
		record, err := fromHash(cmd.Val())
		if err != nil {
			return nil, err
		}
		res = append(res, record)
	}
	return res, nil
}
