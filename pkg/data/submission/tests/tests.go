package tests

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/database/query"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/pointer"
)

func RunTests(t *testing.T, s submission.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s submission.Store){
		testRoundTrip,
		testStateTransitions,
		testReconcileTransitions,
		testConcurrentReconcileClaim,
		testGetAllByState,
		testGetAllUnreconciled,
	} {
		tf(t, s)
		teardown()
	}
}

func newRecord(i int) *submission.Record {
	return &submission.Record{
		Signature:            fmt.Sprintf("test_signature_%d", i),
		Wallet:               fmt.Sprintf("test_wallet_%d", i%3),
		Operation:            submission.OperationStake,
		Amount:               uint64(1_000_000_000 * (i + 1)),
		Strategy:             "sign_and_broadcast",
		LastValidBlockHeight: 1234 + uint64(i),
		State:                submission.StatePending,
		ReconcileState:       submission.ReconcileNone,
	}
}

func testRoundTrip(t *testing.T, s submission.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.Get(ctx, "test_signature_0")
		assert.Equal(t, submission.ErrNotFound, err)
		assert.Nil(t, actual)

		expected := newRecord(0)
		cloned := expected.Clone()

		start := time.Now()
		require.NoError(t, s.Put(ctx, expected))
		assert.True(t, expected.Id > 0)
		assert.EqualValues(t, 1, expected.Version)
		assert.True(t, expected.CreatedAt.After(start.Add(-time.Second)))

		actual, err = s.Get(ctx, cloned.Signature)
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)
		assert.Equal(t, expected.Id, actual.Id)
		assert.EqualValues(t, 1, actual.Version)

		assert.Equal(t, submission.ErrAlreadyExists, s.Put(ctx, newRecord(0)))

		count, err := s.CountByState(ctx, submission.StatePending)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)

		count, err = s.CountByState(ctx, submission.StateConfirmed)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
	})
}

func testStateTransitions(t *testing.T, s submission.Store) {
	t.Run("testStateTransitions", func(t *testing.T) {
		ctx := context.Background()

		assert.Equal(t, submission.ErrNotFound, s.UpdateState(ctx, "unknown", submission.StatePending, submission.StateConfirmed, nil))
		// Transition validity is checked before the record is looked up
		assert.Equal(t, submission.ErrInvalidTransition, s.UpdateState(ctx, "unknown", submission.StateConfirmed, submission.StatePending, nil))

		confirmed := newRecord(0)
		failed := newRecord(1)
		require.NoError(t, s.Put(ctx, confirmed))
		require.NoError(t, s.Put(ctx, failed))

		assert.Equal(t, submission.ErrInvalidTransition, s.UpdateState(ctx, confirmed.Signature, submission.StateConfirmed, submission.StatePending, nil))
		assert.Equal(t, submission.ErrInvalidTransition, s.UpdateState(ctx, confirmed.Signature, submission.StateUnknown, submission.StatePending, nil))

		require.NoError(t, s.UpdateState(ctx, confirmed.Signature, submission.StatePending, submission.StateConfirmed, nil))
		assert.Equal(t, submission.ErrStaleState, s.UpdateState(ctx, confirmed.Signature, submission.StatePending, submission.StateFailed, pointer.String("late")))

		actual, err := s.Get(ctx, confirmed.Signature)
		require.NoError(t, err)
		assert.Equal(t, submission.StateConfirmed, actual.State)
		assert.Nil(t, actual.Error)
		assert.EqualValues(t, 2, actual.Version)

		require.NoError(t, s.UpdateState(ctx, failed.Signature, submission.StatePending, submission.StateFailed, pointer.String("InsufficientStake")))

		actual, err = s.Get(ctx, failed.Signature)
		require.NoError(t, err)
		assert.Equal(t, submission.StateFailed, actual.State)
		require.NotNil(t, actual.Error)
		assert.Equal(t, "InsufficientStake", *actual.Error)
	})
}

func testReconcileTransitions(t *testing.T, s submission.Store) {
	t.Run("testReconcileTransitions", func(t *testing.T) {
		ctx := context.Background()

		record := newRecord(0)
		require.NoError(t, s.Put(ctx, record))

		// Pending records can't be reconciled
		assert.Equal(t, submission.ErrStaleState, s.UpdateReconcileState(ctx, record.Signature, submission.ReconcileNone, submission.ReconcileInFlight))
		assert.Equal(t, submission.ErrInvalidTransition, s.UpdateReconcileState(ctx, record.Signature, submission.ReconcileNone, submission.ReconcileDone))
		assert.Equal(t, submission.ErrInvalidTransition, s.UpdateReconcileState(ctx, record.Signature, submission.ReconcileDone, submission.ReconcileNone))

		require.NoError(t, s.UpdateState(ctx, record.Signature, submission.StatePending, submission.StateConfirmed, nil))

		require.NoError(t, s.UpdateReconcileState(ctx, record.Signature, submission.ReconcileNone, submission.ReconcileInFlight))
		assert.Equal(t, submission.ErrStaleState, s.UpdateReconcileState(ctx, record.Signature, submission.ReconcileNone, submission.ReconcileInFlight))

		// Release after a failed ledger call, then claim again
		require.NoError(t, s.UpdateReconcileState(ctx, record.Signature, submission.ReconcileInFlight, submission.ReconcileNone))
		require.NoError(t, s.UpdateReconcileState(ctx, record.Signature, submission.ReconcileNone, submission.ReconcileInFlight))
		require.NoError(t, s.UpdateReconcileState(ctx, record.Signature, submission.ReconcileInFlight, submission.ReconcileDone))

		assert.Equal(t, submission.ErrStaleState, s.UpdateReconcileState(ctx, record.Signature, submission.ReconcileInFlight, submission.ReconcileDone))

		actual, err := s.Get(ctx, record.Signature)
		require.NoError(t, err)
		assert.Equal(t, submission.ReconcileDone, actual.ReconcileState)
		assert.EqualValues(t, 6, actual.Version)
	})
}

func testConcurrentReconcileClaim(t *testing.T, s submission.Store) {
	t.Run("testConcurrentReconcileClaim", func(t *testing.T) {
		ctx := context.Background()

		record := newRecord(0)
		require.NoError(t, s.Put(ctx, record))
		require.NoError(t, s.UpdateState(ctx, record.Signature, submission.StatePending, submission.StateConfirmed, nil))

		var wg sync.WaitGroup
		var mu sync.Mutex
		var winners, losers int
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				err := s.UpdateReconcileState(ctx, record.Signature, submission.ReconcileNone, submission.ReconcileInFlight)

				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					winners++
				} else if err == submission.ErrStaleState {
					losers++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, winners)
		assert.Equal(t, 15, losers)
	})
}

func testGetAllByState(t *testing.T, s submission.Store) {
	t.Run("testGetAllByState", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetAllByState(ctx, submission.StatePending, query.EmptyCursor, 10, query.Ascending)
		assert.Equal(t, submission.ErrNotFound, err)

		var expected []*submission.Record
		for i := 0; i < 10; i++ {
			record := newRecord(i)
			require.NoError(t, s.Put(ctx, record))
			expected = append(expected, record)
		}
		require.NoError(t, s.UpdateState(ctx, expected[9].Signature, submission.StatePending, submission.StateConfirmed, nil))

		actual, err := s.GetAllByState(ctx, submission.StatePending, query.EmptyCursor, 100, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 9)
		for i, record := range actual {
			assert.Equal(t, expected[i].Signature, record.Signature)
		}

		actual, err = s.GetAllByState(ctx, submission.StatePending, query.EmptyCursor, 3, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 3)
		assert.Equal(t, expected[8].Signature, actual[0].Signature)
		assert.Equal(t, expected[6].Signature, actual[2].Signature)

		actual, err = s.GetAllByState(ctx, submission.StatePending, query.ToCursor(expected[4].Id), 2, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assert.Equal(t, expected[5].Signature, actual[0].Signature)
		assert.Equal(t, expected[6].Signature, actual[1].Signature)

		actual, err = s.GetAllByState(ctx, submission.StatePending, query.ToCursor(expected[2].Id), 10, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assert.Equal(t, expected[1].Signature, actual[0].Signature)
		assert.Equal(t, expected[0].Signature, actual[1].Signature)

		_, err = s.GetAllByState(ctx, submission.StatePending, query.ToCursor(expected[8].Id), 10, query.Ascending)
		assert.Equal(t, submission.ErrNotFound, err)

		actual, err = s.GetAllByState(ctx, submission.StateConfirmed, query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 1)
		assert.Equal(t, expected[9].Signature, actual[0].Signature)
	})
}

func testGetAllUnreconciled(t *testing.T, s submission.Store) {
	t.Run("testGetAllUnreconciled", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetAllUnreconciled(ctx, 10)
		assert.Equal(t, submission.ErrNotFound, err)

		var records []*submission.Record
		for i := 0; i < 5; i++ {
			record := newRecord(i)
			require.NoError(t, s.Put(ctx, record))
			records = append(records, record)
		}

		for _, record := range records[1:] {
			require.NoError(t, s.UpdateState(ctx, record.Signature, submission.StatePending, submission.StateConfirmed, nil))
		}
		require.NoError(t, s.UpdateReconcileState(ctx, records[1].Signature, submission.ReconcileNone, submission.ReconcileInFlight))
		require.NoError(t, s.UpdateReconcileState(ctx, records[2].Signature, submission.ReconcileNone, submission.ReconcileInFlight))
		require.NoError(t, s.UpdateReconcileState(ctx, records[2].Signature, submission.ReconcileInFlight, submission.ReconcileDone))

		actual, err := s.GetAllUnreconciled(ctx, 10)
		require.NoError(t, err)
		require.Len(t, actual, 3)
		assert.Equal(t, records[1].Signature, actual[0].Signature)
		assert.Equal(t, records[3].Signature, actual[1].Signature)
		assert.Equal(t, records[4].Signature, actual[2].Signature)

		actual, err = s.GetAllUnreconciled(ctx, 1)
		require.NoError(t, err)
		require.Len(t, actual, 1)
		assert.Equal(t, records[1].Signature, actual[0].Signature)
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *submission.Record) {
	assert.Equal(t, obj1.Signature, obj2.Signature)
	assert.Equal(t, obj1.Wallet, obj2.Wallet)
	assert.Equal(t, obj1.Operation, obj2.Operation)
	assert.Equal(t, obj1.Amount, obj2.Amount)
	assert.Equal(t, obj1.Strategy, obj2.Strategy)
	assert.Equal(t, obj1.LastValidBlockHeight, obj2.LastValidBlockHeight)
	assert.Equal(t, obj1.State, obj2.State)
	assert.Equal(t, obj1.ReconcileState, obj2.ReconcileState)
	assert.EqualValues(t, obj1.Error, obj2.Error)
}
