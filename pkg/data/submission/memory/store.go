package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/database/query"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/pointer"
)

type ById []*submission.Record

func (a ById) Len() int           { return len(a) }
func (a ById) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ById) Less(i, j int) bool { return a[i].Id < a[j].Id }

type store struct {
	mu      sync.Mutex
	records []*submission.Record
	last    uint64
}

// New returns a new in memory submission.Store
func New() submission.Store {
	return &store{}
}

func (s *store) Put(_ context.Context, data *submission.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.find(data.Signature); item != nil {
		return submission.ErrAlreadyExists
	}

	s.last++
	data.Id = s.last
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}
	data.UpdatedAt = data.CreatedAt
	data.Version = 1

	c := data.Clone()
	s.records = append(s.records, &c)

	return nil
}

func (s *store) Get(_ context.Context, signature string) (*submission.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.find(signature)
	if item == nil {
		return nil, submission.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) UpdateState(_ context.Context, signature string, from, to submission.State, errMsg *string) error {
	if !submission.ValidStateTransition(from, to) {
		return submission.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.find(signature)
	if item == nil {
		return submission.ErrNotFound
	}

	if item.State != from {
		return submission.ErrStaleState
	}

	item.State = to
	if to == submission.StateFailed {
		item.Error = pointer.StringCopy(errMsg)
	}
	item.Version++
	item.UpdatedAt = time.Now()

	return nil
}

func (s *store) UpdateReconcileState(_ context.Context, signature string, from, to submission.ReconcileState) error {
	if !submission.ValidReconcileTransition(from, to) {
		return submission.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.find(signature)
	if item == nil {
		return submission.ErrNotFound
	}

	if item.State != submission.StateConfirmed || item.ReconcileState != from {
		return submission.ErrStaleState
	}

	item.ReconcileState = to
	item.Version++
	item.UpdatedAt = time.Now()

	return nil
}

func (s *store) GetAllByState(_ context.Context, state submission.State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*submission.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.filter(func(r *submission.Record) bool { return r.State == state })
	items = paginate(items, cursor, limit, direction)
	if len(items) == 0 {
		return nil, submission.ErrNotFound
	}
	return cloneAll(items), nil
}

func (s *store) GetAllUnreconciled(_ context.Context, limit uint64) ([]*submission.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.filter(func(r *submission.Record) bool {
		return r.State == submission.StateConfirmed && r.ReconcileState != submission.ReconcileDone
	})
	items = paginate(items, query.EmptyCursor, limit, query.Ascending)
	if len(items) == 0 {
		return nil, submission.ErrNotFound
	}
	return cloneAll(items), nil
}

func (s *store) CountByState(_ context.Context, state submission.State) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.filter(func(r *submission.Record) bool { return r.State == state })
	return uint64(len(items)), nil
}

func (s *store) find(signature string) *submission.Record {
	for _, item := range s.records {
		if item.Signature == signature {
			return item
		}
	}
	return nil
}

func (s *store) filter(fn func(*submission.Record) bool) []*submission.Record {
	var res []*submission.Record
	for _, item := range s.records {
		if fn(item) {
			res = append(res, item)
		}
	}
	return res
}

func paginate(items []*submission.Record, cursor query.Cursor, limit uint64, direction query.Ordering) []*submission.Record {
	sorted := make([]*submission.Record, len(items))
	copy(sorted, items)

	if direction == query.Ascending {
		sort.Sort(ById(sorted))
	} else {
		sort.Sort(sort.Reverse(ById(sorted)))
	}

	after, _ := cursor.ToUint64()

	var res []*submission.Record
	for _, item := range sorted {
		if len(cursor) > 0 {
			if direction == query.Ascending && item.Id <= after {
				continue
			}
			if direction == query.Descending && item.Id >= after {
				continue
			}
		}

		res = append(res, item)
		if limit > 0 && uint64(len(res)) >= limit {
			break
		}
	}
	return res
}

func cloneAll(items []*submission.Record) []*submission.Record {
	res := make([]*submission.Record, len(items))
	for i, item := range items {
		cloned := item.Clone()
		res[i] = &cloned
	}
	return res
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}
